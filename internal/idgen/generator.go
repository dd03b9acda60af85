// Package idgen produces the identifiers of rooms, transactions, sessions and battles.
package idgen

import (
	"fmt"

	"github.com/weiawesome/wes-io-live/live-engine/internal/config"
)

// Generator creates and validates one kind of identifier.
type Generator interface {
	Generate() (string, error)
	Validate(id string) bool
}

// Scheme names.
const (
	SchemeULID   = "ulid"
	SchemeNanoID = "nanoid"
	SchemeKSUID  = "ksuid"
	SchemeUUID   = "uuid"
)

// New builds the generator for a scheme.
func New(scheme string, nanoSize int) (Generator, error) {
	switch scheme {
	case SchemeULID:
		return NewULIDGenerator(), nil
	case SchemeNanoID:
		return NewNanoIDGenerator(nanoSize)
	case SchemeKSUID:
		return NewKSUIDGenerator(), nil
	case SchemeUUID, "":
		return NewUUIDGenerator(), nil
	default:
		return nil, fmt.Errorf("unsupported id scheme: %s", scheme)
	}
}

// Set holds one generator per entity.
type Set struct {
	Room        Generator
	Transaction Generator
	Session     Generator
	Battle      Generator
}

// NewSet builds the generators named by the configuration.
func NewSet(cfg config.IDConfig) (*Set, error) {
	var (
		s   Set
		err error
	)
	if s.Room, err = New(cfg.Room, cfg.NanoIDSize); err != nil {
		return nil, fmt.Errorf("room ids: %w", err)
	}
	if s.Transaction, err = New(cfg.Transaction, cfg.NanoIDSize); err != nil {
		return nil, fmt.Errorf("transaction ids: %w", err)
	}
	if s.Session, err = New(cfg.Session, cfg.NanoIDSize); err != nil {
		return nil, fmt.Errorf("session ids: %w", err)
	}
	if s.Battle, err = New(cfg.Battle, cfg.NanoIDSize); err != nil {
		return nil, fmt.Errorf("battle ids: %w", err)
	}
	return &s, nil
}

// Default returns the generators used when nothing is configured.
func Default() *Set {
	nano, _ := NewNanoIDGenerator(DefaultNanoIDSize)
	return &Set{
		Room:        nano,
		Transaction: NewULIDGenerator(),
		Session:     NewKSUIDGenerator(),
		Battle:      NewUUIDGenerator(),
	}
}
