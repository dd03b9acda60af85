package idgen

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	DefaultNanoIDSize = 12
	// URL and stream-path safe.
	nanoIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// NanoIDGenerator generates short ids that fit in stream URLs.
type NanoIDGenerator struct {
	size int
}

// NewNanoIDGenerator creates a new NanoIDGenerator.
// size must be between 1 and 64.
func NewNanoIDGenerator(size int) (*NanoIDGenerator, error) {
	if size == 0 {
		size = DefaultNanoIDSize
	}
	if size < 1 || size > 64 {
		return nil, fmt.Errorf("nanoid size must be between 1 and 64, got %d", size)
	}
	return &NanoIDGenerator{size: size}, nil
}

func (g *NanoIDGenerator) Generate() (string, error) {
	id, err := gonanoid.Generate(nanoIDAlphabet, g.size)
	if err != nil {
		return "", fmt.Errorf("failed to generate NanoID: %w", err)
	}
	return id, nil
}

func (g *NanoIDGenerator) Validate(id string) bool {
	if len(id) != g.size {
		return false
	}
	for _, c := range id {
		if !strings.ContainsRune(nanoIDAlphabet, c) {
			return false
		}
	}
	return true
}
