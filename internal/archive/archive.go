// Package archive keeps the terminal summary of every finished broadcast.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/storage"
)

// Archiver stores session summaries as JSON objects.
type Archiver struct {
	store storage.Storage
}

// NewArchiver creates an Archiver over an object store.
func NewArchiver(store storage.Storage) *Archiver {
	return &Archiver{store: store}
}

// Key returns the object key of a summary.
func Key(s *domain.SessionSummary) string {
	return fmt.Sprintf("sessions/%s/%d.json", s.RoomID, s.StartedAt.UnixMilli())
}

// Save writes the summary.
func (a *Archiver) Save(ctx context.Context, s *domain.SessionSummary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session summary: %w", err)
	}
	if err := a.store.Write(ctx, Key(s), bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return fmt.Errorf("failed to archive session summary: %w", err)
	}
	return nil
}

// List returns the archived summaries of a room, oldest first.
func (a *Archiver) List(ctx context.Context, roomID string) ([]domain.SessionSummary, error) {
	keys, err := a.store.List(ctx, "sessions/"+roomID+"/")
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)

	summaries := make([]domain.SessionSummary, 0, len(keys))
	for _, key := range keys {
		s, err := a.load(ctx, key)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, *s)
	}
	return summaries, nil
}

func (a *Archiver) load(ctx context.Context, key string) (*domain.SessionSummary, error) {
	rc, err := a.store.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var s domain.SessionSummary
	if err := json.NewDecoder(rc).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return &s, nil
}
