package room

import (
	"context"

	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
)

// Notifier delivers registry events to connected sockets.
type Notifier interface {
	Broadcast(ctx context.Context, roomID, event string, payload interface{})
	BroadcastGlobal(ctx context.Context, event string, payload interface{})
	EvictRoom(ctx context.Context, roomID string)
}

// SummaryArchiver keeps finished session summaries.
type SummaryArchiver interface {
	Save(ctx context.Context, s *domain.SessionSummary) error
}

// FollowerCounter reports how many followers a host has.
type FollowerCounter interface {
	CountFollowers(ctx context.Context, userID string) (int64, error)
}
