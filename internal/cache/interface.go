package cache

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// SessionCache mirrors live session state for other instances and readers.
type SessionCache interface {
	SetSession(ctx context.Context, state *domain.LiveSessionState, ttl time.Duration) error
	GetSession(ctx context.Context, roomID string) (*domain.LiveSessionState, error)
	DeleteSession(ctx context.Context, roomID string) error
	MarkLive(ctx context.Context, roomID string, viewers int) error
	UnmarkLive(ctx context.Context, roomID string) error
	LiveRooms(ctx context.Context, limit int64) ([]string, error)
	Close() error
}
