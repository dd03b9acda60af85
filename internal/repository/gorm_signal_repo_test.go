package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
	"github.com/weiawesome/wes-io-live/live-engine/internal/testutil"
)

func TestSignalingMarkEndedOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewGormSignalingRepository(testutil.NewDB(t))

	require.NoError(t, repo.Create(ctx, &domain.SignalingSession{
		ID:        "s1",
		ClientID:  "c1",
		RoomID:    "r1",
		UserID:    "u1",
		Kind:      domain.SessionPublish,
		StreamURL: "webrtc://media/live/r1",
		StartedAt: time.Now(),
	}))

	active, err := repo.ListActiveByRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, active, 1)

	ended, err := repo.MarkEnded(ctx, "s1", time.Now())
	require.NoError(t, err)
	assert.True(t, ended)

	ended, err = repo.MarkEnded(ctx, "s1", time.Now())
	require.NoError(t, err)
	assert.False(t, ended)

	active, err = repo.ListActiveByClient(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestFollowDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := NewGormFollowRepository(testutil.NewDB(t))

	require.NoError(t, repo.Follow(ctx, "a", "b"))
	assert.ErrorIs(t, repo.Follow(ctx, "a", "b"), ErrAlreadyFollowing)

	ok, err := repo.IsFollowing(ctx, "a", "b")
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := repo.CountFollowers(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
