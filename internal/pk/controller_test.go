package pk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/live-engine/internal/config"
	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
	"github.com/weiawesome/wes-io-live/live-engine/internal/idgen"
)

type stubRooms map[string]*domain.Room

func (s stubRooms) Room(_ context.Context, id string) (*domain.Room, error) {
	r, ok := s[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	cp := *r
	return &cp, nil
}

type stubUsers map[string]*domain.User

func (s stubUsers) Create(context.Context, *domain.User) error { return nil }

func (s stubUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	u, ok := s[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

type delivery struct {
	target string
	event  string
}

type recorder struct {
	mu     sync.Mutex
	events []delivery
}

func (r *recorder) Broadcast(_ context.Context, roomID, event string, _ interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, delivery{target: roomID, event: event})
}

func (r *recorder) SendToUser(_ context.Context, userID, event string, _ interface{}) {
	r.Broadcast(context.Background(), userID, event, nil)
}

func (r *recorder) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.event == event {
			n++
		}
	}
	return n
}

func testConfig() config.PKConfig {
	return config.PKConfig{
		Enabled:          true,
		DefaultDuration:  time.Minute,
		MaxDuration:      10 * time.Minute,
		InviteTTL:        time.Minute,
		Cooldown:         time.Minute,
		MinDiamonds:      10,
		RewardMultiplier: 1.5,
	}
}

func newController(t *testing.T, cfg config.PKConfig) (*Controller, *recorder) {
	t.Helper()
	rooms := stubRooms{
		"rA":    {ID: "rA", HostID: "h1", IsLive: true},
		"rB":    {ID: "rB", HostID: "h2", IsLive: true},
		"rC":    {ID: "rC", HostID: "h3", IsLive: true},
		"rIdle": {ID: "rIdle", HostID: "h4"},
	}
	users := stubUsers{
		"admin": {ID: "admin", Level: domain.AdminLevel},
		"fan":   {ID: "fan", Level: 3},
	}
	rec := &recorder{}
	return NewController(cfg, rooms, users, rec, nil, idgen.Default().Battle), rec
}

func TestBattleWinnerAfterTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, rec := newController(t, testConfig())

	b, err := c.Start(ctx, "rA", "rB", time.Second)
	require.NoError(t, err)
	assert.Equal(t, domain.BattleActive, b.Status)
	assert.Equal(t, 2, rec.count(domain.EventPKStarted))

	c.OnGift(ctx, domain.GiftEvent{RoomID: "rB", ReceiverID: "h1", Value: 50, Quantity: 1})

	result, err := c.Await(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), result.ScoreA)
	assert.Equal(t, int64(0), result.ScoreB)
	assert.Equal(t, domain.WinnerA, result.Winner)
	assert.Equal(t, "rA", result.WinnerRoomID)
	assert.Equal(t, 2, rec.count(domain.EventPKEnded))

	_, err = c.BattleForRoom(ctx, "rA")
	assert.ErrorIs(t, err, domain.ErrBattleNotFound)
}

func TestConcurrentEndPublishesOnce(t *testing.T) {
	ctx := context.Background()
	c, rec := newController(t, testConfig())

	b, err := c.Start(ctx, "rA", "rB", 100*time.Millisecond)
	require.NoError(t, err)
	c.OnGift(ctx, domain.GiftEvent{RoomID: "rB", Value: 10, Quantity: 2})

	var wg sync.WaitGroup
	results := make([]*domain.BattleResult, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			caller := "h1"
			if i%2 == 1 {
				caller = "h2"
			}
			r, err := c.End(ctx, b.ID, caller)
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, domain.WinnerB, r.Winner)
		assert.Equal(t, int64(20), r.ScoreB)
	}
	// One pk:ended per room.
	assert.Equal(t, 2, rec.count(domain.EventPKEnded))
}

func TestEndPermissions(t *testing.T) {
	ctx := context.Background()
	c, _ := newController(t, testConfig())

	b, err := c.Start(ctx, "rA", "rB", time.Minute)
	require.NoError(t, err)

	_, err = c.End(ctx, b.ID, "fan")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = c.End(ctx, b.ID, "stranger")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	result, err := c.End(ctx, b.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, domain.WinnerTie, result.Winner)

	_, err = c.End(ctx, "missing", "h1")
	assert.ErrorIs(t, err, domain.ErrBattleNotFound)
}

func TestInviteAcceptFlow(t *testing.T) {
	ctx := context.Background()
	c, rec := newController(t, testConfig())

	_, err := c.Invite(ctx, "h2", "rA", "rB", 0)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	b, err := c.Invite(ctx, "h1", "rA", "rB", 0)
	require.NoError(t, err)
	assert.Equal(t, domain.BattlePending, b.Status)
	assert.Equal(t, time.Minute, b.Duration)
	assert.Equal(t, 1, rec.count(domain.EventPKInvite))

	// Gifts do not score a pending battle.
	c.OnGift(ctx, domain.GiftEvent{RoomID: "rA", Value: 5, Quantity: 1})

	_, err = c.Accept(ctx, b.ID, "h1")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	active, err := c.Accept(ctx, b.ID, "h2")
	require.NoError(t, err)
	assert.Equal(t, domain.BattleActive, active.Status)
	assert.Zero(t, active.ScoreA)
	assert.Equal(t, 2, rec.count(domain.EventPKStarted))

	_, err = c.Accept(ctx, b.ID, "h2")
	assert.ErrorIs(t, err, domain.ErrBattleConflict)

	forRoom, err := c.BattleForRoom(ctx, "rB")
	require.NoError(t, err)
	assert.Equal(t, b.ID, forRoom.ID)
}

func TestInviteValidation(t *testing.T) {
	ctx := context.Background()
	c, _ := newController(t, testConfig())

	_, err := c.Invite(ctx, "h1", "rA", "rA", 0)
	assert.ErrorIs(t, err, ErrSameRoom)

	_, err = c.Invite(ctx, "h1", "rA", "rIdle", 0)
	assert.ErrorIs(t, err, domain.ErrRoomNotLive)

	_, err = c.Invite(ctx, "h1", "rA", "rB", time.Hour)
	assert.ErrorIs(t, err, domain.ErrInvalidDuration)

	_, err = c.Invite(ctx, "h1", "rA", "rB", -time.Second)
	assert.ErrorIs(t, err, domain.ErrInvalidDuration)

	_, err = c.Invite(ctx, "h1", "rA", "rB", 0)
	require.NoError(t, err)
	_, err = c.Invite(ctx, "h3", "rC", "rB", 0)
	assert.ErrorIs(t, err, domain.ErrBattleConflict)

	cfg := testConfig()
	cfg.Enabled = false
	disabled, _ := newController(t, cfg)
	_, err = disabled.Invite(ctx, "h1", "rA", "rB", 0)
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestDeclineAndExpiry(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cfg := testConfig()
	cfg.InviteTTL = 200 * time.Millisecond
	c, rec := newController(t, cfg)

	b, err := c.Invite(ctx, "h1", "rA", "rB", 0)
	require.NoError(t, err)
	_, err = c.Await(ctx, b.ID)
	assert.ErrorIs(t, err, ErrDeclined)
	assert.Equal(t, 2, rec.count(domain.EventPKDeclined))

	// Expired invitations leave no cooldown.
	b, err = c.Invite(ctx, "h1", "rA", "rB", 0)
	require.NoError(t, err)
	assert.ErrorIs(t, c.Decline(ctx, b.ID, "h3"), domain.ErrPermissionDenied)
	require.NoError(t, c.Decline(ctx, b.ID, "h2"))
	assert.ErrorIs(t, c.Decline(ctx, b.ID, "h2"), domain.ErrBattleNotFound)

	snap, err := c.Battle(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BattleEnded, snap.Status)
}

func TestCooldownAfterBattle(t *testing.T) {
	ctx := context.Background()
	c, _ := newController(t, testConfig())

	b, err := c.Start(ctx, "rA", "rB", time.Minute)
	require.NoError(t, err)
	_, err = c.End(ctx, b.ID, "h1")
	require.NoError(t, err)

	_, err = c.Start(ctx, "rA", "rC", time.Minute)
	assert.ErrorIs(t, err, ErrCoolingDown)
}

func TestScoringSides(t *testing.T) {
	ctx := context.Background()
	c, _ := newController(t, testConfig())

	b, err := c.Start(ctx, "rA", "rB", time.Minute)
	require.NoError(t, err)

	c.OnGift(ctx, domain.GiftEvent{RoomID: "rA", Side: domain.SideB, Value: 1, Quantity: 3})
	c.OnGift(ctx, domain.GiftEvent{RoomID: "rA", ReceiverID: "h2", Value: 2, Quantity: 1})
	c.OnGift(ctx, domain.GiftEvent{RoomID: "rA", Value: 7, Quantity: 1})
	c.OnGift(ctx, domain.GiftEvent{RoomID: "rB", Value: 4, Quantity: 1})

	snap, err := c.Battle(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), snap.ScoreA)
	assert.Equal(t, int64(9), snap.ScoreB)
}

func TestConfigView(t *testing.T) {
	c, _ := newController(t, testConfig())
	cfg := c.Config()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 600, cfg.MaxDuration)
	assert.Equal(t, 60, cfg.CoolDown)
	assert.Equal(t, 2, cfg.MaxParticipants)
	assert.Equal(t, 1.5, cfg.RewardMultiplier)
}
