// Package pk runs PK battles between two live rooms.
package pk

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-io-live/live-engine/internal/audit"
	"github.com/weiawesome/wes-io-live/live-engine/internal/config"
	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
	"github.com/weiawesome/wes-io-live/live-engine/internal/idgen"
	"github.com/weiawesome/wes-io-live/live-engine/internal/kafka"
	"github.com/weiawesome/wes-io-live/live-engine/internal/repository"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/log"
)

const maxParticipants = 2

var (
	ErrDisabled    = errors.New("pk battles are disabled")
	ErrSameRoom    = errors.New("a room cannot battle itself")
	ErrCoolingDown = errors.New("room is cooling down after a battle")
	ErrDeclined    = errors.New("battle was not accepted")
)

// Rooms resolves battle rooms.
type Rooms interface {
	Room(ctx context.Context, roomID string) (*domain.Room, error)
}

// Publisher delivers battle events.
type Publisher interface {
	Broadcast(ctx context.Context, roomID, event string, payload interface{})
	SendToUser(ctx context.Context, userID, event string, payload interface{})
}

// Controller owns every pending and active battle.
type Controller struct {
	cfg       config.PKConfig
	rooms     Rooms
	users     repository.UserRepository
	publisher Publisher
	producer  kafka.LiveEventProducer
	ids       idgen.Generator
	now       func() time.Time

	mu       sync.Mutex
	battles  map[string]*battle // every known battle, ended ones until retention expires
	byRoom   map[string]*battle // pending and active battles
	cooldown map[string]time.Time
}

// NewController creates a battle controller. producer may be nil.
func NewController(cfg config.PKConfig, rooms Rooms, users repository.UserRepository, publisher Publisher, producer kafka.LiveEventProducer, ids idgen.Generator) *Controller {
	if producer == nil {
		producer = kafka.NopProducer{}
	}
	return &Controller{
		cfg:       cfg,
		rooms:     rooms,
		users:     users,
		publisher: publisher,
		producer:  producer,
		ids:       ids,
		now:       time.Now,
		battles:   make(map[string]*battle),
		byRoom:    make(map[string]*battle),
		cooldown:  make(map[string]time.Time),
	}
}

// Config returns the public battle configuration.
func (c *Controller) Config() domain.PKConfig {
	return domain.PKConfig{
		Enabled:          c.cfg.Enabled,
		MinDiamonds:      c.cfg.MinDiamonds,
		MaxDuration:      int(c.cfg.MaxDuration / time.Second),
		DefaultDuration:  int(c.cfg.DefaultDuration / time.Second),
		CoolDown:         int(c.cfg.Cooldown / time.Second),
		RewardMultiplier: c.cfg.RewardMultiplier,
		MaxParticipants:  maxParticipants,
	}
}

// Invite proposes a battle from the inviter's room to another live room.
func (c *Controller) Invite(ctx context.Context, inviterID, roomAID, roomBID string, duration time.Duration) (*domain.Battle, error) {
	roomA, roomB, duration, err := c.check(ctx, roomAID, roomBID, duration)
	if err != nil {
		return nil, err
	}
	if roomA.HostID != inviterID {
		return nil, domain.ErrPermissionDenied
	}

	b, err := c.open(roomA, roomB, duration, domain.BattlePending)
	if err != nil {
		return nil, err
	}

	snapshot := b.state
	go b.run(c)

	c.publisher.SendToUser(ctx, snapshot.HostBID, domain.EventPKInvite, domain.PKInviteData{
		BattleID:  snapshot.ID,
		FromRoom:  snapshot.RoomAID,
		ToRoom:    snapshot.RoomBID,
		InviterID: inviterID,
		Duration:  snapshot.DurationSeconds(),
		ExpiresIn: int(c.cfg.InviteTTL / time.Second),
	})
	c.logger(snapshot.ID).Info().Str(log.FieldUserID, inviterID).Str("room_b", roomBID).Msg("battle invitation sent")
	return &snapshot, nil
}

// Accept activates a pending battle. Only the invited host may accept.
func (c *Controller) Accept(ctx context.Context, battleID, accepterID string) (*domain.Battle, error) {
	b, err := c.lookup(battleID)
	if err != nil {
		return nil, err
	}
	reply := make(chan error, 1)
	res, err := request(ctx, b, acceptMsg{userID: accepterID, reply: reply}, reply)
	if errors.Is(err, errBattleClosed) {
		return nil, domain.ErrBattleNotFound
	}
	if err != nil {
		return nil, err
	}
	if res != nil {
		return nil, res
	}
	return c.Battle(ctx, battleID)
}

// Decline discards a pending battle.
func (c *Controller) Decline(ctx context.Context, battleID, userID string) error {
	b, err := c.lookup(battleID)
	if err != nil {
		return err
	}
	reply := make(chan error, 1)
	res, err := request(ctx, b, declineMsg{userID: userID, reply: reply}, reply)
	if errors.Is(err, errBattleClosed) {
		return domain.ErrBattleNotFound
	}
	if err != nil {
		return err
	}
	return res
}

// Start activates a battle between two live rooms without an invitation.
func (c *Controller) Start(ctx context.Context, roomAID, roomBID string, duration time.Duration) (*domain.Battle, error) {
	roomA, roomB, duration, err := c.check(ctx, roomAID, roomBID, duration)
	if err != nil {
		return nil, err
	}
	b, err := c.open(roomA, roomB, duration, domain.BattleActive)
	if err != nil {
		return nil, err
	}
	b.activate(c)
	snapshot := b.state
	go b.run(c)

	audit.Record(log.WithRoom(ctx, roomAID), audit.Entry{
		Action: audit.ActionPKStart,
		RoomID: roomAID,
		Target: roomBID,
	}, "battle started")
	return &snapshot, nil
}

func (c *Controller) check(ctx context.Context, roomAID, roomBID string, duration time.Duration) (*domain.Room, *domain.Room, time.Duration, error) {
	if !c.cfg.Enabled {
		return nil, nil, 0, ErrDisabled
	}
	if roomAID == roomBID {
		return nil, nil, 0, ErrSameRoom
	}
	if duration == 0 {
		duration = c.cfg.DefaultDuration
	}
	if duration <= 0 || (c.cfg.MaxDuration > 0 && duration > c.cfg.MaxDuration) {
		return nil, nil, 0, domain.ErrInvalidDuration
	}

	roomA, err := c.rooms.Room(ctx, roomAID)
	if err != nil {
		return nil, nil, 0, err
	}
	roomB, err := c.rooms.Room(ctx, roomBID)
	if err != nil {
		return nil, nil, 0, err
	}
	if !roomA.IsLive || !roomB.IsLive {
		return nil, nil, 0, domain.ErrRoomNotLive
	}
	return roomA, roomB, duration, nil
}

// open reserves both rooms for a new battle.
func (c *Controller) open(roomA, roomB *domain.Room, duration time.Duration, status domain.BattleStatus) (*battle, error) {
	id, err := c.ids.Generate()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, roomID := range []string{roomA.ID, roomB.ID} {
		if _, busy := c.byRoom[roomID]; busy {
			return nil, domain.ErrBattleConflict
		}
		if until, ok := c.cooldown[roomID]; ok && now.Before(until) {
			return nil, ErrCoolingDown
		}
	}

	b := newBattle(domain.Battle{
		ID:        id,
		RoomAID:   roomA.ID,
		RoomBID:   roomB.ID,
		HostAID:   roomA.HostID,
		HostBID:   roomB.HostID,
		Duration:  duration,
		Status:    status,
		CreatedAt: now,
	})
	c.battles[id] = b
	c.byRoom[roomA.ID] = b
	c.byRoom[roomB.ID] = b
	return b, nil
}

// release frees the rooms of a closed battle.
func (c *Controller) release(b *battle, cool bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	until := c.now().Add(c.cfg.Cooldown)
	for _, roomID := range []string{b.state.RoomAID, b.state.RoomBID} {
		if c.byRoom[roomID] == b {
			delete(c.byRoom, roomID)
		}
		if cool && c.cfg.Cooldown > 0 {
			c.cooldown[roomID] = until
		}
	}

	retain := c.cfg.Cooldown
	if retain < time.Minute {
		retain = time.Minute
	}
	time.AfterFunc(retain, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.battles[b.id] == b {
			delete(c.battles, b.id)
		}
	})
}

// OnGift scores a completed gift for the battle of its room.
func (c *Controller) OnGift(ctx context.Context, ev domain.GiftEvent) {
	c.mu.Lock()
	b, ok := c.byRoom[ev.RoomID]
	c.mu.Unlock()
	if !ok {
		return
	}
	if err := b.send(ctx, giftMsg{ev: ev}); err != nil && !errors.Is(err, errBattleClosed) {
		c.logger(b.id).Warn().Err(err).Str(log.FieldTransactionID, ev.TransactionID).Msg("failed to score gift")
	}
}

// End finishes a battle. Only its hosts or an admin may end it; ending an
// ended battle returns its result again.
func (c *Controller) End(ctx context.Context, battleID, callerID string) (*domain.BattleResult, error) {
	b, err := c.lookup(battleID)
	if err != nil {
		return nil, err
	}

	admin := false
	if callerID != b.hostA && callerID != b.hostB {
		if u, err := c.users.GetByID(ctx, callerID); err == nil {
			admin = u.IsAdmin()
		}
		if !admin {
			return nil, domain.ErrPermissionDenied
		}
	}

	reply := make(chan error, 1)
	res, err := request(ctx, b, endMsg{userID: callerID, admin: admin, reply: reply}, reply)
	if err != nil && !errors.Is(err, errBattleClosed) {
		return nil, err
	}
	if res != nil {
		return nil, res
	}

	<-b.done
	if b.result == nil {
		return nil, ErrDeclined
	}
	audit.Record(ctx, audit.Entry{Action: audit.ActionPKEnd, UserID: callerID, Target: battleID}, "battle end requested")
	result := *b.result
	return &result, nil
}

// Battle returns a snapshot of a battle.
func (c *Controller) Battle(ctx context.Context, battleID string) (*domain.Battle, error) {
	b, err := c.lookup(battleID)
	if err != nil {
		return nil, err
	}
	return c.snapshot(ctx, b)
}

// BattleForRoom returns the pending or active battle of a room.
func (c *Controller) BattleForRoom(ctx context.Context, roomID string) (*domain.Battle, error) {
	c.mu.Lock()
	b, ok := c.byRoom[roomID]
	c.mu.Unlock()
	if !ok {
		return nil, domain.ErrBattleNotFound
	}
	return c.snapshot(ctx, b)
}

func (c *Controller) snapshot(ctx context.Context, b *battle) (*domain.Battle, error) {
	reply := make(chan domain.Battle, 1)
	state, err := request(ctx, b, snapshotMsg{reply: reply}, reply)
	if errors.Is(err, errBattleClosed) {
		final := b.final
		return &final, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// Await blocks until the battle ends and returns its result.
func (c *Controller) Await(ctx context.Context, battleID string) (*domain.BattleResult, error) {
	b, err := c.lookup(battleID)
	if err != nil {
		return nil, err
	}
	select {
	case <-b.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if b.result == nil {
		return nil, ErrDeclined
	}
	result := *b.result
	return &result, nil
}

func (c *Controller) lookup(battleID string) (*battle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.battles[battleID]
	if !ok {
		return nil, domain.ErrBattleNotFound
	}
	return b, nil
}

func (c *Controller) toRooms(state domain.Battle, event string, payload interface{}) {
	ctx := context.Background()
	c.publisher.Broadcast(ctx, state.RoomAID, event, payload)
	c.publisher.Broadcast(ctx, state.RoomBID, event, payload)
}

func (c *Controller) ended(result domain.BattleResult) {
	if err := c.producer.ProducePKEnded(context.Background(), result); err != nil {
		c.logger(result.BattleID).Warn().Err(err).Msg("failed to produce pk_ended")
	}
}

func (c *Controller) logger(battleID string) *zerolog.Logger {
	l := log.L().With().Str(log.FieldBattleID, battleID).Logger()
	return &l
}
