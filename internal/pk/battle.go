package pk

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
)

// Decline reasons.
const (
	ReasonDeclined  = "declined"
	ReasonExpired   = "expired"
	ReasonCancelled = "cancelled"
)

var errBattleClosed = errors.New("battle closed")

type acceptMsg struct {
	userID string
	reply  chan error
}

type declineMsg struct {
	userID string
	reply  chan error
}

type endMsg struct {
	userID string
	admin  bool
	reply  chan error
}

type giftMsg struct {
	ev domain.GiftEvent
}

type snapshotMsg struct {
	reply chan domain.Battle
}

// battle is an actor: its goroutine is the only writer of state.
type battle struct {
	id    string
	hostA string
	hostB string
	inbox chan interface{}
	done  chan struct{}

	// Written by the actor before done is closed.
	final  domain.Battle
	result *domain.BattleResult
	reason string

	state domain.Battle
}

func newBattle(state domain.Battle) *battle {
	return &battle{
		id:    state.ID,
		hostA: state.HostAID,
		hostB: state.HostBID,
		inbox: make(chan interface{}, 64),
		done:  make(chan struct{}),
		state: state,
	}
}

// send delivers msg unless the battle has already closed.
func (b *battle) send(ctx context.Context, msg interface{}) error {
	select {
	case b.inbox <- msg:
		return nil
	case <-b.done:
		return errBattleClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// request sends msg and waits for the actor's reply on reply.
func request[T any](ctx context.Context, b *battle, msg interface{}, reply chan T) (T, error) {
	var zero T
	if err := b.send(ctx, msg); err != nil {
		return zero, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-b.done:
		// The reply is written before the actor exits.
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, errBattleClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (b *battle) run(c *Controller) {
	defer close(b.done)

	var expire, countdown <-chan time.Time
	if b.state.Status == domain.BattlePending {
		t := time.NewTimer(c.cfg.InviteTTL)
		defer t.Stop()
		expire = t.C
	} else {
		t := time.NewTimer(b.state.Duration)
		defer t.Stop()
		countdown = t.C
	}

	for {
		select {
		case <-expire:
			b.discard(c, ReasonExpired)
			return

		case <-countdown:
			b.finish(c)
			return

		case m := <-b.inbox:
			switch m := m.(type) {
			case acceptMsg:
				if b.state.Status != domain.BattlePending {
					m.reply <- domain.ErrBattleConflict
					continue
				}
				if m.userID != b.state.HostBID {
					m.reply <- domain.ErrPermissionDenied
					continue
				}
				expire = nil
				t := time.NewTimer(b.state.Duration)
				defer t.Stop()
				countdown = t.C
				b.activate(c)
				m.reply <- nil

			case declineMsg:
				if b.state.Status != domain.BattlePending {
					m.reply <- domain.ErrBattleConflict
					continue
				}
				if m.userID != b.state.HostAID && m.userID != b.state.HostBID {
					m.reply <- domain.ErrPermissionDenied
					continue
				}
				b.discard(c, ReasonDeclined)
				m.reply <- nil
				return

			case endMsg:
				if !m.admin && m.userID != b.state.HostAID && m.userID != b.state.HostBID {
					m.reply <- domain.ErrPermissionDenied
					continue
				}
				if b.state.Status == domain.BattlePending {
					b.discard(c, ReasonCancelled)
				} else {
					b.finish(c)
				}
				m.reply <- nil
				return

			case giftMsg:
				if b.state.Status == domain.BattleActive {
					b.score(c, m.ev)
				}

			case snapshotMsg:
				m.reply <- b.state
			}
		}
	}
}

func (b *battle) activate(c *Controller) {
	b.state.Status = domain.BattleActive
	b.state.StartedAt = c.now()

	data := domain.PKStartedData{
		BattleID:  b.id,
		RoomAID:   b.state.RoomAID,
		RoomBID:   b.state.RoomBID,
		HostAID:   b.state.HostAID,
		HostBID:   b.state.HostBID,
		Duration:  b.state.DurationSeconds(),
		StartedAt: b.state.StartedAt.UnixMilli(),
	}
	c.toRooms(b.state, domain.EventPKStarted, data)
	c.logger(b.id).Info().Int("duration", data.Duration).Msg("battle started")
}

// sideOf picks the scoring side: explicit side, then receiver, then room.
func (b *battle) sideOf(ev domain.GiftEvent) domain.Side {
	switch {
	case ev.Side == domain.SideA || ev.Side == domain.SideB:
		return ev.Side
	case ev.ReceiverID != "" && ev.ReceiverID == b.state.HostAID:
		return domain.SideA
	case ev.ReceiverID != "" && ev.ReceiverID == b.state.HostBID:
		return domain.SideB
	case ev.RoomID == b.state.RoomAID:
		return domain.SideA
	default:
		return domain.SideB
	}
}

func (b *battle) score(c *Controller, ev domain.GiftEvent) {
	points := ev.Value * int64(ev.Quantity)
	if points <= 0 {
		return
	}
	if b.sideOf(ev) == domain.SideA {
		b.state.ScoreA += points
	} else {
		b.state.ScoreB += points
	}
	c.toRooms(b.state, domain.EventPKScore, domain.PKScoreData{
		BattleID: b.id,
		ScoreA:   b.state.ScoreA,
		ScoreB:   b.state.ScoreB,
	})
}

func (b *battle) finish(c *Controller) {
	b.state.Status = domain.BattleEnded
	result := domain.NewBattleResult(&b.state)
	b.final = b.state
	b.result = &result

	c.release(b, true)
	c.toRooms(b.state, domain.EventPKEnded, result)
	c.logger(b.id).Info().
		Int64("score_a", result.ScoreA).
		Int64("score_b", result.ScoreB).
		Str("winner", string(result.Winner)).
		Msg("battle ended")
	c.ended(result)
}

func (b *battle) discard(c *Controller, reason string) {
	b.state.Status = domain.BattleEnded
	b.final = b.state
	b.reason = reason

	c.release(b, false)
	data := domain.PKDeclinedData{BattleID: b.id, Reason: reason}
	c.publisher.SendToUser(context.Background(), b.state.HostAID, domain.EventPKDeclined, data)
	c.publisher.SendToUser(context.Background(), b.state.HostBID, domain.EventPKDeclined, data)
	c.logger(b.id).Info().Str("reason", reason).Msg("battle invitation closed")
}
