package presence

import (
	"context"
	"encoding/json"

	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/log"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/pubsub"
)

// evictEvent is relayed so every instance drops the room's subscriptions.
const evictEvent = "room:evict"

// Fanout delivers events to local sockets and relays them to other engine
// instances through the pub/sub bus.
type Fanout struct {
	hub      *Hub
	bus      pubsub.PubSub
	instance string
}

// NewFanout creates a Fanout. A nil bus keeps delivery local.
func NewFanout(hub *Hub, bus pubsub.PubSub, instanceID string) *Fanout {
	return &Fanout{hub: hub, bus: bus, instance: instanceID}
}

// Broadcast sends an event to every socket joined to a room.
func (f *Fanout) Broadcast(ctx context.Context, roomID, event string, payload interface{}) {
	f.broadcast(ctx, roomID, event, payload, "")
}

// BroadcastExcept sends an event to a room, skipping one socket.
func (f *Fanout) BroadcastExcept(ctx context.Context, roomID, event string, payload interface{}, socketID string) {
	f.broadcast(ctx, roomID, event, payload, socketID)
}

func (f *Fanout) broadcast(ctx context.Context, roomID, event string, payload interface{}, exclude string) {
	data, err := domain.NewEnvelope(event, payload)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldEvent, event).Msg("failed to encode event")
		return
	}
	f.hub.BroadcastToRoom(roomID, data, exclude)
	f.relay(ctx, pubsub.RoomChannel(roomID), event, roomID, "", payload)
}

// BroadcastGlobal sends an event to every connected socket.
func (f *Fanout) BroadcastGlobal(ctx context.Context, event string, payload interface{}) {
	data, err := domain.NewEnvelope(event, payload)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldEvent, event).Msg("failed to encode event")
		return
	}
	f.hub.BroadcastAll(data)
	f.relay(ctx, pubsub.ChannelGlobal, event, "", "", payload)
}

// SendToUser sends an event to every socket of one user.
func (f *Fanout) SendToUser(ctx context.Context, userID, event string, payload interface{}) {
	data, err := domain.NewEnvelope(event, payload)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldEvent, event).Msg("failed to encode event")
		return
	}
	f.hub.SendToUser(userID, data)
	f.relay(ctx, pubsub.ChannelGlobal, event, "", userID, payload)
}

// EvictRoom unsubscribes every socket from a room.
func (f *Fanout) EvictRoom(ctx context.Context, roomID string) {
	f.hub.ClearRoom(roomID)
	f.relay(ctx, pubsub.RoomChannel(roomID), evictEvent, roomID, "", nil)
}

func (f *Fanout) relay(ctx context.Context, channel, event, roomID, userID string, payload interface{}) {
	if f.bus == nil {
		return
	}
	l := log.Ctx(ctx)

	ev, err := pubsub.NewEvent(event, roomID, f.instance, payload)
	if err != nil {
		l.Error().Err(err).Str(log.FieldEvent, event).Msg("failed to build relay event")
		return
	}
	ev.UserID = userID
	if err := f.bus.Publish(ctx, channel, ev); err != nil {
		l.Warn().Err(err).Str(log.FieldEvent, event).Msg("failed to relay event")
	}
}

// Listen delivers events published by other instances until ctx is done.
func (f *Fanout) Listen(ctx context.Context) error {
	if f.bus == nil {
		<-ctx.Done()
		return nil
	}

	rooms, err := f.bus.SubscribePattern(ctx, pubsub.PatternRoomEvents)
	if err != nil {
		return err
	}
	global, err := f.bus.Subscribe(ctx, pubsub.ChannelGlobal)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-rooms:
			if !ok {
				return nil
			}
			f.deliverRemote(ev)
		case ev, ok := <-global:
			if !ok {
				return nil
			}
			f.deliverRemote(ev)
		}
	}
}

func (f *Fanout) deliverRemote(ev *pubsub.Event) {
	if ev == nil || ev.Origin == f.instance {
		return
	}
	if ev.Type == evictEvent {
		f.hub.ClearRoom(ev.RoomID)
		return
	}

	env := domain.Envelope{Type: ev.Type, Data: ev.Payload}
	data, err := json.Marshal(env)
	if err != nil {
		l := log.L()
		l.Error().Err(err).Str(log.FieldEvent, ev.Type).Msg("failed to encode relayed event")
		return
	}
	switch {
	case ev.RoomID != "":
		f.hub.BroadcastToRoom(ev.RoomID, data, "")
	case ev.UserID != "":
		f.hub.SendToUser(ev.UserID, data)
	default:
		f.hub.BroadcastAll(data)
	}
}
