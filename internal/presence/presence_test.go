package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/live-engine/internal/config"
	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
	"github.com/weiawesome/wes-io-live/live-engine/internal/idgen"
	"github.com/weiawesome/wes-io-live/live-engine/internal/repository"
	"github.com/weiawesome/wes-io-live/live-engine/internal/room"
	"github.com/weiawesome/wes-io-live/live-engine/internal/testutil"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/pubsub"
)

type bench struct {
	hub      *Hub
	fanout   *Fanout
	registry *room.Registry
	svc      *Service
}

func newBench(t *testing.T, bus pubsub.PubSub, instance string) *bench {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(config.WebSocketConfig{SendBuffer: 64})
	go hub.Run(ctx)

	db := testutil.NewDB(t)
	fanout := NewFanout(hub, bus, instance)
	reg := room.NewRegistry(repository.NewGormRoomRepository(db), nil, idgen.Default().Room, fanout, nil, 0, nil, nil)
	return &bench{hub: hub, fanout: fanout, registry: reg, svc: NewService(reg, hub, fanout)}
}

func (b *bench) connect(id, userID string) *Client {
	c := NewClient(b.hub, nil, id, domain.UserProfile{ID: userID, Name: userID})
	b.hub.Register(c)
	return c
}

func (b *bench) createRoom(t *testing.T, hostID string) string {
	t.Helper()
	r, err := b.registry.CreateRoom(context.Background(), hostID, domain.CreateRoomRequest{Title: "t"})
	require.NoError(t, err)
	return r.ID
}

// next returns the next frame type received by c.
func next(t *testing.T, c *Client) domain.Envelope {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		var env domain.Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return domain.Envelope{}
	}
}

// drain collects frame types until none arrive for a short while.
func drain(c *Client) []string {
	var types []string
	for {
		select {
		case data, ok := <-c.Send:
			if !ok {
				return types
			}
			var env domain.Envelope
			if json.Unmarshal(data, &env) == nil {
				types = append(types, env.Type)
			}
		case <-time.After(100 * time.Millisecond):
			return types
		}
	}
}

func TestJoinAnnouncesToOthers(t *testing.T) {
	ctx := context.Background()
	b := newBench(t, nil, "i1")
	roomID := b.createRoom(t, "host")

	alice := b.connect("s-alice", "alice")
	bob := b.connect("s-bob", "bob")

	_, err := b.svc.Join(ctx, roomID, alice.Profile, alice.ID)
	require.NoError(t, err)
	drain(alice)

	roster, err := b.svc.Join(ctx, roomID, bob.Profile, bob.ID)
	require.NoError(t, err)
	assert.Len(t, roster, 2)

	got := drain(alice)
	assert.Equal(t, []string{domain.EventUserJoined, domain.EventUserStatus, domain.EventOnlineUsersUpdate}, got)

	// The joiner does not receive its own user:joined.
	assert.NotContains(t, drain(bob), domain.EventUserJoined)
}

func TestJoinUnknownRoom(t *testing.T) {
	b := newBench(t, nil, "i1")
	c := b.connect("s1", "u1")
	_, err := b.svc.Join(context.Background(), "missing", c.Profile, c.ID)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestRoomEventsArriveInOrder(t *testing.T) {
	ctx := context.Background()
	b := newBench(t, nil, "i1")
	roomID := b.createRoom(t, "host")
	c := b.connect("s1", "u1")
	_, err := b.svc.Join(ctx, roomID, c.Profile, c.ID)
	require.NoError(t, err)
	drain(c)

	for i := 0; i < 20; i++ {
		b.svc.Broadcast(ctx, roomID, domain.EventPKScore, domain.PKScoreData{ScoreA: int64(i)})
	}
	for i := 0; i < 20; i++ {
		env := next(t, c)
		var score domain.PKScoreData
		require.NoError(t, json.Unmarshal(env.Data, &score))
		assert.Equal(t, int64(i), score.ScoreA)
	}
}

func TestSecondTabDisconnectKeepsUserOnline(t *testing.T) {
	ctx := context.Background()
	b := newBench(t, nil, "i1")
	roomID := b.createRoom(t, "host")

	watcher := b.connect("s-w", "watcher")
	tab1 := b.connect("tab-1", "u1")
	tab2 := b.connect("tab-2", "u1")
	for _, c := range []*Client{watcher, tab1, tab2} {
		_, err := b.svc.Join(ctx, roomID, c.Profile, c.ID)
		require.NoError(t, err)
	}
	drain(watcher)

	b.svc.Disconnect(ctx, tab1.ID)
	assert.Equal(t, []string{domain.EventOnlineUsersUpdate}, drain(watcher))
	assert.Len(t, b.svc.Roster(roomID), 2)

	b.svc.Disconnect(ctx, tab2.ID)
	assert.Equal(t, []string{domain.EventUserLeft, domain.EventUserStatus, domain.EventOnlineUsersUpdate}, drain(watcher))
	assert.Len(t, b.svc.Roster(roomID), 1)

	// Repeated leave is a no-op.
	b.svc.Leave(ctx, roomID, tab2.ID)
	assert.Empty(t, drain(watcher))
}

func TestConcurrentTabsJoinAnnouncedOnce(t *testing.T) {
	ctx := context.Background()
	b := newBench(t, nil, "i1")
	roomID := b.createRoom(t, "host")

	watcher := b.connect("s-w", "watcher")
	_, err := b.svc.Join(ctx, roomID, watcher.Profile, watcher.ID)
	require.NoError(t, err)
	drain(watcher)

	tabs := make([]*Client, 6)
	for i := range tabs {
		tabs[i] = b.connect(fmt.Sprintf("tab-%d", i), "u1")
	}
	var wg sync.WaitGroup
	for _, c := range tabs {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			_, err := b.svc.Join(ctx, roomID, c.Profile, c.ID)
			assert.NoError(t, err)
		}(c)
	}
	wg.Wait()

	joined := 0
	for _, typ := range drain(watcher) {
		if typ == domain.EventUserJoined {
			joined++
		}
	}
	assert.Equal(t, 1, joined)
	assert.Len(t, b.svc.Roster(roomID), 2)
}

func TestKickUserRemovesEverySocket(t *testing.T) {
	ctx := context.Background()
	b := newBench(t, nil, "i1")
	roomID := b.createRoom(t, "host")

	tab1 := b.connect("tab-1", "u1")
	tab2 := b.connect("tab-2", "u1")
	for _, c := range []*Client{tab1, tab2} {
		_, err := b.svc.Join(ctx, roomID, c.Profile, c.ID)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, b.svc.KickUser(ctx, "host", roomID, "u1"))
	assert.Empty(t, b.svc.Roster(roomID))
	assert.Equal(t, 0, b.hub.RoomSize(roomID))
}

func TestStopBroadcastEvictsSockets(t *testing.T) {
	ctx := context.Background()
	b := newBench(t, nil, "i1")
	roomID := b.createRoom(t, "host")
	c := b.connect("s1", "u1")

	_, err := b.registry.StartBroadcast(ctx, roomID)
	require.NoError(t, err)
	_, err = b.svc.Join(ctx, roomID, c.Profile, c.ID)
	require.NoError(t, err)
	drain(c)

	_, err = b.registry.StopBroadcast(ctx, roomID)
	require.NoError(t, err)

	got := drain(c)
	assert.Contains(t, got, domain.EventStreamEnded)
	assert.Empty(t, b.svc.Roster(roomID))
	assert.Equal(t, 0, b.hub.RoomSize(roomID))
}

func TestSlowClientIsDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(config.WebSocketConfig{SendBuffer: 1})
	go hub.Run(ctx)

	c := NewClient(hub, nil, "slow", domain.UserProfile{ID: "u1"})
	hub.Register(c)
	hub.SendToUser("u1", []byte("1"))
	hub.SendToUser("u1", []byte("2"))

	assert.Eventually(t, func() bool {
		_, ok := hub.Client("slow")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

type memBus struct {
	mu   sync.Mutex
	subs []chan *pubsub.Event
}

func (m *memBus) Publish(_ context.Context, _ string, ev *pubsub.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		ch <- ev
	}
	return nil
}

func (m *memBus) Subscribe(ctx context.Context, channel string) (<-chan *pubsub.Event, error) {
	return m.SubscribePattern(ctx, channel)
}

// SubscribePattern receives every event, so each bench gets events once
// through its single pattern subscription and ignores the global one.
func (m *memBus) SubscribePattern(_ context.Context, pattern string) (<-chan *pubsub.Event, error) {
	ch := make(chan *pubsub.Event, 64)
	if pattern != pubsub.PatternRoomEvents {
		return ch, nil
	}
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch, nil
}

func (m *memBus) Unsubscribe(context.Context, string) error { return nil }
func (m *memBus) Close() error                              { return nil }

func TestRelayBetweenInstances(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := &memBus{}

	a := newBench(t, bus, "i1")
	b := newBench(t, bus, "i2")
	go a.fanout.Listen(ctx)
	go b.fanout.Listen(ctx)
	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return len(bus.subs) == 2
	}, 2*time.Second, 10*time.Millisecond)

	local := a.connect("s-a", "ua")
	remote := b.connect("s-b", "ub")
	a.hub.JoinRoom(local.ID, "r1")
	b.hub.JoinRoom(remote.ID, "r1")

	a.fanout.Broadcast(ctx, "r1", domain.EventStreamStatus, domain.StreamStatusData{StreamID: "r1", Status: domain.StatusOnline})

	assert.Equal(t, domain.EventStreamStatus, next(t, local).Type)
	assert.Equal(t, domain.EventStreamStatus, next(t, remote).Type)
	// The origin instance ignores its own relayed copy.
	assert.Empty(t, drain(local))

	a.fanout.SendToUser(ctx, "ub", domain.EventPaymentSuccess, domain.PaymentSuccessData{Diamonds: 10})
	assert.Equal(t, domain.EventPaymentSuccess, next(t, remote).Type)
}
