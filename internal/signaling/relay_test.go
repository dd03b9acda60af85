package signaling

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/live-engine/internal/client"
	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
	"github.com/weiawesome/wes-io-live/live-engine/internal/idgen"
	"github.com/weiawesome/wes-io-live/live-engine/internal/repository"
	"github.com/weiawesome/wes-io-live/live-engine/internal/room"
	"github.com/weiawesome/wes-io-live/live-engine/internal/testutil"
)

const offer = "v=0\r\n" +
	"o=- 4215775240449105457 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=rtpmap:96 VP8/90000\r\n"

const offerWithoutMedia = "v=0\r\n" +
	"o=- 4215775240449105457 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n"

type fakeMedia struct {
	fail    error
	calls   int
	kicked  []string
	clients map[string]*client.MediaClientInfo
}

func (m *fakeMedia) answer() (*client.RTCResponse, error) {
	m.calls++
	if m.fail != nil {
		return nil, m.fail
	}
	return &client.RTCResponse{SDP: "answer", SessionID: "srs-" + string(rune('a'+m.calls))}, nil
}

func (m *fakeMedia) Publish(context.Context, string, string) (*client.RTCResponse, error) {
	return m.answer()
}

func (m *fakeMedia) Play(context.Context, string, string) (*client.RTCResponse, error) {
	return m.answer()
}

func (m *fakeMedia) GetClient(_ context.Context, id string) (*client.MediaClientInfo, error) {
	info, ok := m.clients[id]
	if !ok {
		return nil, client.ErrClientNotFound
	}
	return info, nil
}

func (m *fakeMedia) KickClient(_ context.Context, id string) error {
	m.kicked = append(m.kicked, id)
	return nil
}

type nopNotifier struct{}

func (nopNotifier) Broadcast(context.Context, string, string, interface{}) {}
func (nopNotifier) BroadcastGlobal(context.Context, string, interface{})   {}
func (nopNotifier) EvictRoom(context.Context, string)                      {}

type fixture struct {
	relay    *Relay
	media    *fakeMedia
	registry *room.Registry
	sessions *repository.GormSignalingRepository
	roomID   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	testutil.SeedUser(t, db, "host", "Host", 0)
	testutil.SeedUser(t, db, "viewer", "Viewer", 0)
	require.NoError(t, db.Create(&domain.UserModel{ID: "admin", Name: "Admin", Level: domain.AdminLevel}).Error)

	ids := idgen.Default()
	reg := room.NewRegistry(repository.NewGormRoomRepository(db), nil, ids.Room, nopNotifier{}, nil, 0, nil, nil)
	r, err := reg.CreateRoom(context.Background(), "host", domain.CreateRoomRequest{Title: "t"})
	require.NoError(t, err)

	media := &fakeMedia{clients: map[string]*client.MediaClientInfo{}}
	sessions := repository.NewGormSignalingRepository(db)
	return &fixture{
		relay:    NewRelay(media, sessions, reg, repository.NewGormUserRepository(db), ids.Session),
		media:    media,
		registry: reg,
		sessions: sessions,
		roomID:   r.ID,
	}
}

func (f *fixture) url() string {
	return "webrtc://media.local/live/" + f.roomID + "?token=x"
}

func TestPublishStartsBroadcast(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	answer, err := f.relay.NegotiatePublish(ctx, "host", f.roomID, f.url(), offer)
	require.NoError(t, err)
	assert.Equal(t, "answer", answer.SDP)
	assert.NotEmpty(t, answer.SessionID)

	got, err := f.registry.Room(ctx, f.roomID)
	require.NoError(t, err)
	assert.True(t, got.IsLive)

	sessions, err := f.relay.Sessions(ctx, f.roomID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, domain.SessionPublish, sessions[0].Kind)
}

func TestPublishRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.relay.NegotiatePublish(ctx, "viewer", f.roomID, f.url(), offer)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = f.relay.NegotiatePublish(ctx, "host", f.roomID, "webrtc://media.local/live/other", offer)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = f.relay.NegotiatePublish(ctx, "host", f.roomID, f.url(), offerWithoutMedia)
	assert.ErrorIs(t, err, domain.ErrInvalidOffer)

	_, err = f.relay.NegotiatePublish(ctx, "host", f.roomID, f.url(), "not sdp")
	assert.ErrorIs(t, err, domain.ErrInvalidOffer)

	assert.Zero(t, f.media.calls)
	sessions, err := f.relay.Sessions(ctx, f.roomID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestMediaFailureLeavesRoomIdle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.media.fail = errors.New("connection refused")

	_, err := f.relay.NegotiatePublish(ctx, "host", f.roomID, f.url(), offer)
	assert.ErrorIs(t, err, domain.ErrMediaNegotiationFailed)

	got, err := f.registry.Room(ctx, f.roomID)
	require.NoError(t, err)
	assert.False(t, got.IsLive)

	sessions, err := f.relay.Sessions(ctx, f.roomID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestPlayRequiresLiveRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.relay.NegotiatePlay(ctx, "viewer", f.roomID, f.url(), offer)
	assert.ErrorIs(t, err, domain.ErrRoomNotLive)

	_, err = f.relay.NegotiatePublish(ctx, "host", f.roomID, f.url(), offer)
	require.NoError(t, err)
	answer, err := f.relay.NegotiatePlay(ctx, "viewer", f.roomID, f.url(), offer)
	require.NoError(t, err)
	assert.NotEmpty(t, answer.SessionID)
}

func TestEndSessionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	answer, err := f.relay.NegotiatePublish(ctx, "host", f.roomID, f.url(), offer)
	require.NoError(t, err)

	require.NoError(t, f.relay.EndSession(ctx, answer.SessionID))
	got, err := f.registry.Room(ctx, f.roomID)
	require.NoError(t, err)
	assert.False(t, got.IsLive)

	require.NoError(t, f.relay.EndSession(ctx, answer.SessionID))
	assert.ErrorIs(t, f.relay.EndSession(ctx, "missing"), domain.ErrSessionNotFound)
}

func TestKickPermissions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.media.clients["c1"] = &client.MediaClientInfo{ID: "c1", Stream: f.roomID}

	assert.ErrorIs(t, f.relay.Kick(ctx, "viewer", "c1"), domain.ErrPermissionDenied)
	assert.Empty(t, f.media.kicked)

	require.NoError(t, f.relay.Kick(ctx, "host", "c1"))
	require.NoError(t, f.relay.Kick(ctx, "admin", "c1"))
	assert.Equal(t, []string{"c1", "c1"}, f.media.kicked)

	assert.ErrorIs(t, f.relay.Kick(ctx, "admin", "ghost"), client.ErrClientNotFound)
}

func TestRoomFromStreamURL(t *testing.T) {
	cases := map[string]string{
		"webrtc://host/live/r1":          "r1",
		"webrtc://host/live/r1?token=ab": "r1",
		"webrtc://host:8000/live/r1/":    "r1",
	}
	for in, want := range cases {
		got, err := RoomFromStreamURL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := RoomFromStreamURL("webrtc://host")
	assert.Error(t, err)
}
