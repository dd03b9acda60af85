package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
)

type socket struct {
	conn *websocket.Conn
}

func (f *fixture) connectSocket(t *testing.T, userID string) *socket {
	t.Helper()
	srv := httptest.NewServer(f.engine)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + f.token(t, userID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// The client registers after the handshake completes.
	require.Eventually(t, func() bool {
		return f.hub.UserConnected(userID)
	}, 2*time.Second, 10*time.Millisecond)
	return &socket{conn: conn}
}

func (s *socket) send(t *testing.T, eventType string, payload interface{}) {
	t.Helper()
	data, err := domain.NewEnvelope(eventType, payload)
	require.NoError(t, err)
	require.NoError(t, s.conn.WriteMessage(websocket.TextMessage, data))
}

func (s *socket) next(t *testing.T) domain.Envelope {
	t.Helper()
	require.NoError(t, s.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := s.conn.ReadMessage()
	require.NoError(t, err)
	var env domain.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

// until reads frames until one of the given type arrives.
func (s *socket) until(t *testing.T, eventType string) domain.Envelope {
	t.Helper()
	for {
		env := s.next(t)
		if env.Type == eventType {
			return env
		}
	}
}

func TestWebSocketRequiresToken(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.engine)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketJoinAndChat(t *testing.T) {
	f := newFixture(t)
	fan := f.connectSocket(t, "fan")

	fan.send(t, domain.EventJoinStream, domain.JoinStreamData{RoomID: f.roomID})
	env := fan.until(t, domain.EventRoomJoined)

	var joined domain.RoomJoinedData
	require.NoError(t, json.Unmarshal(env.Data, &joined))
	assert.Equal(t, f.roomID, joined.RoomID)
	assert.False(t, joined.IsHost)
	require.Len(t, joined.Users, 1)
	assert.Equal(t, "fan", joined.Users[0].ID)

	fan.send(t, domain.EventStreamChat, domain.ChatData{RoomID: f.roomID, Text: "hello"})
	env = fan.until(t, domain.EventStreamChat)
	var chat domain.ChatMessageData
	require.NoError(t, json.Unmarshal(env.Data, &chat))
	assert.Equal(t, "hello", chat.Text)
}

func TestWebSocketPingAndUnknown(t *testing.T) {
	f := newFixture(t)
	fan := f.connectSocket(t, "fan")

	fan.send(t, domain.EventPing, nil)
	assert.Equal(t, domain.EventPong, fan.next(t).Type)

	fan.send(t, "bogus", nil)
	env := fan.next(t)
	require.Equal(t, domain.EventError, env.Type)
	var e domain.ErrorData
	require.NoError(t, json.Unmarshal(env.Data, &e))
	assert.Equal(t, domain.ErrCodeBadRequest, e.Code)
}

func TestWebSocketStreamControlHostOnly(t *testing.T) {
	f := newFixture(t)
	fan := f.connectSocket(t, "fan")
	host := f.connectSocket(t, "host")

	fan.send(t, domain.EventStreamStarted, domain.StreamRefData{StreamID: f.roomID})
	env := fan.until(t, domain.EventError)
	var e domain.ErrorData
	require.NoError(t, json.Unmarshal(env.Data, &e))
	assert.Equal(t, domain.ErrCodeForbidden, e.Code)
	assert.False(t, f.registry.IsLive(f.roomID))

	host.send(t, domain.EventStreamStarted, domain.StreamRefData{StreamID: f.roomID})
	host.until(t, domain.EventStreamStarted)
	assert.True(t, f.registry.IsLive(f.roomID))

	host.send(t, domain.EventStreamEnded, domain.StreamRefData{StreamID: f.roomID})
	host.until(t, domain.EventStreamEnded)
	assert.False(t, f.registry.IsLive(f.roomID))
}
