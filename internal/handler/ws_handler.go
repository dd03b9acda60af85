package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
	"github.com/weiawesome/wes-io-live/live-engine/internal/presence"
	"github.com/weiawesome/wes-io-live/live-engine/internal/repository"
	"github.com/weiawesome/wes-io-live/live-engine/internal/room"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/log"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/middleware"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/response"
)

// WSHandler accepts socket connections and routes their events.
type WSHandler struct {
	hub       *presence.Hub
	presence  *presence.Service
	registry  *room.Registry
	users     repository.UserRepository
	validator middleware.TokenValidator
	upgrader  websocket.Upgrader
}

// NewWSHandler creates a new WebSocket handler. checkOrigin may be nil to
// accept every origin.
func NewWSHandler(hub *presence.Hub, svc *presence.Service, registry *room.Registry, users repository.UserRepository, validator middleware.TokenValidator, checkOrigin func(*http.Request) bool) *WSHandler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &WSHandler{
		hub:       hub,
		presence:  svc,
		registry:  registry,
		users:     users,
		validator: validator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// RegisterRoutes mounts the socket endpoint.
func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.HandleWebSocket)
}

// HandleWebSocket authenticates with the token query parameter and upgrades.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	token := c.Query("token")
	if token == "" {
		response.Unauthorized(c, "missing token")
		return
	}
	claims, err := h.validator.Validate(token)
	if err != nil {
		response.Unauthorized(c, "invalid token")
		return
	}
	profile := h.profileOf(ctx, claims.UserID, claims.Username)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := presence.NewClient(h.hub, conn, uuid.New().String(), profile)
	client.SetDisconnectHandler(func(cl *presence.Client) {
		h.presence.Disconnect(context.Background(), cl.ID)
	})
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.handleMessage)
}

func (h *WSHandler) profileOf(ctx context.Context, userID, username string) domain.UserProfile {
	u, err := h.users.GetByID(ctx, userID)
	if err != nil {
		return domain.UserProfile{ID: userID, Name: username}
	}
	return u.Profile()
}

func (h *WSHandler) handleMessage(client *presence.Client, message []byte) {
	ctx := log.WithLogger(context.Background(), log.L().With().
		Str(log.FieldSocketID, client.ID).
		Str(log.FieldUserID, client.UserID()).
		Logger())

	var env domain.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		h.replyError(client, domain.ErrorData{Code: domain.ErrCodeBadRequest, Message: "invalid message format"})
		return
	}

	var err error
	switch env.Type {
	case domain.EventJoinStream:
		var data domain.JoinStreamData
		if err = decode(env, &data); err == nil {
			err = h.join(ctx, client, data.RoomID)
		}

	case domain.EventLeaveStream:
		var data domain.LeaveStreamData
		if err = decode(env, &data); err == nil {
			h.presence.Leave(ctx, data.RoomID, client.ID)
		}

	case domain.EventStreamStarted:
		var data domain.StreamRefData
		if err = decode(env, &data); err == nil {
			err = h.hostOnly(ctx, client, data.StreamID, func() error {
				_, err := h.registry.StartBroadcast(ctx, data.StreamID)
				return err
			})
		}

	case domain.EventStreamEnded:
		var data domain.StreamRefData
		if err = decode(env, &data); err == nil {
			err = h.hostOnly(ctx, client, data.StreamID, func() error {
				_, err := h.registry.StopBroadcast(ctx, data.StreamID)
				return err
			})
		}

	case domain.EventStreamChat:
		var data domain.ChatData
		if err = decode(env, &data); err == nil {
			err = h.presence.Chat(ctx, client.Profile, data.RoomID, data.Text)
		}

	case domain.EventPing:
		_ = client.Reply(domain.EventPong, nil)

	default:
		h.replyError(client, domain.ErrorData{Code: domain.ErrCodeBadRequest, Message: "unknown message type"})
		return
	}

	if err != nil {
		if !isDecodeError(err) {
			l := log.Ctx(ctx)
			l.Debug().Err(err).Str(log.FieldEvent, env.Type).Msg("socket event rejected")
			h.replyError(client, socketError(err))
			return
		}
		h.replyError(client, domain.ErrorData{Code: domain.ErrCodeBadRequest, Message: "invalid " + env.Type + " payload"})
	}
}

func (h *WSHandler) join(ctx context.Context, client *presence.Client, roomID string) error {
	roster, err := h.presence.Join(ctx, roomID, client.Profile, client.ID)
	if err != nil {
		return err
	}
	r, err := h.registry.Room(ctx, roomID)
	if err != nil {
		return err
	}
	return client.Reply(domain.EventRoomJoined, domain.RoomJoinedData{
		RoomID: roomID,
		IsHost: r.HostID == client.UserID(),
		Room:   r,
		Users:  roster,
	})
}

func (h *WSHandler) hostOnly(ctx context.Context, client *presence.Client, roomID string, fn func() error) error {
	isHost, err := h.registry.IsHost(ctx, roomID, client.UserID())
	if err != nil {
		return err
	}
	if !isHost {
		return domain.ErrPermissionDenied
	}
	return fn()
}

func (h *WSHandler) replyError(client *presence.Client, data domain.ErrorData) {
	_ = client.Reply(domain.EventError, data)
}

type decodeError struct{ error }

func decode(env domain.Envelope, v interface{}) error {
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return decodeError{err}
	}
	return nil
}

func isDecodeError(err error) bool {
	_, ok := err.(decodeError)
	return ok
}
