package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
	"github.com/weiawesome/wes-io-live/live-engine/internal/gift"
	"github.com/weiawesome/wes-io-live/live-engine/internal/pk"
	"github.com/weiawesome/wes-io-live/live-engine/internal/presence"
	"github.com/weiawesome/wes-io-live/live-engine/internal/repository"
	"github.com/weiawesome/wes-io-live/live-engine/internal/room"
	"github.com/weiawesome/wes-io-live/live-engine/internal/signaling"
	"github.com/weiawesome/wes-io-live/live-engine/internal/wallet"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/log"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/middleware"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/response"
)

// SessionHistory lists archived broadcast summaries.
type SessionHistory interface {
	List(ctx context.Context, roomID string) ([]domain.SessionSummary, error)
}

// Services are the engine components exposed over HTTP. History may be nil.
type Services struct {
	Registry *room.Registry
	Presence *presence.Service
	Relay    *signaling.Relay
	Gifts    *gift.Processor
	Battles  *pk.Controller
	Ledger   *wallet.Ledger
	Users    repository.UserRepository
	History  SessionHistory
}

// Handler handles REST requests.
type Handler struct {
	svc            Services
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler.
func NewHandler(svc Services, authMiddleware *middleware.AuthMiddleware) *Handler {
	return &Handler{svc: svc, authMiddleware: authMiddleware}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	auth := h.authMiddleware.RequireAuth()
	api := r.Group("/api/v1")
	{
		streams := api.Group("/streams")
		{
			// Public routes
			streams.GET("/live", h.ListLive)
			streams.GET("/:id", h.GetRoom)
			streams.GET("/:id/session", h.GetSession)
			streams.GET("/:id/online-users", h.OnlineUsers)
			streams.GET("/:id/history", h.SessionHistory)
			streams.GET("/:id/battle", h.RoomBattle)

			// Protected routes
			streams.POST("", auth, h.CreateRoom)
			streams.POST("/start-broadcast", auth, h.StartBroadcast)
			streams.POST("/stop-broadcast", auth, h.StopBroadcast)
			streams.PATCH("/:id/toggles", auth, h.SetToggles)
			streams.POST("/:id/gift", auth, h.SendGift)
			streams.POST("/:id/kick", auth, h.KickMember)
		}

		rtc := api.Group("/rtc", auth)
		{
			rtc.POST("/publish", h.Publish)
			rtc.POST("/play", h.Play)
			rtc.DELETE("/sessions/:id", h.EndSession)
			rtc.GET("/rooms/:id/sessions", h.RoomSessions)
		}
		api.DELETE("/clients/:id", auth, h.KickClient)

		api.GET("/gifts", h.ListGifts)
		api.GET("/wallet", auth, h.GetWallet)

		battles := api.Group("/pk")
		{
			battles.GET("/config", h.PKConfig)
			battles.GET("/:id", h.GetBattle)
			battles.POST("/invite", auth, h.InviteBattle)
			battles.POST("/:id/accept", auth, h.AcceptBattle)
			battles.POST("/:id/decline", auth, h.DeclineBattle)
			battles.POST("/:id/end", auth, h.EndBattle)
		}
	}
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}

type streamRef struct {
	StreamID string `json:"streamId" binding:"required"`
}

type giftBody struct {
	GiftID       string      `json:"giftId"`
	GiftName     string      `json:"giftName"`
	Quantity     int         `json:"quantity"`
	TargetID     string      `json:"targetId"`
	Side         domain.Side `json:"side"`
	FromBackpack bool        `json:"fromBackpack"`
}

type kickBody struct {
	UserID string `json:"userId" binding:"required"`
}

type rtcBody struct {
	SDP       string `json:"sdp" binding:"required"`
	StreamURL string `json:"streamUrl" binding:"required"`
	RoomID    string `json:"roomId" binding:"required"`
}

type inviteBody struct {
	FromRoomID string `json:"fromRoomId" binding:"required"`
	ToRoomID   string `json:"toRoomId" binding:"required"`
	Duration   int    `json:"duration"`
}

// CreateRoom creates a new room owned by the caller.
func (h *Handler) CreateRoom(c *gin.Context) {
	var req domain.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	room, err := h.svc.Registry.CreateRoom(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		writeError(c, err, "failed to create room")
		return
	}
	response.Created(c, room)
}

// ListLive lists live rooms, optionally of one category.
func (h *Handler) ListLive(c *gin.Context) {
	rooms, err := h.svc.Registry.ListLive(c.Request.Context(), c.Query("category"))
	if err != nil {
		writeError(c, err, "failed to list live rooms")
		return
	}
	response.Success(c, rooms)
}

// GetRoom returns one room.
func (h *Handler) GetRoom(c *gin.Context) {
	room, err := h.svc.Registry.Room(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to get room")
		return
	}
	response.Success(c, room)
}

// GetSession returns the running session state of a room.
func (h *Handler) GetSession(c *gin.Context) {
	state, err := h.svc.Registry.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to get session")
		return
	}
	response.Success(c, state)
}

// OnlineUsers returns the deduplicated roster of a room.
func (h *Handler) OnlineUsers(c *gin.Context) {
	roomID := c.Param("id")
	if _, err := h.svc.Registry.Room(c.Request.Context(), roomID); err != nil {
		writeError(c, err, "failed to get room")
		return
	}
	response.Success(c, h.svc.Presence.Roster(roomID))
}

// SessionHistory returns the archived summaries of a room's broadcasts.
func (h *Handler) SessionHistory(c *gin.Context) {
	ctx := c.Request.Context()
	roomID := c.Param("id")

	if _, err := h.svc.Registry.Room(ctx, roomID); err != nil {
		writeError(c, err, "failed to get room")
		return
	}
	if h.svc.History == nil {
		response.Success(c, []domain.SessionSummary{})
		return
	}
	summaries, err := h.svc.History.List(ctx, roomID)
	if err != nil {
		writeError(c, err, "failed to list session history")
		return
	}
	response.Success(c, summaries)
}

// requireHost aborts unless the caller hosts the room.
func (h *Handler) requireHost(c *gin.Context, roomID string) bool {
	isHost, err := h.svc.Registry.IsHost(c.Request.Context(), roomID, middleware.GetUserID(c))
	if err != nil {
		writeError(c, err, "failed to get room")
		return false
	}
	if !isHost {
		response.Forbidden(c, "only the host can do this")
		return false
	}
	return true
}

// requireHostOrAdmin aborts unless the caller hosts the room or moderates.
func (h *Handler) requireHostOrAdmin(c *gin.Context, roomID string) bool {
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)

	if middleware.IsAdmin(c) {
		return true
	}
	if u, err := h.svc.Users.GetByID(ctx, userID); err == nil && u.IsAdmin() {
		return true
	}
	return h.requireHost(c, roomID)
}

// StartBroadcast marks the caller's room live.
func (h *Handler) StartBroadcast(c *gin.Context) {
	var req streamRef
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if !h.requireHost(c, req.StreamID) {
		return
	}

	room, err := h.svc.Registry.StartBroadcast(c.Request.Context(), req.StreamID)
	if err != nil {
		writeError(c, err, "failed to start broadcast")
		return
	}
	response.Success(c, room)
}

// StopBroadcast ends the caller's broadcast.
func (h *Handler) StopBroadcast(c *gin.Context) {
	ctx := c.Request.Context()

	var req streamRef
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if !h.requireHost(c, req.StreamID) {
		return
	}

	summary, err := h.svc.Registry.StopBroadcast(ctx, req.StreamID)
	if err != nil {
		writeError(c, err, "failed to stop broadcast")
		return
	}
	if err := h.svc.Relay.EndRoomSessions(ctx, req.StreamID); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, req.StreamID).Msg("failed to end room sessions")
	}
	response.Success(c, summary)
}

// SetToggles changes the host switches of a live room.
func (h *Handler) SetToggles(c *gin.Context) {
	roomID := c.Param("id")

	var patch domain.TogglesPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if !h.requireHost(c, roomID) {
		return
	}

	state, err := h.svc.Registry.SetToggle(c.Request.Context(), roomID, patch)
	if err != nil {
		writeError(c, err, "failed to update toggles")
		return
	}
	response.Success(c, state.Toggles)
}

// SendGift sends a gift into a room.
func (h *Handler) SendGift(c *gin.Context) {
	var body giftBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if body.Quantity == 0 {
		body.Quantity = 1
	}

	req := domain.GiftRequest{
		SenderID: middleware.GetUserID(c),
		RoomID:   c.Param("id"),
		GiftID:   body.GiftID,
		GiftName: body.GiftName,
		Quantity: body.Quantity,
		TargetID: body.TargetID,
		Side:     body.Side,
		Source:   domain.PurchasedSource{},
	}
	if body.FromBackpack {
		req.Source = domain.BackpackSource{}
	}

	tx, err := h.svc.Gifts.SendGift(c.Request.Context(), req)
	if err != nil {
		writeError(c, err, "failed to send gift")
		return
	}
	response.Success(c, tx)
}

// KickMember removes a user's sockets from a room.
func (h *Handler) KickMember(c *gin.Context) {
	roomID := c.Param("id")

	var body kickBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if !h.requireHostOrAdmin(c, roomID) {
		return
	}

	removed := h.svc.Presence.KickUser(c.Request.Context(), middleware.GetUserID(c), roomID, body.UserID)
	response.Success(c, gin.H{"removed": removed})
}

// Publish negotiates a broadcaster session.
func (h *Handler) Publish(c *gin.Context) {
	h.negotiate(c, h.svc.Relay.NegotiatePublish)
}

// Play negotiates a viewer session.
func (h *Handler) Play(c *gin.Context) {
	h.negotiate(c, h.svc.Relay.NegotiatePlay)
}

type negotiateFunc func(ctx context.Context, userID, roomID, streamURL, sdpOffer string) (*domain.Answer, error)

func (h *Handler) negotiate(c *gin.Context, fn negotiateFunc) {
	var body rtcBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	answer, err := fn(c.Request.Context(), middleware.GetUserID(c), body.RoomID, body.StreamURL, body.SDP)
	if err != nil {
		writeError(c, err, "failed to negotiate session")
		return
	}
	response.Success(c, answer)
}

// EndSession tears down a signaling session owned by the caller or its
// room's host.
func (h *Handler) EndSession(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	session, err := h.svc.Relay.Session(ctx, sessionID)
	if err != nil {
		writeError(c, err, "failed to get session")
		return
	}
	if session.UserID != middleware.GetUserID(c) && !h.requireHostOrAdmin(c, session.RoomID) {
		return
	}

	if err := h.svc.Relay.EndSession(ctx, sessionID); err != nil {
		writeError(c, err, "failed to end session")
		return
	}
	response.Success(c, gin.H{"sessionId": sessionID})
}

// RoomSessions lists the active signaling sessions of a room.
func (h *Handler) RoomSessions(c *gin.Context) {
	roomID := c.Param("id")
	if !h.requireHostOrAdmin(c, roomID) {
		return
	}

	sessions, err := h.svc.Relay.Sessions(c.Request.Context(), roomID)
	if err != nil {
		writeError(c, err, "failed to list sessions")
		return
	}
	response.Success(c, sessions)
}

// KickClient disconnects a media client.
func (h *Handler) KickClient(c *gin.Context) {
	if err := h.svc.Relay.Kick(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		writeError(c, err, "failed to kick client")
		return
	}
	response.Success(c, gin.H{"clientId": c.Param("id")})
}

// ListGifts returns the gift catalog.
func (h *Handler) ListGifts(c *gin.Context) {
	gifts, err := h.svc.Gifts.Catalog(c.Request.Context())
	if err != nil {
		writeError(c, err, "failed to list gifts")
		return
	}
	response.Success(c, gifts)
}

// GetWallet returns the caller's balance.
func (h *Handler) GetWallet(c *gin.Context) {
	view, err := h.svc.Ledger.Balance(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, err, "failed to get wallet")
		return
	}
	response.Success(c, view)
}

// PKConfig returns the public battle configuration.
func (h *Handler) PKConfig(c *gin.Context) {
	response.Success(c, h.svc.Battles.Config())
}

// GetBattle returns a battle snapshot.
func (h *Handler) GetBattle(c *gin.Context) {
	b, err := h.svc.Battles.Battle(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to get battle")
		return
	}
	response.Success(c, battleView(b))
}

// RoomBattle returns the battle a room is taking part in.
func (h *Handler) RoomBattle(c *gin.Context) {
	b, err := h.svc.Battles.BattleForRoom(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to get battle")
		return
	}
	response.Success(c, battleView(b))
}

// InviteBattle invites another live room to a battle.
func (h *Handler) InviteBattle(c *gin.Context) {
	var body inviteBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	b, err := h.svc.Battles.Invite(c.Request.Context(), middleware.GetUserID(c),
		body.FromRoomID, body.ToRoomID, time.Duration(body.Duration)*time.Second)
	if err != nil {
		writeError(c, err, "failed to invite battle")
		return
	}
	response.Created(c, battleView(b))
}

// AcceptBattle starts a pending battle.
func (h *Handler) AcceptBattle(c *gin.Context) {
	b, err := h.svc.Battles.Accept(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		writeError(c, err, "failed to accept battle")
		return
	}
	response.Success(c, battleView(b))
}

// DeclineBattle discards a pending battle.
func (h *Handler) DeclineBattle(c *gin.Context) {
	if err := h.svc.Battles.Decline(c.Request.Context(), c.Param("id"), middleware.GetUserID(c)); err != nil {
		writeError(c, err, "failed to decline battle")
		return
	}
	response.Success(c, gin.H{"battleId": c.Param("id")})
}

// EndBattle finishes a battle early.
func (h *Handler) EndBattle(c *gin.Context) {
	result, err := h.svc.Battles.End(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		writeError(c, err, "failed to end battle")
		return
	}
	response.Success(c, result)
}

type battleResponse struct {
	*domain.Battle
	Duration int `json:"duration"`
}

func battleView(b *domain.Battle) battleResponse {
	return battleResponse{Battle: b, Duration: b.DurationSeconds()}
}
