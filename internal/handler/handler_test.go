package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-live/live-engine/internal/archive"
	"github.com/weiawesome/wes-io-live/live-engine/internal/client"
	"github.com/weiawesome/wes-io-live/live-engine/internal/config"
	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
	"github.com/weiawesome/wes-io-live/live-engine/internal/gift"
	"github.com/weiawesome/wes-io-live/live-engine/internal/idgen"
	"github.com/weiawesome/wes-io-live/live-engine/internal/pk"
	"github.com/weiawesome/wes-io-live/live-engine/internal/presence"
	"github.com/weiawesome/wes-io-live/live-engine/internal/repository"
	"github.com/weiawesome/wes-io-live/live-engine/internal/room"
	"github.com/weiawesome/wes-io-live/live-engine/internal/signaling"
	"github.com/weiawesome/wes-io-live/live-engine/internal/testutil"
	"github.com/weiawesome/wes-io-live/live-engine/internal/wallet"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/jwt"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/middleware"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/response"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/storage"
)

const (
	testSecret    = "test-secret"
	webhookSecret = "hook-secret"
)

const testOffer = "v=0\r\n" +
	"o=- 4215775240449105457 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=rtpmap:96 VP8/90000\r\n"

type stubMedia struct{}

func (stubMedia) Publish(context.Context, string, string) (*client.RTCResponse, error) {
	return &client.RTCResponse{SDP: "answer", SessionID: "srs-pub"}, nil
}

func (stubMedia) Play(context.Context, string, string) (*client.RTCResponse, error) {
	return &client.RTCResponse{SDP: "answer", SessionID: "srs-play"}, nil
}

func (stubMedia) GetClient(context.Context, string) (*client.MediaClientInfo, error) {
	return nil, client.ErrClientNotFound
}

func (stubMedia) KickClient(context.Context, string) error { return nil }

type fixture struct {
	db       *gorm.DB
	jwt      *jwt.Manager
	hub      *presence.Hub
	registry *room.Registry
	engine   *gin.Engine
	hooks    http.Handler
	roomID   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	db := testutil.NewDB(t)
	testutil.SeedUser(t, db, "host", "Host", 0)
	testutil.SeedUser(t, db, "fan", "Fan", 50)
	testutil.SeedGift(t, db, domain.Gift{ID: "g-rose", Name: "Rose", Price: 20})

	ids := idgen.Default()
	users := repository.NewGormUserRepository(db)
	follows := repository.NewGormFollowRepository(db)

	hub := presence.NewHub(config.WebSocketConfig{SendBuffer: 64})
	go hub.Run(ctx)
	fanout := presence.NewFanout(hub, nil, "test")
	store, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	archiver := archive.NewArchiver(store)
	reg := room.NewRegistry(repository.NewGormRoomRepository(db), follows, ids.Room, fanout, nil, 0, archiver, nil)
	svc := presence.NewService(reg, hub, fanout)
	ledger := wallet.NewLedger(repository.NewGormWalletRepository(db), users, ids.Transaction, time.Second)
	relay := signaling.NewRelay(stubMedia{}, repository.NewGormSignalingRepository(db), reg, users, ids.Session)
	gifts := gift.NewProcessor(repository.NewGormGiftRepository(db), ledger, reg, users, follows, svc, nil,
		config.GiftConfig{EarningsShare: 0.5})
	battles := pk.NewController(config.PKConfig{Enabled: true, DefaultDuration: time.Minute, MaxDuration: time.Hour,
		InviteTTL: time.Minute}, reg, users, svc, nil, ids.Battle)
	gifts.AddObserver(battles)

	manager, err := jwt.NewManager(testSecret, "test", time.Hour)
	require.NoError(t, err)
	auth := middleware.NewAuthMiddleware(manager)

	engine := gin.New()
	NewHandler(Services{
		Registry: reg,
		Presence: svc,
		Relay:    relay,
		Gifts:    gifts,
		Battles:  battles,
		Ledger:   ledger,
		Users:    users,
		History:  archiver,
	}, auth).RegisterRoutes(engine)
	NewWSHandler(hub, svc, reg, users, manager, nil).RegisterRoutes(engine)

	r, err := reg.CreateRoom(ctx, "host", domain.CreateRoomRequest{Title: "evening show"})
	require.NoError(t, err)

	return &fixture{
		db:       db,
		jwt:      manager,
		hub:      hub,
		registry: reg,
		engine:   engine,
		hooks:    NewHooksHandler(reg, relay, ledger, svc, webhookSecret).Router(),
		roomID:   r.ID,
	}
}

func (f *fixture) token(t *testing.T, userID string, roles ...string) string {
	t.Helper()
	tok, err := f.jwt.Issue(userID, userID, roles)
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(t *testing.T, method, path, userID string, body interface{}) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(middleware.AuthHeaderKey, middleware.BearerPrefix+f.token(t, userID))
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	var resp response.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w, resp := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
}

func TestCreateRoomRequiresAuth(t *testing.T) {
	f := newFixture(t)

	w, resp := f.do(t, http.MethodPost, "/api/v1/streams", "", domain.CreateRoomRequest{Title: "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, response.CodeUnauthorized, resp.Error.Code)

	w, resp = f.do(t, http.MethodPost, "/api/v1/streams", "fan", domain.CreateRoomRequest{Title: "x"})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, resp.Success)
}

func TestStartBroadcastHostOnly(t *testing.T) {
	f := newFixture(t)
	body := map[string]string{"streamId": f.roomID}

	w, resp := f.do(t, http.MethodPost, "/api/v1/streams/start-broadcast", "fan", body)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, response.CodeForbidden, resp.Error.Code)

	w, _ = f.do(t, http.MethodPost, "/api/v1/streams/start-broadcast", "host", body)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, f.registry.IsLive(f.roomID))

	w, resp = f.do(t, http.MethodGet, "/api/v1/streams/live", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var rooms []domain.Room
	raw, _ := json.Marshal(resp.Data)
	require.NoError(t, json.Unmarshal(raw, &rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, f.roomID, rooms[0].ID)

	w, _ = f.do(t, http.MethodPost, "/api/v1/streams/stop-broadcast", "host", body)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, f.registry.IsLive(f.roomID))

	w, resp = f.do(t, http.MethodGet, "/api/v1/streams/"+f.roomID+"/history", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var history []domain.SessionSummary
	raw, _ = json.Marshal(resp.Data)
	require.NoError(t, json.Unmarshal(raw, &history))
	require.Len(t, history, 1)
	assert.Equal(t, "host", history[0].HostID)
}

func TestUnknownRoom(t *testing.T) {
	f := newFixture(t)
	w, resp := f.do(t, http.MethodGet, "/api/v1/streams/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.CodeNotFound, resp.Error.Code)
}

func TestSendGiftOverHTTP(t *testing.T) {
	f := newFixture(t)
	_, err := f.registry.StartBroadcast(context.Background(), f.roomID)
	require.NoError(t, err)
	path := "/api/v1/streams/" + f.roomID + "/gift"

	w, resp := f.do(t, http.MethodPost, path, "fan", map[string]interface{}{"giftId": "g-rose", "quantity": 3})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, response.CodeInsufficientFunds, resp.Error.Code)

	w, _ = f.do(t, http.MethodPost, path, "fan", map[string]interface{}{"giftName": "Rose", "quantity": 2})
	assert.Equal(t, http.StatusOK, w.Code)

	diamonds, _ := testutil.UserBalance(t, f.db, "fan")
	assert.Equal(t, int64(10), diamonds)
	_, earnings := testutil.UserBalance(t, f.db, "host")
	assert.Equal(t, int64(20), earnings)

	w, _ = f.do(t, http.MethodGet, "/api/v1/wallet", "fan", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp = f.do(t, http.MethodPost, path, "fan", map[string]interface{}{"giftId": "g-rose", "quantity": 922337203685477579})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.CodeBadRequest, resp.Error.Code)
	diamonds, _ = testutil.UserBalance(t, f.db, "fan")
	assert.Equal(t, int64(10), diamonds)
}

func TestGiftIntoUnknownRoom(t *testing.T) {
	f := newFixture(t)
	w, resp := f.do(t, http.MethodPost, "/api/v1/streams/missing/gift", "fan",
		map[string]interface{}{"giftId": "g-rose"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.CodeNotFound, resp.Error.Code)

	diamonds, _ := testutil.UserBalance(t, f.db, "fan")
	assert.Equal(t, int64(50), diamonds)
}

func TestToggleRequiresLiveRoom(t *testing.T) {
	f := newFixture(t)
	path := "/api/v1/streams/" + f.roomID + "/toggles"

	w, _ := f.do(t, http.MethodPatch, path, "host", map[string]bool{"autoFollow": true})
	assert.Equal(t, http.StatusConflict, w.Code)

	_, err := f.registry.StartBroadcast(context.Background(), f.roomID)
	require.NoError(t, err)
	w, _ = f.do(t, http.MethodPatch, path, "host", map[string]bool{"autoFollow": true})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPublishStartsRoom(t *testing.T) {
	f := newFixture(t)
	body := map[string]string{
		"sdp":       testOffer,
		"streamUrl": "webrtc://localhost/live/" + f.roomID,
		"roomId":    f.roomID,
	}

	w, _ := f.do(t, http.MethodPost, "/api/v1/rtc/publish", "fan", body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, resp := f.do(t, http.MethodPost, "/api/v1/rtc/publish", "host", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.True(t, f.registry.IsLive(f.roomID))

	w, resp = f.do(t, http.MethodGet, "/api/v1/rtc/rooms/"+f.roomID+"/sessions", "host", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var sessions []domain.SignalingSession
	raw, _ := json.Marshal(resp.Data)
	require.NoError(t, json.Unmarshal(raw, &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, domain.SessionPublish, sessions[0].Kind)

	w, _ = f.do(t, http.MethodDelete, "/api/v1/rtc/sessions/srs-pub", "fan", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = f.do(t, http.MethodDelete, "/api/v1/rtc/sessions/srs-pub", "host", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, f.registry.IsLive(f.roomID))
}

func TestBattleConfigAndInviteValidation(t *testing.T) {
	f := newFixture(t)

	w, resp := f.do(t, http.MethodGet, "/api/v1/pk/config", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)

	w, _ = f.do(t, http.MethodPost, "/api/v1/pk/invite", "host",
		map[string]string{"fromRoomId": f.roomID, "toRoomId": f.roomID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.do(t, http.MethodGet, "/api/v1/pk/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = f.do(t, http.MethodGet, "/api/v1/streams/"+f.roomID+"/battle", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
