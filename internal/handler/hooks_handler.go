package handler

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
	"github.com/weiawesome/wes-io-live/live-engine/internal/presence"
	"github.com/weiawesome/wes-io-live/live-engine/internal/room"
	"github.com/weiawesome/wes-io-live/live-engine/internal/signaling"
	"github.com/weiawesome/wes-io-live/live-engine/internal/wallet"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/log"
)

const webhookSecretHeader = "X-Webhook-Secret"

// SRSCallback is the body of a media server HTTP callback.
type SRSCallback struct {
	Action   string `json:"action"`
	ClientID string `json:"client_id"`
	IP       string `json:"ip"`
	Vhost    string `json:"vhost"`
	App      string `json:"app"`
	Stream   string `json:"stream"`
	Param    string `json:"param"`
}

// srsReply is the answer the media server expects.
type srsReply struct {
	Code int `json:"code"`
}

// HooksHandler serves media server callbacks and payment webhooks.
type HooksHandler struct {
	registry *room.Registry
	relay    *signaling.Relay
	ledger   *wallet.Ledger
	presence *presence.Service
	secret   string
}

// NewHooksHandler creates a new hooks handler. An empty secret disables the
// payment webhook.
func NewHooksHandler(registry *room.Registry, relay *signaling.Relay, ledger *wallet.Ledger, svc *presence.Service, secret string) *HooksHandler {
	return &HooksHandler{
		registry: registry,
		relay:    relay,
		ledger:   ledger,
		presence: svc,
		secret:   secret,
	}
}

// Router builds the hooks router.
func (h *HooksHandler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	srs := r.PathPrefix("/hooks/srs").Subrouter()
	srs.HandleFunc("/on_publish", h.OnPublish).Methods(http.MethodPost)
	srs.HandleFunc("/on_unpublish", h.OnUnpublish).Methods(http.MethodPost)
	srs.HandleFunc("/on_play", h.OnPlay).Methods(http.MethodPost)
	srs.HandleFunc("/on_stop", h.OnStop).Methods(http.MethodPost)

	r.HandleFunc("/hooks/payments", h.Payment).Methods(http.MethodPost)
	return r
}

// Health handles GET /health
func (h *HooksHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// OnPublish handles POST /hooks/srs/on_publish
func (h *HooksHandler) OnPublish(w http.ResponseWriter, r *http.Request) {
	cb, ok := decodeCallback(w, r)
	if !ok {
		return
	}
	ctx := log.WithRoom(r.Context(), cb.Stream)
	l := log.Ctx(ctx)

	if !h.registry.IsLive(cb.Stream) {
		if _, err := h.registry.StartBroadcast(ctx, cb.Stream); err != nil {
			l.Warn().Err(err).Str("client_id", cb.ClientID).Msg("failed to start broadcast from publish callback")
			writeJSON(w, http.StatusOK, srsReply{})
			return
		}
	}
	l.Info().Str("client_id", cb.ClientID).Msg("stream published")
	writeJSON(w, http.StatusOK, srsReply{})
}

// OnUnpublish handles POST /hooks/srs/on_unpublish
func (h *HooksHandler) OnUnpublish(w http.ResponseWriter, r *http.Request) {
	cb, ok := decodeCallback(w, r)
	if !ok {
		return
	}
	ctx := log.WithRoom(r.Context(), cb.Stream)
	l := log.Ctx(ctx)

	if _, err := h.registry.StopBroadcast(ctx, cb.Stream); err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
		l.Error().Err(err).Msg("failed to stop broadcast")
	}
	if err := h.relay.EndRoomSessions(ctx, cb.Stream); err != nil {
		l.Error().Err(err).Msg("failed to end signaling sessions")
	}
	l.Info().Str("client_id", cb.ClientID).Msg("stream unpublished")
	writeJSON(w, http.StatusOK, srsReply{})
}

// OnPlay handles POST /hooks/srs/on_play
func (h *HooksHandler) OnPlay(w http.ResponseWriter, r *http.Request) {
	h.observe(w, r, "viewer started playing")
}

// OnStop handles POST /hooks/srs/on_stop
func (h *HooksHandler) OnStop(w http.ResponseWriter, r *http.Request) {
	h.observe(w, r, "viewer stopped playing")
}

func (h *HooksHandler) observe(w http.ResponseWriter, r *http.Request, msg string) {
	cb, ok := decodeCallback(w, r)
	if !ok {
		return
	}
	l := log.Ctx(log.WithRoom(r.Context(), cb.Stream))
	l.Debug().Str("client_id", cb.ClientID).Str("ip", cb.IP).Msg(msg)
	writeJSON(w, http.StatusOK, srsReply{})
}

// Payment handles POST /hooks/payments
// It credits a confirmed recharge once per reference.
func (h *HooksHandler) Payment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := log.Ctx(ctx)

	if h.secret == "" {
		http.Error(w, "payment webhook disabled", http.StatusServiceUnavailable)
		return
	}
	got := r.Header.Get(webhookSecretHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		http.Error(w, "invalid webhook secret", http.StatusUnauthorized)
		return
	}

	var rc domain.Recharge
	if err := json.NewDecoder(r.Body).Decode(&rc); err != nil || rc.UserID == "" {
		http.Error(w, "invalid payment payload", http.StatusBadRequest)
		return
	}

	wlt, applied, err := h.ledger.Recharge(ctx, rc)
	if err != nil {
		m, known := classify(err)
		if !known {
			l.Error().Err(err).Str(log.FieldUserID, rc.UserID).Msg("failed to apply recharge")
			http.Error(w, "failed to apply recharge", http.StatusInternalServerError)
			return
		}
		http.Error(w, err.Error(), m.status)
		return
	}

	if applied {
		h.presence.SendToUser(ctx, rc.UserID, domain.EventPaymentSuccess, domain.PaymentSuccessData{
			Diamonds: rc.Diamonds,
			Price:    rc.Price,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"applied": applied,
		"wallet":  wlt,
	})
}

func decodeCallback(w http.ResponseWriter, r *http.Request) (SRSCallback, bool) {
	var cb SRSCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil || cb.Stream == "" {
		http.Error(w, "invalid callback payload", http.StatusBadRequest)
		return cb, false
	}
	return cb, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
