package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
	"github.com/weiawesome/wes-io-live/live-engine/internal/testutil"
)

func (f *fixture) hook(t *testing.T, path string, body interface{}, secret string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	if secret != "" {
		req.Header.Set(webhookSecretHeader, secret)
	}
	w := httptest.NewRecorder()
	f.hooks.ServeHTTP(w, req)
	return w
}

func srsCode(t *testing.T, w *httptest.ResponseRecorder) int {
	t.Helper()
	var reply srsReply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	return reply.Code
}

func TestSRSPublishLifecycle(t *testing.T) {
	f := newFixture(t)

	w := f.hook(t, "/hooks/srs/on_publish", SRSCallback{Action: "on_publish", ClientID: "c1", Stream: f.roomID}, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, srsCode(t, w))
	assert.True(t, f.registry.IsLive(f.roomID))

	// A repeated publish callback leaves the room live.
	w = f.hook(t, "/hooks/srs/on_publish", SRSCallback{Action: "on_publish", ClientID: "c1", Stream: f.roomID}, "")
	assert.Equal(t, 0, srsCode(t, w))

	w = f.hook(t, "/hooks/srs/on_play", SRSCallback{Action: "on_play", ClientID: "c2", Stream: f.roomID}, "")
	assert.Equal(t, 0, srsCode(t, w))

	w = f.hook(t, "/hooks/srs/on_unpublish", SRSCallback{Action: "on_unpublish", ClientID: "c1", Stream: f.roomID}, "")
	assert.Equal(t, 0, srsCode(t, w))
	assert.False(t, f.registry.IsLive(f.roomID))
}

func TestSRSPublishUnknownRoomAcknowledged(t *testing.T) {
	f := newFixture(t)
	w := f.hook(t, "/hooks/srs/on_publish", SRSCallback{Action: "on_publish", Stream: "missing"}, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, srsCode(t, w))
	assert.False(t, f.registry.IsLive("missing"))
}

func TestSRSCallbackRequiresStream(t *testing.T) {
	f := newFixture(t)
	w := f.hook(t, "/hooks/srs/on_stop", SRSCallback{Action: "on_stop"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentWebhook(t *testing.T) {
	f := newFixture(t)
	rc := domain.Recharge{UserID: "fan", Diamonds: 100, Price: 0.99, Reference: "pay-1"}

	w := f.hook(t, "/hooks/payments", rc, "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	fan := f.connectSocket(t, "fan")

	w = f.hook(t, "/hooks/payments", rc, webhookSecret)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Applied bool          `json:"applied"`
		Wallet  domain.Wallet `json:"wallet"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Applied)
	assert.Equal(t, int64(150), body.Wallet.Diamonds)
	assert.Equal(t, domain.EventPaymentSuccess, fan.next(t).Type)

	// Replaying the same reference credits nothing.
	w = f.hook(t, "/hooks/payments", rc, webhookSecret)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Applied)

	diamonds, _ := testutil.UserBalance(t, f.db, "fan")
	assert.Equal(t, int64(150), diamonds)
}

func TestPaymentWebhookRequiresReference(t *testing.T) {
	f := newFixture(t)

	w := f.hook(t, "/hooks/payments", domain.Recharge{UserID: "fan", Diamonds: 100}, webhookSecret)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	diamonds, _ := testutil.UserBalance(t, f.db, "fan")
	assert.Equal(t, int64(50), diamonds)
}

func TestPaymentWebhookDisabledWithoutSecret(t *testing.T) {
	f := newFixture(t)
	hooks := NewHooksHandler(f.registry, nil, nil, nil, "").Router()

	req := httptest.NewRequest(http.MethodPost, "/hooks/payments", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	hooks.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
