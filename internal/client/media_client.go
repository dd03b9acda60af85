package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrClientNotFound = errors.New("media client not found")
	ErrMediaRejected  = errors.New("media server rejected request")
)

// MediaClient wraps the SRS HTTP API.
type MediaClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// RTCRequest is the body of an SRS WebRTC publish or play call.
type RTCRequest struct {
	API       string `json:"api"`
	StreamURL string `json:"streamurl"`
	SDP       string `json:"sdp"`
	ClientIP  string `json:"clientip,omitempty"`
}

// RTCResponse is the SRS answer to an offer.
type RTCResponse struct {
	Code      int    `json:"code"`
	Server    string `json:"server,omitempty"`
	SDP       string `json:"sdp"`
	SessionID string `json:"sessionid"`
}

// MediaClientInfo describes a client connected to the media server.
type MediaClientInfo struct {
	ID      string `json:"id"`
	Vhost   string `json:"vhost,omitempty"`
	Stream  string `json:"stream"`
	URL     string `json:"url"`
	IP      string `json:"ip,omitempty"`
	Type    string `json:"type,omitempty"`
	Publish bool   `json:"publish"`
}

type clientResponse struct {
	Code   int              `json:"code"`
	Client *MediaClientInfo `json:"client"`
}

type codeResponse struct {
	Code int `json:"code"`
}

// NewMediaClient creates a new SRS API client.
func NewMediaClient(baseURL, token string, timeout time.Duration) *MediaClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MediaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Publish forwards a broadcaster offer.
func (c *MediaClient) Publish(ctx context.Context, streamURL, sdp string) (*RTCResponse, error) {
	return c.negotiate(ctx, "/rtc/v1/publish/", streamURL, sdp)
}

// Play forwards a viewer offer.
func (c *MediaClient) Play(ctx context.Context, streamURL, sdp string) (*RTCResponse, error) {
	return c.negotiate(ctx, "/rtc/v1/play/", streamURL, sdp)
}

func (c *MediaClient) negotiate(ctx context.Context, path, streamURL, sdp string) (*RTCResponse, error) {
	api := c.baseURL + path
	body, err := json.Marshal(RTCRequest{API: api, StreamURL: streamURL, SDP: sdp})
	if err != nil {
		return nil, fmt.Errorf("failed to encode offer: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, api, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrMediaRejected, resp.StatusCode)
	}

	var rtc RTCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rtc); err != nil {
		return nil, fmt.Errorf("failed to decode answer: %w", err)
	}
	if rtc.Code != 0 {
		return nil, fmt.Errorf("%w: code %d", ErrMediaRejected, rtc.Code)
	}
	if rtc.SDP == "" {
		return nil, fmt.Errorf("%w: empty answer", ErrMediaRejected)
	}
	return &rtc, nil
}

// GetClient looks up a connected client.
func (c *MediaClient) GetClient(ctx context.Context, clientID string) (*MediaClientInfo, error) {
	resp, err := c.do(ctx, http.MethodGet, c.clientURL(clientID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrClientNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrMediaRejected, resp.StatusCode)
	}

	var cr clientResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("failed to decode client: %w", err)
	}
	if cr.Code != 0 || cr.Client == nil {
		return nil, ErrClientNotFound
	}
	return cr.Client, nil
}

// KickClient disconnects a client from the media server.
func (c *MediaClient) KickClient(ctx context.Context, clientID string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.clientURL(clientID), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrClientNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrMediaRejected, resp.StatusCode)
	}

	var cr codeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode kick response: %w", err)
	}
	if cr.Code != 0 {
		return fmt.Errorf("%w: code %d", ErrMediaRejected, cr.Code)
	}
	return nil
}

func (c *MediaClient) clientURL(clientID string) string {
	return fmt.Sprintf("%s/api/v1/clients/%s", c.baseURL, url.PathEscape(clientID))
}

func (c *MediaClient) do(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media server request failed: %w", err)
	}
	return resp, nil
}
