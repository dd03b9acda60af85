package domain

import "time"

// SessionKind distinguishes broadcaster and viewer negotiations.
type SessionKind string

const (
	SessionPublish SessionKind = "publish"
	SessionPlay    SessionKind = "play"
)

// SignalingSession records a media-server negotiation.
type SignalingSession struct {
	ID        string      `json:"sessionId"`
	ClientID  string      `json:"clientId,omitempty"`
	RoomID    string      `json:"roomId"`
	UserID    string      `json:"userId"`
	Kind      SessionKind `json:"kind"`
	StreamURL string      `json:"streamUrl"`
	StartedAt time.Time   `json:"startedAt"`
	EndedAt   *time.Time  `json:"endedAt,omitempty"`
}

// Active reports whether the session has not been torn down.
func (s *SignalingSession) Active() bool {
	return s.EndedAt == nil
}

// Answer is the media server's reply to an offer.
type Answer struct {
	SDP       string `json:"sdp"`
	SessionID string `json:"sessionId"`
}
