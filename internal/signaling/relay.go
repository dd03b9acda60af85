// Package signaling relays WebRTC offers to the media server and tracks the
// resulting sessions.
package signaling

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/weiawesome/wes-io-live/live-engine/internal/audit"
	"github.com/weiawesome/wes-io-live/live-engine/internal/client"
	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
	"github.com/weiawesome/wes-io-live/live-engine/internal/idgen"
	"github.com/weiawesome/wes-io-live/live-engine/internal/repository"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/log"
)

// MediaServer is the media server API used by the relay.
type MediaServer interface {
	Publish(ctx context.Context, streamURL, sdp string) (*client.RTCResponse, error)
	Play(ctx context.Context, streamURL, sdp string) (*client.RTCResponse, error)
	GetClient(ctx context.Context, clientID string) (*client.MediaClientInfo, error)
	KickClient(ctx context.Context, clientID string) error
}

// Rooms is the part of the room registry the relay drives.
type Rooms interface {
	Room(ctx context.Context, roomID string) (*domain.Room, error)
	StartBroadcast(ctx context.Context, roomID string) (*domain.Room, error)
	StopBroadcast(ctx context.Context, roomID string) (*domain.SessionSummary, error)
}

// Relay negotiates publish and play sessions.
type Relay struct {
	media    MediaServer
	sessions repository.SignalingRepository
	rooms    Rooms
	users    repository.UserRepository
	ids      idgen.Generator
}

// NewRelay creates a new signaling relay.
func NewRelay(media MediaServer, sessions repository.SignalingRepository, rooms Rooms, users repository.UserRepository, ids idgen.Generator) *Relay {
	return &Relay{
		media:    media,
		sessions: sessions,
		rooms:    rooms,
		users:    users,
		ids:      ids,
	}
}

// NegotiatePublish forwards a broadcaster offer and starts the broadcast.
func (r *Relay) NegotiatePublish(ctx context.Context, userID, roomID, streamURL, sdpOffer string) (*domain.Answer, error) {
	ctx = log.WithRoom(ctx, roomID)
	l := log.Ctx(ctx)

	if err := validateOffer(sdpOffer); err != nil {
		return nil, err
	}
	room, err := r.checkStream(ctx, roomID, streamURL)
	if err != nil {
		return nil, err
	}
	if room.HostID != userID {
		l.Warn().Str(log.FieldUserID, userID).Msg("publish attempt by non-host")
		return nil, domain.ErrPermissionDenied
	}

	rtc, err := r.media.Publish(ctx, streamURL, sdpOffer)
	if err != nil {
		l.Error().Err(err).Msg("media server publish failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrMediaNegotiationFailed, err)
	}

	session, err := r.record(ctx, domain.SessionPublish, userID, roomID, streamURL, rtc)
	if err != nil {
		return nil, err
	}
	if _, err := r.rooms.StartBroadcast(ctx, roomID); err != nil {
		return nil, err
	}

	l.Info().Str(log.FieldSessionID, session.ID).Msg("publish negotiated")
	return &domain.Answer{SDP: rtc.SDP, SessionID: session.ID}, nil
}

// NegotiatePlay forwards a viewer offer for a live room.
func (r *Relay) NegotiatePlay(ctx context.Context, userID, roomID, streamURL, sdpOffer string) (*domain.Answer, error) {
	ctx = log.WithRoom(ctx, roomID)
	l := log.Ctx(ctx)

	if err := validateOffer(sdpOffer); err != nil {
		return nil, err
	}
	room, err := r.checkStream(ctx, roomID, streamURL)
	if err != nil {
		return nil, err
	}
	if !room.IsLive {
		return nil, domain.ErrRoomNotLive
	}

	rtc, err := r.media.Play(ctx, streamURL, sdpOffer)
	if err != nil {
		l.Error().Err(err).Msg("media server play failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrMediaNegotiationFailed, err)
	}

	session, err := r.record(ctx, domain.SessionPlay, userID, roomID, streamURL, rtc)
	if err != nil {
		return nil, err
	}

	l.Debug().Str(log.FieldSessionID, session.ID).Msg("play negotiated")
	return &domain.Answer{SDP: rtc.SDP, SessionID: session.ID}, nil
}

func (r *Relay) checkStream(ctx context.Context, roomID, streamURL string) (*domain.Room, error) {
	streamRoom, err := RoomFromStreamURL(streamURL)
	if err != nil || streamRoom != roomID {
		return nil, domain.ErrPermissionDenied
	}
	return r.rooms.Room(ctx, roomID)
}

func (r *Relay) record(ctx context.Context, kind domain.SessionKind, userID, roomID, streamURL string, rtc *client.RTCResponse) (*domain.SignalingSession, error) {
	id := rtc.SessionID
	if id == "" {
		generated, err := r.ids.Generate()
		if err != nil {
			return nil, err
		}
		id = generated
	}
	session := &domain.SignalingSession{
		ID:        id,
		ClientID:  rtc.SessionID,
		RoomID:    roomID,
		UserID:    userID,
		Kind:      kind,
		StreamURL: streamURL,
		StartedAt: time.Now(),
	}
	if err := r.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// EndSession tears down a session. Ending a publish session stops the
// broadcast. Ending an already ended session does nothing.
func (r *Relay) EndSession(ctx context.Context, sessionID string) error {
	session, err := r.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.Active() {
		return nil
	}
	ctx = log.WithRoom(ctx, session.RoomID)

	first, err := r.sessions.MarkEnded(ctx, sessionID, time.Now())
	if err != nil {
		return err
	}
	if !first {
		return nil
	}
	l := log.Ctx(ctx)
	l.Info().Str(log.FieldSessionID, sessionID).Str("kind", string(session.Kind)).Msg("session ended")

	if session.Kind == domain.SessionPublish {
		if _, err := r.rooms.StopBroadcast(ctx, session.RoomID); err != nil {
			return err
		}
	}
	return nil
}

// EndRoomSessions marks every active session of a room ended.
func (r *Relay) EndRoomSessions(ctx context.Context, roomID string) error {
	sessions, err := r.sessions.ListActiveByRoom(ctx, roomID)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, s := range sessions {
		if _, err := r.sessions.MarkEnded(ctx, s.ID, now); err != nil {
			return err
		}
	}
	return nil
}

// Session returns one recorded session.
func (r *Relay) Session(ctx context.Context, sessionID string) (*domain.SignalingSession, error) {
	return r.sessions.GetByID(ctx, sessionID)
}

// Sessions lists the active sessions of a room.
func (r *Relay) Sessions(ctx context.Context, roomID string) ([]domain.SignalingSession, error) {
	return r.sessions.ListActiveByRoom(ctx, roomID)
}

// Kick disconnects a media client. Admins may kick anyone; hosts may kick
// clients of their own stream.
func (r *Relay) Kick(ctx context.Context, callerID, clientID string) error {
	l := log.Ctx(ctx)

	info, err := r.media.GetClient(ctx, clientID)
	if err != nil {
		return err
	}

	caller, err := r.users.GetByID(ctx, callerID)
	if err != nil {
		return err
	}
	if !caller.IsAdmin() {
		room, err := r.rooms.Room(ctx, info.Stream)
		if err != nil || room.HostID != callerID {
			l.Warn().Str(log.FieldUserID, callerID).Str("client_id", clientID).Msg("kick denied")
			return domain.ErrPermissionDenied
		}
	}

	if err := r.media.KickClient(ctx, clientID); err != nil {
		return err
	}

	sessions, err := r.sessions.ListActiveByClient(ctx, clientID)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		if err := r.EndSession(ctx, s.ID); err != nil {
			l.Warn().Err(err).Str(log.FieldSessionID, s.ID).Msg("failed to end kicked session")
		}
	}

	audit.Record(ctx, audit.Entry{
		Action: audit.ActionClientKick,
		UserID: callerID,
		RoomID: info.Stream,
		Target: clientID,
	}, "media client kicked")
	return nil
}

// RoomFromStreamURL returns the last path segment of a stream URL such as
// webrtc://host/live/{roomId}?token=x.
func RoomFromStreamURL(streamURL string) (string, error) {
	u, err := url.Parse(streamURL)
	if err != nil {
		return "", err
	}
	p := strings.TrimRight(u.Path, "/")
	if p == "" {
		return "", fmt.Errorf("stream url has no path: %q", streamURL)
	}
	return path.Base(p), nil
}

func validateOffer(sdpOffer string) error {
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdpOffer}
	parsed, err := desc.Unmarshal()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidOffer, err)
	}
	if len(parsed.MediaDescriptions) == 0 {
		return fmt.Errorf("%w: no media sections", domain.ErrInvalidOffer)
	}
	return nil
}
