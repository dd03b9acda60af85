package presence

import (
	"context"
	"strings"
	"time"

	"github.com/weiawesome/wes-io-live/live-engine/internal/audit"
	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/log"
)

const maxChatLength = 500

// Members is the membership store behind the bus.
type Members interface {
	AddMember(ctx context.Context, roomID string, profile domain.UserProfile, socketID string) (*domain.MemberChange, error)
	RemoveMember(ctx context.Context, roomID, socketID string) (*domain.MemberChange, bool)
	RemoveSocket(ctx context.Context, socketID string) []domain.MemberChange
	Roster(roomID string) []domain.RosterEntry
	HasUser(roomID, userID string) bool
	SocketsOf(roomID, userID string) []string
}

// Service joins sockets to rooms and announces presence changes.
type Service struct {
	members Members
	hub     *Hub
	fanout  *Fanout
}

// NewService creates the presence service.
func NewService(members Members, hub *Hub, fanout *Fanout) *Service {
	return &Service{members: members, hub: hub, fanout: fanout}
}

// Join adds a socket to a room and returns the updated roster.
func (s *Service) Join(ctx context.Context, roomID string, profile domain.UserProfile, socketID string) ([]domain.RosterEntry, error) {
	ctx = log.WithRoom(ctx, roomID)
	l := log.Ctx(ctx)

	change, err := s.members.AddMember(ctx, roomID, profile, socketID)
	if err != nil {
		return nil, err
	}
	s.hub.JoinRoom(socketID, roomID)

	if change.Presence {
		s.fanout.BroadcastExcept(ctx, roomID, domain.EventUserJoined, domain.UserJoinedData{
			RoomID: roomID,
			User:   profile,
		}, socketID)
		s.fanout.Broadcast(ctx, roomID, domain.EventUserStatus, domain.UserStatusData{
			UserID: profile.ID,
			Status: domain.StatusOnline,
		})
	}
	s.fanout.Broadcast(ctx, roomID, domain.EventOnlineUsersUpdate, domain.OnlineUsersUpdateData{RoomID: roomID})

	l.Debug().Str(log.FieldUserID, profile.ID).Str(log.FieldSocketID, socketID).Msg("joined room")
	return s.members.Roster(roomID), nil
}

// Leave removes a socket from a room. Unknown sockets are ignored.
func (s *Service) Leave(ctx context.Context, roomID, socketID string) {
	ctx = log.WithRoom(ctx, roomID)

	change, ok := s.members.RemoveMember(ctx, roomID, socketID)
	if !ok {
		return
	}
	s.hub.LeaveRoom(socketID, roomID)
	s.announceLeave(ctx, *change)
}

// Disconnect removes a socket from every room it joined.
func (s *Service) Disconnect(ctx context.Context, socketID string) {
	for _, change := range s.members.RemoveSocket(ctx, socketID) {
		s.hub.LeaveRoom(socketID, change.RoomID)
		s.announceLeave(log.WithRoom(ctx, change.RoomID), change)
	}
}

// KickUser removes every socket of a user from a room.
func (s *Service) KickUser(ctx context.Context, callerID, roomID, userID string) int {
	sockets := s.members.SocketsOf(roomID, userID)
	for _, socketID := range sockets {
		if data, err := domain.NewEnvelope(domain.EventError, domain.ErrorData{
			Code:    domain.ErrCodeForbidden,
			Message: "removed from room",
		}); err == nil {
			s.hub.SendToClient(socketID, data)
		}
		s.Leave(ctx, roomID, socketID)
	}
	if len(sockets) > 0 {
		audit.Record(log.WithRoom(ctx, roomID), audit.Entry{
			Action: audit.ActionMemberKick,
			UserID: callerID,
			RoomID: roomID,
			Target: userID,
		}, "member removed from room")
	}
	return len(sockets)
}

func (s *Service) announceLeave(ctx context.Context, m domain.MemberChange) {
	if m.Presence {
		s.fanout.Broadcast(ctx, m.RoomID, domain.EventUserLeft, domain.UserLeftData{
			RoomID: m.RoomID,
			UserID: m.UserID,
		})
		s.fanout.Broadcast(ctx, m.RoomID, domain.EventUserStatus, domain.UserStatusData{
			UserID: m.UserID,
			Status: domain.StatusOffline,
		})
	}
	s.fanout.Broadcast(ctx, m.RoomID, domain.EventOnlineUsersUpdate, domain.OnlineUsersUpdateData{RoomID: m.RoomID})
	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldUserID, m.UserID).Str(log.FieldSocketID, m.SocketID).Msg("left room")
}

// Roster returns the deduplicated online list of a room.
func (s *Service) Roster(roomID string) []domain.RosterEntry {
	return s.members.Roster(roomID)
}

// Chat relays a chat line from a joined member to the room.
func (s *Service) Chat(ctx context.Context, profile domain.UserProfile, roomID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" || len(text) > maxChatLength {
		return domain.ErrInvalidMessage
	}
	if !s.members.HasUser(roomID, profile.ID) {
		return domain.ErrPermissionDenied
	}
	s.fanout.Broadcast(ctx, roomID, domain.EventStreamChat, domain.ChatMessageData{
		RoomID: roomID,
		User:   profile,
		Text:   text,
		SentAt: time.Now().UnixMilli(),
	})
	return nil
}

// Broadcast sends an event to a room.
func (s *Service) Broadcast(ctx context.Context, roomID, event string, payload interface{}) {
	s.fanout.Broadcast(ctx, roomID, event, payload)
}

// BroadcastGlobal sends an event to every socket.
func (s *Service) BroadcastGlobal(ctx context.Context, event string, payload interface{}) {
	s.fanout.BroadcastGlobal(ctx, event, payload)
}

// SendToUser sends an event to one user's sockets.
func (s *Service) SendToUser(ctx context.Context, userID, event string, payload interface{}) {
	s.fanout.SendToUser(ctx, userID, event, payload)
}
