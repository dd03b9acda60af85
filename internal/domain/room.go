package domain

import "time"

// Room is a broadcaster's stream.
type Room struct {
	ID          string     `json:"id"`
	HostID      string     `json:"hostId"`
	Title       string     `json:"title"`
	Category    string     `json:"category,omitempty"`
	IsPrivate   bool       `json:"isPrivate"`
	IsLive      bool       `json:"isLive"`
	Viewers     int        `json:"viewers"`
	PeakViewers int        `json:"peakViewers"`
	Coins       int64      `json:"coins"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
}

// CreateRoomRequest represents a create room request.
type CreateRoomRequest struct {
	Title     string `json:"title" binding:"required,min=1,max=200"`
	Category  string `json:"category"`
	IsPrivate bool   `json:"isPrivate"`
}

// Membership is one socket joined to a room.
type Membership struct {
	RoomID            string      `json:"roomId"`
	UserID            string      `json:"userId"`
	SocketID          string      `json:"socketId"`
	Profile           UserProfile `json:"user"`
	JoinedAt          time.Time   `json:"joinedAt"`
	ContributionValue int64       `json:"contribution"`
}

// MemberChange is the outcome of adding or removing one socket. Presence is
// set when it was the user's first socket in or last socket out of the room.
type MemberChange struct {
	Membership
	Presence bool
}

// RosterEntry is a member of the deduplicated online list.
type RosterEntry struct {
	UserProfile
	JoinedAt     time.Time `json:"joinedAt"`
	Contribution int64     `json:"contribution"`
}

// Session event kinds.
const (
	SessionEventGift   = "gift"
	SessionEventFollow = "follow"
)

// SessionEvent is an entry of the live session event log.
type SessionEvent struct {
	Kind   string    `json:"kind"`
	UserID string    `json:"userId"`
	Value  int64     `json:"value,omitempty"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// Toggles are the host-controlled switches of a broadcast.
type Toggles struct {
	MicMuted          bool `json:"micMuted"`
	SoundMuted        bool `json:"soundMuted"`
	AutoFollow        bool `json:"autoFollow"`
	AutoPrivateInvite bool `json:"autoPrivateInvite"`
}

// TogglesPatch carries the toggles to change.
type TogglesPatch struct {
	MicMuted          *bool `json:"micMuted"`
	SoundMuted        *bool `json:"soundMuted"`
	AutoFollow        *bool `json:"autoFollow"`
	AutoPrivateInvite *bool `json:"autoPrivateInvite"`
}

// Apply sets every non-nil field of p on t.
func (p TogglesPatch) Apply(t *Toggles) {
	if p.MicMuted != nil {
		t.MicMuted = *p.MicMuted
	}
	if p.SoundMuted != nil {
		t.SoundMuted = *p.SoundMuted
	}
	if p.AutoFollow != nil {
		t.AutoFollow = *p.AutoFollow
	}
	if p.AutoPrivateInvite != nil {
		t.AutoPrivateInvite = *p.AutoPrivateInvite
	}
}

// LiveSessionState is the running state of one broadcast.
type LiveSessionState struct {
	RoomID      string         `json:"roomId"`
	IsLive      bool           `json:"isLive"`
	Viewers     int            `json:"viewers"`
	PeakViewers int            `json:"peakViewers"`
	Coins       int64          `json:"coins"`
	Followers   int            `json:"followers"`
	Members     int            `json:"members"`
	Fans        int            `json:"fans"`
	Events      []SessionEvent `json:"events"`
	Toggles
	StartTime time.Time `json:"startTime"`
}

// Clone returns a deep copy of the state.
func (s *LiveSessionState) Clone() *LiveSessionState {
	c := *s
	c.Events = append([]SessionEvent(nil), s.Events...)
	return &c
}

// SessionSummary is the terminal snapshot of a finished broadcast.
type SessionSummary struct {
	RoomID      string        `json:"roomId"`
	HostID      string        `json:"hostId"`
	StartedAt   time.Time     `json:"startedAt"`
	EndedAt     time.Time     `json:"endedAt"`
	Duration    time.Duration `json:"duration"`
	PeakViewers int           `json:"peakViewers"`
	Coins       int64         `json:"coins"`
	Followers   int           `json:"followers"`
	Members     int           `json:"members"`
	GiftEvents  int           `json:"giftEvents"`
}
