package domain

import "encoding/json"

// Socket events from client.
const (
	EventJoinStream    = "join:stream"
	EventLeaveStream   = "leave:stream"
	EventStreamStarted = "stream:started"
	EventStreamEnded   = "stream:ended"
	EventStreamChat    = "stream:chat"
	EventPing          = "ping"
)

// Socket events to client.
const (
	EventUserJoined        = "user:joined"
	EventUserLeft          = "user:left"
	EventUserStatus        = "user:status"
	EventOnlineUsersUpdate = "onlineUsersUpdate"
	EventStreamStatus      = "stream:status"
	EventStreamGift        = "stream:gift"
	EventFollowUpdate      = "followUpdate"
	EventPaymentSuccess    = "payment:success"
	EventRoomJoined        = "room:joined"
	EventPKInvite          = "pk:invite"
	EventPKStarted         = "pk:started"
	EventPKScore           = "pk:score"
	EventPKEnded           = "pk:ended"
	EventPKDeclined        = "pk:declined"
	EventError             = "error"
	EventPong              = "pong"
)

// Presence status values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Envelope is the frame of every socket message.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes payload as an envelope of the given type.
func NewEnvelope(eventType string, payload interface{}) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return json.Marshal(Envelope{Type: eventType, Data: data})
}

// Client -> Server payloads

// JoinStreamData is sent to join a room.
type JoinStreamData struct {
	RoomID string       `json:"roomId"`
	User   *UserProfile `json:"user,omitempty"`
}

// LeaveStreamData is sent to leave a room.
type LeaveStreamData struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId,omitempty"`
}

// StreamRefData names a stream by id.
type StreamRefData struct {
	StreamID string `json:"streamId"`
}

// ChatData is a chat line sent into a room.
type ChatData struct {
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
}

// Server -> Client payloads

// UserJoinedData announces a new member.
type UserJoinedData struct {
	RoomID string      `json:"roomId"`
	User   UserProfile `json:"user"`
}

// UserLeftData announces a departed member.
type UserLeftData struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// UserStatusData reports a member's presence.
type UserStatusData struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// OnlineUsersUpdateData tells members to refetch the roster.
type OnlineUsersUpdateData struct {
	RoomID string `json:"roomId"`
}

// RoomJoinedData acknowledges a join with the current roster.
type RoomJoinedData struct {
	RoomID string        `json:"roomId"`
	IsHost bool          `json:"isHost"`
	Room   *Room         `json:"room,omitempty"`
	Users  []RosterEntry `json:"users"`
}

// StreamStatusData reports the live status of a room.
type StreamStatusData struct {
	StreamID string `json:"streamId"`
	Status   string `json:"status"`
}

// ChatMessageData is a chat line fanned out to a room.
type ChatMessageData struct {
	RoomID string      `json:"roomId"`
	User   UserProfile `json:"user"`
	Text   string      `json:"text"`
	SentAt int64       `json:"sentAt"`
}

// GiftUser is the sender descriptor of a gift event.
type GiftUser struct {
	UserProfile
	Diamonds int64 `json:"diamonds"`
	XP       int64 `json:"xp"`
}

// GiftTarget is the receiver descriptor of a gift event.
type GiftTarget struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// StreamGiftData is the payload of a gift event.
type StreamGiftData struct {
	FromUser        GiftUser   `json:"fromUser"`
	ToUser          GiftTarget `json:"toUser"`
	Gift            Gift       `json:"gift"`
	Quantity        int        `json:"quantity"`
	RoomID          string     `json:"roomId"`
	TotalValue      int64      `json:"totalValue"`
	TransactionID   string     `json:"transactionId"`
	IsLucky         bool       `json:"isLucky"`
	LuckyMultiplier int        `json:"luckyMultiplier,omitempty"`
	Side            Side       `json:"side,omitempty"`
}

// FollowUpdateData reports a follow relationship change.
type FollowUpdateData struct {
	Follower   UserProfile `json:"follower"`
	Followed   UserProfile `json:"followed"`
	IsUnfollow bool        `json:"isUnfollow"`
}

// PaymentSuccessData confirms a credited recharge.
type PaymentSuccessData struct {
	Diamonds int64   `json:"diamonds"`
	Price    float64 `json:"price"`
}

// PKInviteData is sent to the invited host.
type PKInviteData struct {
	BattleID  string `json:"battleId"`
	FromRoom  string `json:"fromRoomId"`
	ToRoom    string `json:"toRoomId"`
	InviterID string `json:"inviterId"`
	Duration  int    `json:"duration"`
	ExpiresIn int    `json:"expiresIn"`
}

// PKStartedData announces an active battle.
type PKStartedData struct {
	BattleID  string `json:"battleId"`
	RoomAID   string `json:"roomAId"`
	RoomBID   string `json:"roomBId"`
	HostAID   string `json:"hostAId"`
	HostBID   string `json:"hostBId"`
	Duration  int    `json:"duration"`
	StartedAt int64  `json:"startedAt"`
}

// PKScoreData carries running battle scores.
type PKScoreData struct {
	BattleID string `json:"battleId"`
	ScoreA   int64  `json:"scoreA"`
	ScoreB   int64  `json:"scoreB"`
}

// PKDeclinedData reports a declined or expired invitation.
type PKDeclinedData struct {
	BattleID string `json:"battleId"`
	Reason   string `json:"reason"`
}

// ErrorData is the payload of a socket error.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeForbidden             = "FORBIDDEN"
	ErrCodeNotFound              = "NOT_FOUND"
	ErrCodeBadRequest            = "BAD_REQUEST"
	ErrCodeInternalError         = "INTERNAL_ERROR"
	ErrCodeRoomNotLive           = "ROOM_NOT_LIVE"
	ErrCodeInsufficientFunds     = "INSUFFICIENT_FUNDS"
	ErrCodeInsufficientInventory = "INSUFFICIENT_INVENTORY"
	ErrCodeTimeout               = "TIMEOUT"
)
