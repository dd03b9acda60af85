package domain

import "time"

// BattleStatus is the state of a PK battle.
type BattleStatus string

const (
	BattlePending BattleStatus = "pending"
	BattleActive  BattleStatus = "active"
	BattleEnded   BattleStatus = "ended"
)

// Battle is a snapshot of a PK battle.
type Battle struct {
	ID        string        `json:"id"`
	RoomAID   string        `json:"roomAId"`
	RoomBID   string        `json:"roomBId"`
	HostAID   string        `json:"hostAId"`
	HostBID   string        `json:"hostBId"`
	StartedAt time.Time     `json:"startedAt,omitempty"`
	Duration  time.Duration `json:"-"`
	ScoreA    int64         `json:"scoreA"`
	ScoreB    int64         `json:"scoreB"`
	Status    BattleStatus  `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}

// DurationSeconds is the battle duration exposed to clients.
func (b *Battle) DurationSeconds() int {
	return int(b.Duration / time.Second)
}

// Winner is the outcome of a finished battle.
type Winner string

const (
	WinnerA   Winner = "A"
	WinnerB   Winner = "B"
	WinnerTie Winner = "tie"
)

// BattleResult is the final score of a battle.
type BattleResult struct {
	BattleID     string `json:"battleId"`
	RoomAID      string `json:"roomAId"`
	RoomBID      string `json:"roomBId"`
	ScoreA       int64  `json:"scoreA"`
	ScoreB       int64  `json:"scoreB"`
	Winner       Winner `json:"winner"`
	WinnerRoomID string `json:"winnerRoomId,omitempty"`
}

// NewBattleResult scores a battle; equal scores are a tie.
func NewBattleResult(b *Battle) BattleResult {
	r := BattleResult{
		BattleID: b.ID,
		RoomAID:  b.RoomAID,
		RoomBID:  b.RoomBID,
		ScoreA:   b.ScoreA,
		ScoreB:   b.ScoreB,
		Winner:   WinnerTie,
	}
	switch {
	case b.ScoreA > b.ScoreB:
		r.Winner = WinnerA
		r.WinnerRoomID = b.RoomAID
	case b.ScoreB > b.ScoreA:
		r.Winner = WinnerB
		r.WinnerRoomID = b.RoomBID
	}
	return r
}

// PKConfig is the public battle configuration.
type PKConfig struct {
	Enabled          bool    `json:"enabled"`
	MinDiamonds      int64   `json:"minDiamonds"`
	MaxDuration      int     `json:"maxDuration"`
	DefaultDuration  int     `json:"defaultDuration"`
	CoolDown         int     `json:"coolDown"`
	RewardMultiplier float64 `json:"rewardMultiplier"`
	MaxParticipants  int     `json:"maxParticipants"`
}
