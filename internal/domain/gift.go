package domain

import (
	"math"
	"time"
)

// Gift is a catalog entry.
type Gift struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Price              int64  `json:"price"`
	Category           string `json:"category,omitempty"`
	Icon               string `json:"icon,omitempty"`
	IsLucky            bool   `json:"isLucky"`
	TriggersAutoFollow bool   `json:"triggersAutoFollow"`
}

// GiftSource says where the value of a gift send comes from.
// The only implementations are PurchasedSource and BackpackSource.
type GiftSource interface {
	sourceName() string
}

// PurchasedSource pays the gift with diamonds.
type PurchasedSource struct{}

// BackpackSource sends an owned gift from inventory.
type BackpackSource struct{}

func (PurchasedSource) sourceName() string { return "purchased" }
func (BackpackSource) sourceName() string  { return "backpack" }

// SourceName returns the persisted name of a gift source.
func SourceName(s GiftSource) string {
	if s == nil {
		return ""
	}
	return s.sourceName()
}

// Side is a PK battle side.
type Side string

const (
	SideNone Side = ""
	SideA    Side = "A"
	SideB    Side = "B"
)

// TransactionStatus is the outcome recorded for a gift send.
type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "completed"
	TransactionRejected  TransactionStatus = "rejected"
)

// GiftRequest asks to send a gift into a room.
type GiftRequest struct {
	SenderID string
	RoomID   string
	GiftID   string
	GiftName string
	Quantity int
	TargetID string
	Side     Side
	Source   GiftSource
}

// GiftSpend is the ledger half of a gift send.
type GiftSpend struct {
	TransactionID string
	SenderID      string
	ReceiverID    string
	RoomID        string
	Gift          *Gift
	Quantity      int
	Side          Side
	Source        GiftSource
}

// Total is the diamond value of the spend. It fails with ErrInvalidQuantity
// when the product does not fit in an int64.
func (s GiftSpend) Total() (int64, error) {
	if s.Gift == nil || s.Gift.Price <= 0 {
		return 0, ErrInvalidAmount
	}
	if s.Quantity < 1 {
		return 0, ErrInvalidQuantity
	}
	if int64(s.Quantity) > math.MaxInt64/s.Gift.Price {
		return 0, ErrInvalidQuantity
	}
	return s.Gift.Price * int64(s.Quantity), nil
}

// GiftTransaction is an append-only record of a gift send.
type GiftTransaction struct {
	ID         string            `json:"id"`
	SenderID   string            `json:"senderId"`
	ReceiverID string            `json:"receiverId,omitempty"`
	GiftID     string            `json:"giftId"`
	Quantity   int               `json:"quantity"`
	UnitPrice  int64             `json:"unitPrice"`
	TotalValue int64             `json:"totalValue"`
	Source     string            `json:"source"`
	RoomID     string            `json:"roomId"`
	BattleSide Side              `json:"battleSide,omitempty"`
	Status     TransactionStatus `json:"status"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// GiftEvent is delivered to gift observers after a completed send.
type GiftEvent struct {
	TransactionID string
	RoomID        string
	SenderID      string
	ReceiverID    string
	Side          Side
	Value         int64
	Quantity      int
}
