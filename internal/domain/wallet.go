package domain

// Payout preview rates shown on the wallet screen.
const (
	PayoutRate    = 0.05
	PayoutFeeRate = 0.20
)

// Wallet is a snapshot of a user's balances.
type Wallet struct {
	UserID   string         `json:"userId"`
	Diamonds int64          `json:"diamonds"`
	Earnings int64          `json:"earnings"`
	XP       int64          `json:"xp"`
	Level    int            `json:"level"`
	Backpack []BackpackItem `json:"backpack,omitempty"`
}

// BackpackItem is an owned, not yet sent, gift.
type BackpackItem struct {
	GiftID   string `json:"giftId"`
	Quantity int    `json:"quantity"`
}

// PayoutPreview is the withdrawable value of the earnings balance.
type PayoutPreview struct {
	Earnings int64   `json:"earnings"`
	Gross    float64 `json:"gross"`
	Fee      float64 `json:"fee"`
	Net      float64 `json:"net"`
}

// NewPayoutPreview computes the payout preview for an earnings balance.
func NewPayoutPreview(earnings int64) PayoutPreview {
	gross := float64(earnings) * PayoutRate
	fee := gross * PayoutFeeRate
	return PayoutPreview{
		Earnings: earnings,
		Gross:    gross,
		Fee:      fee,
		Net:      gross - fee,
	}
}

// BalanceView is the wallet returned to its owner.
type BalanceView struct {
	Wallet
	Payout PayoutPreview `json:"payout"`
}

// Recharge is a confirmed external payment to credit.
type Recharge struct {
	UserID    string  `json:"userId"`
	Diamonds  int64   `json:"diamonds"`
	Price     float64 `json:"price"`
	Reference string  `json:"reference"`
}

// WalletEntryKind classifies journal entries.
type WalletEntryKind string

const (
	WalletEntryRecharge WalletEntryKind = "recharge"
)
