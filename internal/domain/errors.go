package domain

import "errors"

var (
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInsufficientInventory  = errors.New("insufficient inventory")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrMediaNegotiationFailed = errors.New("media negotiation failed")
	ErrRoomNotFound           = errors.New("room not found")
	ErrUserNotFound           = errors.New("user not found")
	ErrGiftNotFound           = errors.New("gift not found")
	ErrBattleNotFound         = errors.New("battle not found")
	ErrSessionNotFound        = errors.New("signaling session not found")
	ErrBattleConflict         = errors.New("room is already in a battle")
	ErrRoomNotLive            = errors.New("room is not live")
	ErrInvalidOffer           = errors.New("invalid sdp offer")
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrInvalidDuration        = errors.New("invalid battle duration")
	ErrInvalidMessage         = errors.New("invalid chat message")
	ErrInvalidQuantity        = errors.New("invalid gift quantity")
	ErrMissingReference       = errors.New("recharge reference required")
	ErrTimeout                = errors.New("operation timed out")
)
