package audit

import (
	"context"

	"github.com/weiawesome/wes-io-live/live-engine/pkg/log"
)

// Audit actions for money movement and moderation.
const (
	ActionGiftSend       = "gift.send"
	ActionGiftReject     = "gift.reject"
	ActionWalletRecharge = "wallet.recharge"
	ActionStreamStart    = "stream.start"
	ActionStreamStop     = "stream.stop"
	ActionClientKick     = "client.kick"
	ActionMemberKick     = "member.kick"
	ActionPKStart        = "pk.start"
	ActionPKEnd          = "pk.end"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldTarget = "target"
	FieldAmount = "amount"
	FieldDetail = "detail"
)

// Entry is one audit record.
type Entry struct {
	Action string
	UserID string
	RoomID string
	Target string
	Amount int64
	Detail string
}

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action string, userID string, msg string) {
	Record(ctx, Entry{Action: action, UserID: userID}, msg)
}

// Record emits an audit entry with every non-empty field.
func Record(ctx context.Context, e Entry, msg string) {
	l := log.Ctx(ctx)
	ev := l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, e.Action).
		Str(log.FieldUserID, e.UserID)
	if e.RoomID != "" {
		ev = ev.Str(log.FieldRoomID, e.RoomID)
	}
	if e.Target != "" {
		ev = ev.Str(FieldTarget, e.Target)
	}
	if e.Amount != 0 {
		ev = ev.Int64(FieldAmount, e.Amount)
	}
	if e.Detail != "" {
		ev = ev.Str(FieldDetail, e.Detail)
	}
	ev.Msg(msg)
}
