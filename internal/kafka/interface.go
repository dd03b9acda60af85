package kafka

import (
	"context"

	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
)

// LiveEvent is an analytics record of a live-session change.
type LiveEvent struct {
	Type      string      `json:"type"`
	RoomID    string      `json:"room_id"`
	UserID    string      `json:"user_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Event types
const (
	EventStreamStarted = "stream_started"
	EventStreamEnded   = "stream_ended"
	EventGiftSent      = "gift_sent"
	EventPKEnded       = "pk_ended"
)

// LiveEventProducer defines the interface for producing live-session events.
type LiveEventProducer interface {
	ProduceStreamStarted(ctx context.Context, roomID, hostID string) error
	ProduceStreamEnded(ctx context.Context, summary *domain.SessionSummary) error
	ProduceGiftSent(ctx context.Context, tx *domain.GiftTransaction) error
	ProducePKEnded(ctx context.Context, result domain.BattleResult) error
	Close() error
}

// NopProducer drops every event. Used when Kafka is disabled.
type NopProducer struct{}

func (NopProducer) ProduceStreamStarted(context.Context, string, string) error       { return nil }
func (NopProducer) ProduceStreamEnded(context.Context, *domain.SessionSummary) error { return nil }
func (NopProducer) ProduceGiftSent(context.Context, *domain.GiftTransaction) error   { return nil }
func (NopProducer) ProducePKEnded(context.Context, domain.BattleResult) error        { return nil }
func (NopProducer) Close() error                                                     { return nil }
