package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
	pkglog "github.com/weiawesome/wes-io-live/live-engine/pkg/log"
)

// ConfluentProducer implements LiveEventProducer using confluent-kafka-go.
type ConfluentProducer struct {
	producer *kafka.Producer
	topic    string
	doneCh   chan struct{}
}

// NewConfluentProducer creates a new Kafka producer for live events.
func NewConfluentProducer(brokers, topic string, partitions int) (*ConfluentProducer, error) {
	if err := ensureTopic(brokers, topic, partitions); err != nil {
		l := pkglog.L()
		l.Warn().Err(err).Str("topic", topic).Msg("failed to ensure topic, may already exist")
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	cp := &ConfluentProducer{
		producer: p,
		topic:    topic,
		doneCh:   make(chan struct{}),
	}

	go cp.deliveryReportHandler()

	return cp, nil
}

func ensureTopic(brokers, topic string, partitions int) error {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{
		{
			Topic:             topic,
			NumPartitions:     partitions,
			ReplicationFactor: 1,
		},
	})
	if err != nil {
		return err
	}

	for _, result := range results {
		if result.Error.Code() != kafka.ErrNoError && result.Error.Code() != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("failed to create topic %s: %v", result.Topic, result.Error)
		}
	}
	return nil
}

func (cp *ConfluentProducer) deliveryReportHandler() {
	l := pkglog.L()
	for e := range cp.producer.Events() {
		if ev, ok := e.(*kafka.Message); ok && ev.TopicPartition.Error != nil {
			l.Error().Err(ev.TopicPartition.Error).Msg("kafka delivery failed")
		}
	}
	close(cp.doneCh)
}

func (cp *ConfluentProducer) produce(event *LiveEvent) error {
	event.Timestamp = time.Now().UnixMilli()
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal live event: %w", err)
	}

	// Keyed by room so one room's events stay ordered in a partition.
	err = cp.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &cp.topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(event.RoomID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}
	return nil
}

// ProduceStreamStarted sends a stream_started event.
func (cp *ConfluentProducer) ProduceStreamStarted(ctx context.Context, roomID, hostID string) error {
	return cp.produce(&LiveEvent{Type: EventStreamStarted, RoomID: roomID, UserID: hostID})
}

// ProduceStreamEnded sends a stream_ended event with the session summary.
func (cp *ConfluentProducer) ProduceStreamEnded(ctx context.Context, summary *domain.SessionSummary) error {
	return cp.produce(&LiveEvent{Type: EventStreamEnded, RoomID: summary.RoomID, UserID: summary.HostID, Data: summary})
}

// ProduceGiftSent sends a gift_sent event.
func (cp *ConfluentProducer) ProduceGiftSent(ctx context.Context, tx *domain.GiftTransaction) error {
	return cp.produce(&LiveEvent{Type: EventGiftSent, RoomID: tx.RoomID, UserID: tx.SenderID, Data: tx})
}

// ProducePKEnded sends a pk_ended event keyed by the first room.
func (cp *ConfluentProducer) ProducePKEnded(ctx context.Context, result domain.BattleResult) error {
	return cp.produce(&LiveEvent{Type: EventPKEnded, RoomID: result.RoomAID, Data: result})
}

// Close flushes pending messages and closes the producer.
func (cp *ConfluentProducer) Close() error {
	cp.producer.Flush(5000)
	cp.producer.Close()
	<-cp.doneCh
	return nil
}
