package notifications

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher emits notification events onto a stream for downstream
// consumers (analytics, digests). Optional; a nil publisher is skipped.
type EventPublisher interface {
	Publish(ctx context.Context, userID uuid.UUID, typ string, payload map[string]interface{})
	Close() error
}

// KafkaPublisher writes notification events to a Kafka topic, fire and
// forget: a broker outage never blocks or fails the notification itself.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
			BatchTimeout: 50 * time.Millisecond,
		},
		logger: logger,
	}
}

type notificationEvent struct {
	UserID    string                 `json:"user_id"`
	Type      string                 `json:"type"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	EmittedAt time.Time              `json:"emitted_at"`
}

func (k *KafkaPublisher) Publish(ctx context.Context, userID uuid.UUID, typ string, payload map[string]interface{}) {
	value, err := json.Marshal(notificationEvent{
		UserID:    userID.String(),
		Type:      typ,
		Payload:   payload,
		EmittedAt: time.Now(),
	})
	if err != nil {
		k.logger.Warn("marshal notification event", zap.Error(err))
		return
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(userID.String()),
		Value: value,
	}); err != nil {
		k.logger.Warn("publish notification event", zap.Error(err))
	}
}

func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}
