package chat

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const bridgeChannelPrefix = "chat:conv:"

// Bridge relays broadcast frames between gateway instances over redis
// pub/sub. Each conversation gets its own channel; the envelope carries the
// publishing hub's ID so instances can skip their own frames.
type Bridge struct {
	redis  *redis.Client
	logger *zap.Logger
}

func NewBridge(client *redis.Client, logger *zap.Logger) *Bridge {
	return &Bridge{redis: client, logger: logger}
}

type bridgeEnvelope struct {
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload"`
}

// Publish sends an already-marshaled event frame to the conversation's
// channel.
func (b *Bridge) Publish(ctx context.Context, origin string, conversationID uuid.UUID, payload []byte) error {
	envelope, err := json.Marshal(bridgeEnvelope{Origin: origin, Payload: payload})
	if err != nil {
		return err
	}
	return b.redis.Publish(ctx, bridgeChannelPrefix+conversationID.String(), envelope).Err()
}

// Run subscribes to all conversation channels and feeds frames to deliver
// until the context is canceled.
func (b *Bridge) Run(ctx context.Context, deliver func(origin string, conversationID uuid.UUID, payload []byte)) {
	sub := b.redis.PSubscribe(ctx, bridgeChannelPrefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			conversationID, err := uuid.Parse(strings.TrimPrefix(msg.Channel, bridgeChannelPrefix))
			if err != nil {
				b.logger.Warn("bridge: bad channel name", zap.String("channel", msg.Channel))
				continue
			}
			var envelope bridgeEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
				b.logger.Warn("bridge: bad envelope", zap.Error(err))
				continue
			}
			deliver(envelope.Origin, conversationID, envelope.Payload)
		}
	}
}
