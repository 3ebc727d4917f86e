package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Presence tracks which users currently hold a live socket, keyed in redis
// with a TTL so a crashed gateway's entries age out on their own. All
// methods tolerate a nil receiver for single-node deployments without redis.
type Presence struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewPresence(client *redis.Client, ttl time.Duration) *Presence {
	if ttl == 0 {
		ttl = 90 * time.Second
	}
	return &Presence{redis: client, ttl: ttl}
}

func presenceKey(userID uuid.UUID) string {
	return "presence:user:" + userID.String()
}

func typingKey(conversationID, userID uuid.UUID) string {
	return "presence:typing:" + conversationID.String() + ":" + userID.String()
}

// Touch marks the user online, refreshing the TTL. Called on connect and on
// every pong.
func (p *Presence) Touch(ctx context.Context, userID uuid.UUID) {
	if p == nil || p.redis == nil {
		return
	}
	p.redis.Set(ctx, presenceKey(userID), "1", p.ttl)
}

// Drop removes the user's presence entry on disconnect.
func (p *Presence) Drop(ctx context.Context, userID uuid.UUID) {
	if p == nil || p.redis == nil {
		return
	}
	p.redis.Del(ctx, presenceKey(userID))
}

// Online reports whether the user has a live connection on any gateway.
func (p *Presence) Online(ctx context.Context, userID uuid.UUID) bool {
	if p == nil || p.redis == nil {
		return false
	}
	n, err := p.redis.Exists(ctx, presenceKey(userID)).Result()
	return err == nil && n > 0
}

// SetTyping records a short-lived typing marker for the conversation.
func (p *Presence) SetTyping(ctx context.Context, conversationID, userID uuid.UUID) {
	if p == nil || p.redis == nil {
		return
	}
	p.redis.Set(ctx, typingKey(conversationID, userID), "1", 5*time.Second)
}
