package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBroadcaster publishes in-app notifications on a per-owner Redis
// channel. Connected clients subscribe to their own channel; nobody waits
// for them.
type RedisBroadcaster struct {
	client *redis.Client
}

func NewRedisBroadcaster(client *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{client: client}
}

func OwnerChannel(ownerID string) string {
	return "reminders:inapp:" + ownerID
}

func (b *RedisBroadcaster) BroadcastToOwner(ctx context.Context, ownerID string, event string, payload any) error {
	message, err := json.Marshal(map[string]any{
		"event":     event,
		"payload":   payload,
		"timestamp": time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast payload: %w", err)
	}

	if err := b.client.Publish(ctx, OwnerChannel(ownerID), message).Err(); err != nil {
		return fmt.Errorf("failed to publish to owner channel: %w", err)
	}

	return nil
}
