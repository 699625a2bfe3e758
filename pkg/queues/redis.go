package queues

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisChannelPrefix = "dealflow:notifications:"

// RedisNotifier publishes notifications as JSON on one pub/sub channel per
// role, for chat bots and dashboards to pick up.
type RedisNotifier struct {
	client        redis.UniversalClient
	channelPrefix string
}

func NewRedisNotifier(client redis.UniversalClient, channelPrefix string) *RedisNotifier {
	if channelPrefix == "" {
		channelPrefix = DefaultRedisChannelPrefix
	}

	return &RedisNotifier{client: client, channelPrefix: channelPrefix}
}

func (n *RedisNotifier) Name() string {
	return "redis"
}

// Channel is the pub/sub channel notifications for role are published on.
func (n *RedisNotifier) Channel(role string) string {
	return n.channelPrefix + role
}

func (n *RedisNotifier) Notify(ctx context.Context, notification Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	if err := n.client.Publish(ctx, n.Channel(notification.Role), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	return nil
}
