package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/motorwatch/motorwatch/internal/domain"
)

// DefaultChannel is the Redis pub/sub channel for condition events.
const DefaultChannel = "motorwatch:events"

// RedisPublisher pushes events onto a Redis pub/sub channel for external
// consumers. Optional; the engine works without it.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	timeout time.Duration
}

// NewRedisPublisher wraps an existing client. An empty channel uses
// DefaultChannel.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel, timeout: 2 * time.Second}
}

// Publish serialises the event to JSON and publishes it.
func (p *RedisPublisher) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return domain.Wrap(domain.KindInternal, "events.redis.publish", err, "marshal event")
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return domain.Wrap(domain.KindStoreUnavailable, "events.redis.publish", err, "publish event")
	}
	return nil
}

// Ping verifies the Redis connection.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.client.Ping(ctx).Err()
}
