package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect initializes a Redis client from URL or host:port input.
// Supporting both formats keeps local/dev and container config paths simple.
func Connect(_ context.Context, redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") {
		opt, parseErr := redis.ParseURL(redisURL)
		if parseErr != nil {
			return nil, fmt.Errorf("parse redis url: %w", parseErr)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisMessageDedup filters redelivered messages by envelope message id.
// Entries expire with the configured TTL; losing the cache only costs
// redundant dispatches, which the orchestrator absorbs.
type RedisMessageDedup struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisMessageDedup(client *redis.Client, ttl time.Duration) *RedisMessageDedup {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisMessageDedup{client: client, ttl: ttl}
}

func (d *RedisMessageDedup) IsDuplicate(ctx context.Context, messageID string) (bool, error) {
	n, err := d.client.Exists(ctx, dedupKey(messageID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *RedisMessageDedup) MarkProcessed(ctx context.Context, messageID string) error {
	return d.client.Set(ctx, dedupKey(messageID), 1, d.ttl).Err()
}

func dedupKey(messageID string) string {
	return "saga:msg:" + messageID
}
