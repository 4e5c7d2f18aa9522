package notification

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// CountCache caches per-user unread counts in front of Storage.
// Implementations may lose entries at any time; the manager always falls
// back to a storage count on miss.
type CountCache interface {
	Get(ctx context.Context, userID string) (count int, ok bool, err error)
	Set(ctx context.Context, userID string, count int) error
	Invalidate(ctx context.Context, userID string) error
}

// DefaultCountTTL bounds staleness when an invalidation is lost.
const DefaultCountTTL = time.Minute

// RedisCountCache stores unread counts in Redis with a short TTL.
type RedisCountCache struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

// NewRedisCountCache creates a cache on an existing Redis client.
// A non-positive ttl falls back to DefaultCountTTL.
func NewRedisCountCache(client goredis.UniversalClient, ttl time.Duration) *RedisCountCache {
	if ttl <= 0 {
		ttl = DefaultCountTTL
	}
	return &RedisCountCache{client: client, ttl: ttl}
}

func countKey(userID string) string {
	return "ntf:unread:" + userID
}

func (c *RedisCountCache) Get(ctx context.Context, userID string) (int, bool, error) {
	val, err := c.client.Get(ctx, countKey(userID)).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("notification: count cache get: %w", err)
	}
	count, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, nil
	}
	return count, true, nil
}

func (c *RedisCountCache) Set(ctx context.Context, userID string, count int) error {
	if err := c.client.Set(ctx, countKey(userID), strconv.Itoa(count), c.ttl).Err(); err != nil {
		return fmt.Errorf("notification: count cache set: %w", err)
	}
	return nil
}

func (c *RedisCountCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, countKey(userID)).Err(); err != nil {
		return fmt.Errorf("notification: count cache invalidate: %w", err)
	}
	return nil
}

// NoopCountCache disables caching; every count hits storage.
type NoopCountCache struct{}

func (NoopCountCache) Get(context.Context, string) (int, bool, error) { return 0, false, nil }
func (NoopCountCache) Set(context.Context, string, int) error        { return nil }
func (NoopCountCache) Invalidate(context.Context, string) error      { return nil }
