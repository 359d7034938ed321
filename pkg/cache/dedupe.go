package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Deduper remembers recently seen keys so duplicate deliveries can be skipped.
type Deduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewDeduper creates a Deduper storing keys under prefix for ttl.
func NewDeduper(client *redis.Client, prefix string, ttl time.Duration) *Deduper {
	return &Deduper{client: client, prefix: prefix, ttl: ttl}
}

// FirstSeen atomically marks key as seen and reports whether this call was the first.
func (d *Deduper) FirstSeen(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+key, time.Now().Unix(), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe %s: %w", key, err)
	}
	return ok, nil
}

// Forget removes key so a later delivery is processed again.
func (d *Deduper) Forget(ctx context.Context, key string) error {
	return d.client.Del(ctx, d.prefix+key).Err()
}
