// Package cache keeps serialized room snapshots in Redis so a room evicted
// or lost on restart comes back with its live state.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 6 * time.Hour

// SnapshotCache stores one snapshot per access code.
type SnapshotCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewSnapshotCache(client redis.Cmdable, prefix string, ttl time.Duration) *SnapshotCache {
	if prefix == "" {
		prefix = "livescore"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SnapshotCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *SnapshotCache) key(code string) string {
	return fmt.Sprintf("%s:room:%s:snapshot", c.prefix, code)
}

func (c *SnapshotCache) Put(ctx context.Context, code string, snapshot []byte) error {
	if err := c.client.Set(ctx, c.key(code), snapshot, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache snapshot: %w", err)
	}
	return nil
}

// Get returns the cached snapshot and whether one was present.
func (c *SnapshotCache) Get(ctx context.Context, code string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.key(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return data, true, nil
}

func (c *SnapshotCache) Delete(ctx context.Context, code string) error {
	if err := c.client.Del(ctx, c.key(code)).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// Open connects to Redis at url (redis://host:port/db) and pings it.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}
