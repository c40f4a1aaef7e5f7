// Package cache provides a Dragonfly/Redis client wrapper that doubles as a
// key-value store for per-user client state.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "pai-syllabus:"

// Cache wraps a Redis/Dragonfly client.
type Cache struct {
	Client *redis.Client
}

// ParseURL validates a Redis connection URL.
func ParseURL(url string) (*redis.Options, error) {
	if url == "" {
		return nil, fmt.Errorf("cache URL is empty")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid cache URL: %w", err)
	}
	return opts, nil
}

// New creates a new cache client.
func New(ctx context.Context, url string) (*Cache, error) {
	opts, err := ParseURL(url)
	if err != nil {
		return nil, err
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging cache: %w", err)
	}

	return &Cache{Client: client}, nil
}

// Get returns the value stored under key. Entries never expire.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := c.Client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return v, true, nil
}

// Set stores value under key with no expiry.
func (c *Cache) Set(ctx context.Context, key string, value []byte) error {
	if err := c.Client.Set(ctx, keyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Close shuts down the cache client.
func (c *Cache) Close() error {
	return c.Client.Close()
}

// HealthCheck verifies the cache connection is alive.
func (c *Cache) HealthCheck(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}
