// Package cache is a namespaced key/value cache on Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss signals that the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache stores string values under namespace:key.
type Cache struct {
	client redis.UniversalClient
}

// New connects a single-node client.
func New(addr, password string) *Cache {
	return NewWithClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	}))
}

// NewWithClient wraps an existing client.
func NewWithClient(client redis.UniversalClient) *Cache {
	return &Cache{client: client}
}

// Ping verifies connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache: ping: %w", err)
	}
	return nil
}

func (c *Cache) Set(ctx context.Context, namespace, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, namespace+":"+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set: %w", err)
	}
	return nil
}

func (c *Cache) Get(ctx context.Context, namespace, key string) (string, error) {
	val, err := c.client.Get(ctx, namespace+":"+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	if err != nil {
		return "", fmt.Errorf("cache: get: %w", err)
	}
	return val, nil
}

func (c *Cache) Delete(ctx context.Context, namespace, key string) error {
	if err := c.client.Del(ctx, namespace+":"+key).Err(); err != nil {
		return fmt.Errorf("cache: delete: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	return c.client.Close()
}
