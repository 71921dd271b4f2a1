// Package cache provides a Redis-backed cache for the published content
// list. The cache is an optimization only: misses and Redis failures fall
// through to Postgres.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"copydesk/api/internal/store"
)

const publishedListKey = "copydesk:published-list"

type PublishedList struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPublishedList connects to Redis and verifies the connection.
func NewPublishedList(redisURL string, ttl time.Duration) (*PublishedList, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewPublishedListWithClient(client, ttl), nil
}

// NewPublishedListWithClient wraps an existing client (used in tests).
func NewPublishedListWithClient(client *redis.Client, ttl time.Duration) *PublishedList {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &PublishedList{client: client, ttl: ttl}
}

// Get returns the cached published list, or ok=false on a miss or any Redis
// failure.
func (c *PublishedList) Get(ctx context.Context) ([]store.ContentItem, bool) {
	raw, err := c.client.Get(ctx, publishedListKey).Bytes()
	if err != nil {
		return nil, false
	}
	var items []store.ContentItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	return items, true
}

// Set stores the published list with the configured TTL.
func (c *PublishedList) Set(ctx context.Context, items []store.ContentItem) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode published list: %w", err)
	}
	if err := c.client.Set(ctx, publishedListKey, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache published list: %w", err)
	}
	return nil
}

// Invalidate drops the cached list. Called on every mutating operation.
func (c *PublishedList) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, publishedListKey).Err(); err != nil {
		return fmt.Errorf("invalidate published list: %w", err)
	}
	return nil
}

func (c *PublishedList) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *PublishedList) Close() error {
	return c.client.Close()
}
