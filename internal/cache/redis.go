// Package cache provides the Redis read-through cache for loaded cases.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"insightstream/api/internal/casefile"
)

// ErrMiss reports that the requested case is not cached.
var ErrMiss = errors.New("cache miss")

// CaseCache stores serialized cases keyed by case id. A cached entry is
// always the persisted state; callers must invalidate on save so a stale
// working copy never shadows the store.
type CaseCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New connects to Redis from a URL and verifies the connection.
func New(redisURL string, ttl time.Duration) (*CaseCache, error) {
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

	return NewWithClient(client, ttl), nil
}

// NewWithClient wraps an existing Redis client.
func NewWithClient(client *redis.Client, ttl time.Duration) *CaseCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &CaseCache{
		client: client,
		prefix: "case:",
		ttl:    ttl,
	}
}

func (c *CaseCache) key(id string) string {
	return c.prefix + id
}

// Get returns the cached case or ErrMiss.
func (c *CaseCache) Get(ctx context.Context, id string) (*casefile.Case, error) {
	payload, err := c.client.Get(ctx, c.key(id)).Result()
	if err == redis.Nil {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", id, err)
	}

	var cs casefile.Case
	if err := json.Unmarshal([]byte(payload), &cs); err != nil {
		return nil, fmt.Errorf("decode cached case %s: %w", id, err)
	}
	cs.EnsureWorkingState()
	return &cs, nil
}

// Set stores the case under its id with the configured TTL.
func (c *CaseCache) Set(ctx context.Context, cs *casefile.Case) error {
	payload, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("encode case %s: %w", cs.ID, err)
	}
	if err := c.client.Set(ctx, c.key(cs.ID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", cs.ID, err)
	}
	return nil
}

// Invalidate drops the cached entry. Deleting a missing key is not an error.
func (c *CaseCache) Invalidate(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, c.key(id)).Err(); err != nil {
		return fmt.Errorf("cache invalidate %s: %w", id, err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (c *CaseCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *CaseCache) Close() error {
	return c.client.Close()
}
