// Package cache fronts Redis for catalog reads and per-IP request buckets.
// All keys live under a single namespace so the storefront can share a Redis
// instance with other services.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyNamespace = "careerbooks"

// Pool defaults, applied only where the URL does not set its own
// (redis://host:6379/0?pool_size=20 wins over poolSize).
const (
	poolSize        = 10
	minIdleConns    = 2
	poolTimeout     = 4 * time.Second
	connMaxIdleTime = 5 * time.Minute
	dialPingTimeout = 3 * time.Second
)

// Cache holds the Redis client and the catalog TTL.
type Cache struct {
	client  *redis.Client
	bookTTL time.Duration
}

// New parses redisURL, applies pool defaults and verifies the server answers.
func New(ctx context.Context, redisURL string, bookTTL time.Duration) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	applyPoolDefaults(opt)

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, dialPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opt.Addr, err)
	}

	return NewFromClient(client, bookTTL), nil
}

func applyPoolDefaults(opt *redis.Options) {
	if opt.PoolSize == 0 {
		opt.PoolSize = poolSize
	}
	if opt.MinIdleConns == 0 {
		opt.MinIdleConns = minIdleConns
	}
	if opt.PoolTimeout == 0 {
		opt.PoolTimeout = poolTimeout
	}
	if opt.ConnMaxIdleTime == 0 {
		opt.ConnMaxIdleTime = connMaxIdleTime
	}
}

// NewFromClient wraps an existing client. A non-positive bookTTL falls back
// to DefaultBookTTL.
func NewFromClient(client *redis.Client, bookTTL time.Duration) *Cache {
	if bookTTL <= 0 {
		bookTTL = DefaultBookTTL
	}
	return &Cache{client: client, bookTTL: bookTTL}
}

// key joins parts under the storefront namespace: key("book", "frontend01")
// is "careerbooks:book:frontend01".
func key(parts ...string) string {
	return keyNamespace + ":" + strings.Join(parts, ":")
}

// Ping is used by the readiness probe.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}

// Client exposes the raw client for test fixtures that flush the database.
func (c *Cache) Client() *redis.Client {
	return c.client
}
