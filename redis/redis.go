// Package redis publishes archival records of iperfer runs to Redis, so
// that collectors can fetch them by connection UUID.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long published records are kept.
const DefaultTTL = time.Hour

// Client wraps the Redis client.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewClient creates a new Redis client connected to the given address.
func NewClient(addr string) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr, // e.g., "localhost:6379"
	})
	return &Client{rdb: rdb, ttl: DefaultTTL}
}

// Ping checks that the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis client connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
