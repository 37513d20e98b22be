package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// expiryEvents turns on keyevent notifications for expired keys, which the
// turn timer listener subscribes to.
const expiryEvents = "Ex"

// Client holds live session state: snapshots, order sets and turn timers.
type Client struct {
	rdb *redis.Client
}

// NewClient dials Redis at redisURL and checks the connection.
func NewClient(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// NewClientFromPool wraps an existing connection.
func NewClientFromPool(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// EnableTimerEvents asks the server to publish key expiry events. Managed
// Redis often forbids CONFIG SET; the timer poller still resolves turns then.
func (c *Client) EnableTimerEvents(ctx context.Context) error {
	if err := c.rdb.ConfigSet(ctx, "notify-keyspace-events", expiryEvents).Err(); err != nil {
		return fmt.Errorf("enable expiry events: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying exposes the connection for pub/sub.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
