package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/freeeve/enclaves/internal/repository"
)

// Key patterns for Redis session state.
func stateKey(sessionID string) string        { return "session:" + sessionID + ":state" }
func ordersKey(sessionID, side string) string { return "session:" + sessionID + ":orders:" + side }
func timerKey(sessionID string) string        { return "session:" + sessionID + ":timer" }

// SessionFromTimerKey extracts the session id from an expired timer key.
func SessionFromTimerKey(key string) (string, bool) {
	if !strings.HasPrefix(key, "session:") || !strings.HasSuffix(key, ":timer") {
		return "", false
	}
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// SetState stores the live session state JSON.
func (c *Client) SetState(ctx context.Context, sessionID string, state json.RawMessage) error {
	return c.rdb.Set(ctx, stateKey(sessionID), []byte(state), 0).Err()
}

// GetState retrieves the live session state JSON, or nil if there is none.
func (c *Client) GetState(ctx context.Context, sessionID string) (json.RawMessage, error) {
	return c.getRaw(ctx, stateKey(sessionID), "get state")
}

// SetOrders stores one side's pending orders.
func (c *Client) SetOrders(ctx context.Context, sessionID, side string, orders json.RawMessage) error {
	return c.rdb.Set(ctx, ordersKey(sessionID, side), []byte(orders), 0).Err()
}

// GetOrders retrieves one side's pending orders, or nil if there are none.
func (c *Client) GetOrders(ctx context.Context, sessionID, side string) (json.RawMessage, error) {
	return c.getRaw(ctx, ordersKey(sessionID, side), "get orders")
}

func (c *Client) getRaw(ctx context.Context, key, op string) (json.RawMessage, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return json.RawMessage(data), nil
}

// ClearOrders drops both sides' pending orders.
func (c *Client) ClearOrders(ctx context.Context, sessionID string) error {
	return c.rdb.Del(ctx, ordersKey(sessionID, repository.SidePlayer), ordersKey(sessionID, repository.SideAI)).Err()
}

// turnGracePeriod is the extra time after the displayed deadline before the
// timer key expires.
const turnGracePeriod = 2 * time.Second

// SetTimer creates a timer key with a TTL. When the key expires, Redis
// keyspace notifications trigger turn resolution.
func (c *Client) SetTimer(ctx context.Context, sessionID string, deadline time.Time) error {
	ttl := time.Until(deadline) + turnGracePeriod
	if ttl <= 0 {
		ttl = time.Second
	}
	return c.rdb.Set(ctx, timerKey(sessionID), deadline.Unix(), ttl).Err()
}

// ClearTimer removes the timer for a session.
func (c *Client) ClearTimer(ctx context.Context, sessionID string) error {
	return c.rdb.Del(ctx, timerKey(sessionID)).Err()
}

// DeleteSessionData removes all Redis data for a session.
func (c *Client) DeleteSessionData(ctx context.Context, sessionID string) error {
	return c.rdb.Del(ctx,
		stateKey(sessionID),
		ordersKey(sessionID, repository.SidePlayer),
		ordersKey(sessionID, repository.SideAI),
		timerKey(sessionID),
	).Err()
}
