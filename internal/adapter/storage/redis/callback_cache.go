package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"settlement-engine/internal/core/domain"

	goredis "github.com/redis/go-redis/v9"
)

// CallbackCache implements ports.CallbackCache using Redis.
// It only ever holds terminal statuses, keyed by checkout request id.
type CallbackCache struct {
	client *goredis.Client
	prefix string
}

// NewCallbackCache creates a new Redis-backed callback cache.
func NewCallbackCache(client *goredis.Client) *CallbackCache {
	return &CallbackCache{
		client: client,
		prefix: "callback:",
	}
}

// GetStatus returns the cached status, or "" if the key does not exist.
func (c *CallbackCache) GetStatus(ctx context.Context, checkoutID string) (domain.PaymentStatus, error) {
	val, err := c.client.Get(ctx, c.prefix+checkoutID).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("redis callback get: %w", err)
	}
	return domain.PaymentStatus(val), nil
}

// SetStatus records a terminal status. Non-terminal statuses are ignored so a
// stale "processing" can never short-circuit a real callback.
func (c *CallbackCache) SetStatus(ctx context.Context, checkoutID string, status domain.PaymentStatus, ttl time.Duration) error {
	if !status.IsTerminal() {
		return nil
	}
	if err := c.client.Set(ctx, c.prefix+checkoutID, string(status), ttl).Err(); err != nil {
		return fmt.Errorf("redis callback set: %w", err)
	}
	return nil
}
