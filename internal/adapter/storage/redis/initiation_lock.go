package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// InitiationLock implements ports.InitiationLock using Redis SET NX.
type InitiationLock struct {
	client *goredis.Client
	prefix string
}

// NewInitiationLock creates a new Redis-backed initiation lock.
func NewInitiationLock(client *goredis.Client) *InitiationLock {
	return &InitiationLock{
		client: client,
		prefix: "initiate:",
	}
}

// Acquire atomically takes the lock if nobody holds it.
// Returns true if the lock was taken, false if it is already held.
func (l *InitiationLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	result, err := l.client.SetArgs(ctx, l.prefix+key, 1, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis initiation lock: %w", err)
	}
	return result == "OK", nil
}

// Release drops the lock early.
func (l *InitiationLock) Release(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis initiation unlock: %w", err)
	}
	return nil
}
