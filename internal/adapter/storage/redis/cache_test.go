package redis

import (
	"context"
	"testing"
	"time"

	"settlement-engine/internal/core/domain"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return s, client
}

func TestCallbackCache_SetAndGet(t *testing.T) {
	_, client := newTestClient(t)
	cache := NewCallbackCache(client)
	ctx := context.Background()

	status, err := cache.GetStatus(ctx, "ws_CO_1")
	require.NoError(t, err)
	assert.Empty(t, status)

	require.NoError(t, cache.SetStatus(ctx, "ws_CO_1", domain.PaymentStatusCompleted, time.Hour))

	status, err = cache.GetStatus(ctx, "ws_CO_1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, status)
}

func TestCallbackCache_IgnoresNonTerminal(t *testing.T) {
	s, client := newTestClient(t)
	cache := NewCallbackCache(client)
	ctx := context.Background()

	require.NoError(t, cache.SetStatus(ctx, "ws_CO_2", domain.PaymentStatusProcessing, time.Hour))
	assert.False(t, s.Exists("callback:ws_CO_2"))
}

func TestCallbackCache_TTLExpiry(t *testing.T) {
	s, client := newTestClient(t)
	cache := NewCallbackCache(client)
	ctx := context.Background()

	require.NoError(t, cache.SetStatus(ctx, "ws_CO_3", domain.PaymentStatusFailed, time.Second))
	s.FastForward(2 * time.Second)

	status, err := cache.GetStatus(ctx, "ws_CO_3")
	assert.NoError(t, err)
	assert.Empty(t, status, "expired key should miss")
}

func TestCallbackCache_ConnectionError(t *testing.T) {
	s, client := newTestClient(t)
	cache := NewCallbackCache(client)
	s.Close()

	_, err := cache.GetStatus(context.Background(), "ws_CO_4")
	assert.Error(t, err)
}

func TestTokenCache_SetAndGet(t *testing.T) {
	s, client := newTestClient(t)
	cache := NewTokenCache(client)
	ctx := context.Background()

	tok, err := cache.Get(ctx, "174379")
	require.NoError(t, err)
	assert.Empty(t, tok)

	require.NoError(t, cache.Set(ctx, "174379", "access-token", 59*time.Minute))

	tok, err = cache.Get(ctx, "174379")
	require.NoError(t, err)
	assert.Equal(t, "access-token", tok)
	assert.Equal(t, 59*time.Minute, s.TTL("gwtoken:174379"))
}

func TestTokenCache_SkipsExpiredTTL(t *testing.T) {
	s, client := newTestClient(t)
	cache := NewTokenCache(client)

	require.NoError(t, cache.Set(context.Background(), "174379", "short-lived", 0))
	assert.False(t, s.Exists("gwtoken:174379"))
}

func TestInitiationLock_AcquireAndRelease(t *testing.T) {
	_, client := newTestClient(t)
	lock := NewInitiationLock(client)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "user-1", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lock.Acquire(ctx, "user-1", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "duplicate tap should be rejected")

	ok, err = lock.Acquire(ctx, "user-2", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "other users are independent")

	require.NoError(t, lock.Release(ctx, "user-1"))

	ok, err = lock.Acquire(ctx, "user-1", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInitiationLock_Expires(t *testing.T) {
	s, client := newTestClient(t)
	lock := NewInitiationLock(client)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "user-1", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	s.FastForward(31 * time.Second)

	ok, err = lock.Acquire(ctx, "user-1", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "lock should be free after its ttl")
}
