package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, window time.Duration, max int) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, "test", window, max), mr
}

func TestAllowWithinLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t, time.Minute, 3)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ok, _, err := limiter.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		require.True(t, ok, "request %d", i+1)
	}
}

func TestBlocksOverLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t, time.Minute, 2)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		ok, _, err := limiter.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, retry, err := limiter.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.False(t, ok)
	require.Greater(t, retry, time.Duration(0))
}

func TestKeysIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t, time.Minute, 1)
	ctx := context.Background()
	ok, _, err := limiter.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.True(t, ok)
	ok, _, err = limiter.Allow(ctx, "5.6.7.8")
	require.NoError(t, err)
	require.True(t, ok, "second client must not inherit first client's count")
}

func TestWindowResets(t *testing.T) {
	limiter, mr := newTestLimiter(t, time.Minute, 1)
	ctx := context.Background()
	ok, _, err := limiter.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.True(t, ok)
	ok, _, err = limiter.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.False(t, ok)

	mr.FastForward(time.Minute + time.Second)

	ok, _, err = limiter.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.True(t, ok, "window must reset after expiry")
}
