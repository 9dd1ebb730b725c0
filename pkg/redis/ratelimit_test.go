package redis

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, limit int64, window time.Duration) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewRateLimiter(NewClientFrom(rdb, logger), "test:", limit, window), mr
}

func TestRateLimiter_AllowsUpToLimitPerWindow(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2, 5*time.Second)
	now := time.Now()
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	first, err := limiter.Allow(ctx, "tenant:fortnox")
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	assert.Equal(t, int64(1), first.Remaining)

	second, err := limiter.Allow(ctx, "tenant:fortnox")
	require.NoError(t, err)
	assert.True(t, second.Allowed)

	third, err := limiter.Allow(ctx, "tenant:fortnox")
	require.NoError(t, err)
	assert.False(t, third.Allowed)
	assert.Greater(t, third.RetryIn, time.Duration(0))
	assert.LessOrEqual(t, third.RetryIn, 5*time.Second)

	other, err := limiter.Allow(ctx, "other:fortnox")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are limited independently")
}

func TestRateLimiter_SlidesWindow(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, time.Second)
	now := time.Now()
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	res, err := limiter.Allow(ctx, "k")
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = limiter.Allow(ctx, "k")
	require.NoError(t, err)
	require.False(t, res.Allowed)

	now = now.Add(1100 * time.Millisecond)
	res, err = limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRateLimiter_WaitStopsWithContext(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, time.Minute)

	require.NoError(t, limiter.Wait(context.Background(), "k", "fortnox"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := limiter.Wait(ctx, "k", "fortnox")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimiter_WaitFailsOpen(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1, time.Minute)
	mr.Close()

	assert.NoError(t, limiter.Wait(context.Background(), "k", "fortnox"))
}
