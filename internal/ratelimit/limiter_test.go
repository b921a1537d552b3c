// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/6lebedev9/GameAPI/internal/ratelimit"
	"github.com/6lebedev9/GameAPI/pkg/errutil"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestNewRedisLimiter(t *testing.T) {
	_, err := ratelimit.NewRedisLimiter(nil, 1, time.Second)
	errutil.AssertErrorCode(t, err, "RATELIMIT_INVALID_CONFIG")
}

func TestRedisLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)

	l, err := ratelimit.NewRedisLimiter(client, 3, time.Minute)
	require.NoError(t, err)

	for i := 2; i >= 0; i-- {
		d, err := l.Allow(ctx, "login:10.0.0.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, i, d.Remaining)
	}

	d, err := l.Allow(ctx, "login:10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.RetryAfter)

	t.Run("keys are independent", func(t *testing.T) {
		d, err := l.Allow(ctx, "login:10.0.0.2")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	})

	t.Run("window expiry resets the counter", func(t *testing.T) {
		mr.FastForward(time.Minute)
		d, err := l.Allow(ctx, "login:10.0.0.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 2, d.Remaining)
	})
}

func TestRedisLimiter_SetsExpiryOnFirstHit(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)

	l, err := ratelimit.NewRedisLimiter(client, 5, 30*time.Second)
	require.NoError(t, err)

	_, err = l.Allow(ctx, "register:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, mr.TTL("gameapi:rl:register:1.2.3.4"))
}

func TestRedisLimiter_RepairsMissingExpiry(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)

	require.NoError(t, mr.Set("gameapi:rl:login:stuck", "10"))

	l, err := ratelimit.NewRedisLimiter(client, 1, time.Minute)
	require.NoError(t, err)

	d, err := l.Allow(ctx, "login:stuck")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.RetryAfter)
	assert.Equal(t, time.Minute, mr.TTL("gameapi:rl:login:stuck"))
}

func TestRedisLimiter_Defaults(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)

	l, err := ratelimit.NewRedisLimiter(client, 0, 0)
	require.NoError(t, err)

	d, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, ratelimit.DefaultLimit-1, d.Remaining)
}

func TestRedisLimiter_Unavailable(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	mr.Close()

	l, err := ratelimit.NewRedisLimiter(client, 1, time.Minute)
	require.NoError(t, err)

	_, err = l.Allow(ctx, "k")
	errutil.AssertErrorCode(t, err, "RATELIMIT_UNAVAILABLE")
}

func TestNewClient(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	client, err := ratelimit.NewClient(ctx, mr.Addr())
	require.NoError(t, err)
	require.NoError(t, client.Close())

	mr.Close()
	_, err = ratelimit.NewClient(ctx, mr.Addr())
	errutil.AssertErrorCode(t, err, "RATELIMIT_CONNECT_FAILED")
}
