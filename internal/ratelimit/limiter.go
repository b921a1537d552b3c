// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

// Package ratelimit throttles requests with fixed-window counters kept in
// Redis, so the limit holds across API replicas.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// Defaults applied when a limit or window is not configured.
const (
	DefaultLimit  = 20
	DefaultWindow = time.Minute
	keyPrefix     = "gameapi:rl:"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// RedisLimiter is a fixed-window Limiter backed by INCR and EXPIRE.
type RedisLimiter struct {
	client redis.Cmdable
	limit  int
	window time.Duration
}

// NewRedisLimiter creates a RedisLimiter allowing limit requests per window.
// Non-positive values fall back to the defaults.
func NewRedisLimiter(client redis.Cmdable, limit int, window time.Duration) (*RedisLimiter, error) {
	if client == nil {
		return nil, oops.Code("RATELIMIT_INVALID_CONFIG").Errorf("redis client is required")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisLimiter{client: client, limit: limit, window: window}, nil
}

// Allow counts one request against key in the current window.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	k := keyPrefix + key

	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return Decision{}, oops.Code("RATELIMIT_UNAVAILABLE").With("operation", "incr").Wrap(err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return Decision{}, oops.Code("RATELIMIT_UNAVAILABLE").With("operation", "expire").Wrap(err)
		}
	}

	if count <= int64(l.limit) {
		return Decision{Allowed: true, Remaining: l.limit - int(count)}, nil
	}

	retryAfter, err := l.client.TTL(ctx, k).Result()
	if err != nil || retryAfter <= 0 {
		// A key left without expiry by a failed EXPIRE would block forever.
		if expErr := l.client.Expire(ctx, k, l.window).Err(); expErr != nil {
			return Decision{}, oops.Code("RATELIMIT_UNAVAILABLE").With("operation", "expire").Wrap(expErr)
		}
		retryAfter = l.window
	}
	return Decision{Allowed: false, RetryAfter: retryAfter}, nil
}

// NewClient creates a Redis client for addr and verifies it answers PING.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close() //nolint:errcheck // ping error takes precedence
		return nil, oops.Code("RATELIMIT_CONNECT_FAILED").With("addr", addr).Wrap(err)
	}
	return client, nil
}
