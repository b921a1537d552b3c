// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// DefaultConnectAttempts is the number of connection attempts Connect makes
// when attempts is not positive.
const DefaultConnectAttempts = 5

// connectBackoffBase is the first delay between connection attempts. Later
// delays double.
var connectBackoffBase = 500 * time.Millisecond

// Connect opens a connection pool for databaseURL and pings it. Unreachable
// databases are retried with exponential backoff, up to attempts tries in
// total. A malformed URL fails immediately.
func Connect(ctx context.Context, databaseURL string, attempts int, logger *slog.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if attempts <= 0 {
		attempts = DefaultConnectAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}

	var (
		pool  *pgxpool.Pool
		tries int
	)
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(connectBackoffBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		tries++
		p, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return oops.With("operation", "create pool").Wrap(err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			logger.WarnContext(ctx, "database not reachable",
				"attempt", tries,
				"max_attempts", attempts,
				"error", err)
			return retry.RetryableError(err)
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("attempts", tries).
			Wrap(err)
	}

	logger.InfoContext(ctx, "database connected", "attempts", tries)
	return pool, nil
}
