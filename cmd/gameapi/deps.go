// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/6lebedev9/GameAPI/internal/api"
	"github.com/6lebedev9/GameAPI/internal/auth/postgres"
	"github.com/6lebedev9/GameAPI/internal/config"
	"github.com/6lebedev9/GameAPI/internal/observability"
	"github.com/6lebedev9/GameAPI/internal/ratelimit"
	"github.com/6lebedev9/GameAPI/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// ConfigLoader loads configuration.
	// Default: config.Load
	ConfigLoader func(path string, flags *pflag.FlagSet) (*config.Config, error)

	// PoolFactory connects to the database.
	// Default: store.Connect
	PoolFactory func(ctx context.Context, url string, attempts int, logger *slog.Logger) (Pool, error)

	// MigratorFactory creates a migrator for auto-migration.
	// Default: store.NewMigrator
	MigratorFactory func(url string) (AutoMigrator, error)

	// RedisFactory connects to Redis for request throttling.
	// Default: ratelimit.NewClient
	RedisFactory func(ctx context.Context, addr string) (RedisClient, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// APIServerFactory creates the API server.
	// Default: api.NewServer
	APIServerFactory func(addr string, handler http.Handler, logger *slog.Logger) APIServer

	// LogOutput receives log output.
	// Default: os.Stderr
	LogOutput io.Writer
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.ConfigLoader == nil {
		out.ConfigLoader = config.Load
	}
	if out.PoolFactory == nil {
		out.PoolFactory = func(ctx context.Context, url string, attempts int, logger *slog.Logger) (Pool, error) {
			return store.Connect(ctx, url, attempts, logger)
		}
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(url string) (AutoMigrator, error) {
			return store.NewMigrator(url)
		}
	}
	if out.RedisFactory == nil {
		out.RedisFactory = func(ctx context.Context, addr string) (RedisClient, error) {
			return ratelimit.NewClient(ctx, addr)
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if out.APIServerFactory == nil {
		out.APIServerFactory = func(addr string, handler http.Handler, logger *slog.Logger) APIServer {
			return api.NewServer(addr, handler, logger)
		}
	}
	return &out
}

// Pool wraps the methods used from *pgxpool.Pool.
type Pool interface {
	postgres.DB
	Ping(ctx context.Context) error
	Close()
}

// AutoMigrator wraps the methods used from store.Migrator during startup.
type AutoMigrator interface {
	Up() error
	Close() error
}

// RedisClient wraps the methods used from *redis.Client.
type RedisClient interface {
	redis.Cmdable
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// APIServer wraps the methods used from api.Server.
type APIServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

var (
	_ Pool                = (*pgxpool.Pool)(nil)
	_ AutoMigrator        = (*store.Migrator)(nil)
	_ RedisClient         = (*redis.Client)(nil)
	_ ObservabilityServer = (*observability.Server)(nil)
	_ APIServer           = (*api.Server)(nil)
)
