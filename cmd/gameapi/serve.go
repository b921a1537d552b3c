// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/6lebedev9/GameAPI/internal/api"
	"github.com/6lebedev9/GameAPI/internal/auth"
	"github.com/6lebedev9/GameAPI/internal/auth/postgres"
	"github.com/6lebedev9/GameAPI/internal/config"
	"github.com/6lebedev9/GameAPI/internal/logging"
	"github.com/6lebedev9/GameAPI/internal/ratelimit"
	"github.com/6lebedev9/GameAPI/internal/session"
	"github.com/6lebedev9/GameAPI/pkg/errutil"
)

// readinessTimeout bounds the database ping behind the readiness probe.
const readinessTimeout = 2 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the account API server",
		Long: `Start the HTTP API serving account registration, login and
credential updates. Configuration comes from --config, GAMEAPI_* environment
variables and flags.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}

	config.RegisterFlags(cmd.Flags())

	return cmd
}

// runServeWithDeps starts the API with injectable dependencies and blocks
// until a signal, a server failure or ctx cancellation. If deps is nil,
// default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := deps.ConfigLoader(configFile, cmd.Flags())
	if err != nil {
		return oops.With("operation", "load configuration").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return err //nolint:wrapcheck // already carries CONFIG_INVALID and every problem
	}

	logger, err := logging.New(logging.Options{
		Service: "gameapi",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
	}, deps.LogOutput)
	if err != nil {
		return oops.With("operation", "set up logging").Wrap(err)
	}
	slog.SetDefault(logger)

	logger.Info("starting gameapi",
		"http_addr", cfg.HTTP.Addr,
		"metrics_addr", cfg.Metrics.Addr,
		"auto_migrate", cfg.Database.AutoMigrate,
		"throttle", cfg.RateLimit.RedisAddr != "",
	)

	// Signing material is checked before touching the database.
	issuer, err := session.NewIssuer(session.Config{
		Key:      []byte(cfg.JWT.Key),
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
		TTL:      cfg.JWT.TTL,
	})
	if err != nil {
		return oops.With("operation", "create session issuer").Wrap(err)
	}
	hasher, err := auth.NewBcryptHasher(cfg.Password.BcryptCost)
	if err != nil {
		return oops.With("operation", "create password hasher").Wrap(err)
	}

	pool, err := deps.PoolFactory(ctx, cfg.Database.URL, cfg.Database.ConnectAttempts, logger)
	if err != nil {
		return oops.With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		if err := runAutoMigration(deps.MigratorFactory, cfg.Database.URL, logger); err != nil {
			return err
		}
	}

	// Spans are not exported; the provider gives every request and
	// operation the trace and span ids that log records carry.
	tracerProvider := sdktrace.NewTracerProvider()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer shutdownCancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("error shutting down tracer provider", "error", err)
		}
	}()

	svc, err := auth.NewServiceWithLogger(
		postgres.NewAccountRepository(pool),
		postgres.NewTokenRepository(pool),
		postgres.NewTransactor(pool),
		hasher,
		issuer,
		logger,
		auth.WithPasswordPolicy(auth.PasswordPolicy{MinEntropy: cfg.Password.MinEntropy}),
		auth.WithTracerProvider(tracerProvider),
	)
	if err != nil {
		return oops.With("operation", "create account service").Wrap(err)
	}

	opts := []api.Option{api.WithLogger(logger), api.WithTracerProvider(tracerProvider)}

	if cfg.RateLimit.RedisAddr != "" {
		client, err := deps.RedisFactory(ctx, cfg.RateLimit.RedisAddr)
		if err != nil {
			return oops.With("operation", "connect to redis").Wrap(err)
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				logger.Warn("error closing redis client", "error", closeErr)
			}
		}()
		limiter, err := ratelimit.NewRedisLimiter(client, cfg.RateLimit.Limit, cfg.RateLimit.Window)
		if err != nil {
			return oops.With("operation", "create rate limiter").Wrap(err)
		}
		opts = append(opts, api.WithLimiter(limiter))
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, func() bool {
			pingCtx, pingCancel := context.WithTimeout(context.Background(), readinessTimeout)
			defer pingCancel()
			return pool.Ping(pingCtx) == nil
		})
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		opts = append(opts, api.WithMetrics(obsServer.Metrics()))
	}

	handler, err := api.NewHandler(svc, issuer, opts...)
	if err != nil {
		stopServers(cfg.HTTP.ShutdownTimeout, logger, obsServer)
		return oops.With("operation", "create api handler").Wrap(err)
	}

	apiServer := deps.APIServerFactory(cfg.HTTP.Addr, handler, logger)
	apiErrCh, err := apiServer.Start()
	if err != nil {
		stopServers(cfg.HTTP.ShutdownTimeout, logger, obsServer)
		return oops.With("operation", "start api server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrCh, "api")

	cmd.Println("GameAPI started")
	logger.Info("gameapi ready", "http_addr", apiServer.Addr())

	<-ctx.Done()
	logger.Info("shutting down...")

	stopServers(cfg.HTTP.ShutdownTimeout, logger, apiServer, obsServer)

	logger.Info("shutdown complete")
	return nil
}

type stopper interface {
	Stop(ctx context.Context) error
}

// stopServers stops each non-nil server in order within one shared timeout.
func stopServers(timeout time.Duration, logger *slog.Logger, servers ...stopper) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for _, s := range servers {
		if s == nil {
			continue
		}
		if err := s.Stop(ctx); err != nil {
			errutil.LogError(logger, "error stopping server", err)
		}
	}
}

// runAutoMigration applies pending migrations before serving.
func runAutoMigration(factory func(url string) (AutoMigrator, error), url string, logger *slog.Logger) error {
	migrator, err := factory(url)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("error closing migrator", "error", closeErr)
		}
	}()

	logger.Info("applying database migrations")
	if err := migrator.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	logger.Info("database migrations applied")
	return nil
}

// monitorServerErrors cancels ctx when a server reports an error. It exits
// when an error arrives, the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
