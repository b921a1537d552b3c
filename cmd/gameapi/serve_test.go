// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/6lebedev9/GameAPI/internal/config"
	"github.com/6lebedev9/GameAPI/internal/observability"
	"github.com/6lebedev9/GameAPI/pkg/errutil"
)

func testConfig() *config.Config {
	return &config.Config{
		HTTP:     config.HTTPConfig{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second},
		Log:      config.LogConfig{Format: "json", Level: "debug"},
		Database: config.DatabaseConfig{URL: "postgres://localhost/gameapi", ConnectAttempts: 1},
		JWT: config.JWTConfig{
			Key:      "serve-test-signing-key-0123456789abcdef",
			Issuer:   "gameapi",
			Audience: "gameapi-clients",
			TTL:      24 * time.Hour,
		},
		Password:  config.PasswordConfig{BcryptCost: bcrypt.MinCost},
		RateLimit: config.RateLimitConfig{Limit: 20, Window: time.Minute},
	}
}

// fakeServer stands in for both the API and the observability server.
type fakeServer struct {
	mu       sync.Mutex
	startErr error
	errCh    chan error
	started  chan struct{}
	stopped  bool
	metrics  *observability.Metrics
}

func newFakeServer() *fakeServer {
	return &fakeServer{errCh: make(chan error, 1), started: make(chan struct{})}
}

func (f *fakeServer) Start() (<-chan error, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	close(f.started)
	return f.errCh, nil
}

func (f *fakeServer) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakeServer) Addr() string { return "127.0.0.1:0" }

func (f *fakeServer) Metrics() *observability.Metrics { return f.metrics }

func (f *fakeServer) wasStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

type fakeMigrator struct {
	upErr  error
	upped  bool
	closed bool
}

func (m *fakeMigrator) Up() error {
	m.upped = true
	return m.upErr
}

func (m *fakeMigrator) Close() error {
	m.closed = true
	return nil
}

type serveHarness struct {
	cfg       *config.Config
	api       *fakeServer
	obs       *fakeServer
	migrator  *fakeMigrator
	logs      *bytes.Buffer
	poolCalls int
	readiness observability.ReadinessChecker
	handler   http.Handler
}

func newServeHarness(t *testing.T) *serveHarness {
	t.Helper()
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })
	return &serveHarness{
		cfg:      testConfig(),
		api:      newFakeServer(),
		obs:      newFakeServer(),
		migrator: &fakeMigrator{},
		logs:     new(bytes.Buffer),
	}
}

func (h *serveHarness) deps(t *testing.T) *ServeDeps {
	t.Helper()
	return &ServeDeps{
		ConfigLoader: func(string, *pflag.FlagSet) (*config.Config, error) {
			return h.cfg, nil
		},
		PoolFactory: func(context.Context, string, int, *slog.Logger) (Pool, error) {
			h.poolCalls++
			pool, err := pgxmock.NewPool()
			require.NoError(t, err)
			return pool, nil
		},
		MigratorFactory: func(string) (AutoMigrator, error) {
			return h.migrator, nil
		},
		ObservabilityServerFactory: func(_ string, readiness observability.ReadinessChecker) ObservabilityServer {
			h.readiness = readiness
			return h.obs
		},
		APIServerFactory: func(_ string, handler http.Handler, _ *slog.Logger) APIServer {
			h.handler = handler
			return h.api
		},
		LogOutput: h.logs,
	}
}

// run starts the serve loop and returns a cancel func plus a channel with
// its result.
func (h *serveHarness) run(t *testing.T) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cmd := &cobra.Command{}
	cmd.SetOut(new(bytes.Buffer))
	deps := h.deps(t)

	done := make(chan error, 1)
	go func() {
		done <- runServeWithDeps(ctx, cmd, deps)
	}()
	return cancel, done
}

func waitResult(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
		return nil
	}
}

func waitStarted(t *testing.T, s *fakeServer) {
	t.Helper()
	select {
	case <-s.started:
	case <-time.After(5 * time.Second):
		t.Fatal("server was not started")
	}
}

func TestRunServe_StartsAndShutsDownOnCancel(t *testing.T) {
	h := newServeHarness(t)
	h.cfg.Metrics.Addr = "127.0.0.1:0"

	cancel, done := h.run(t)
	waitStarted(t, h.api)
	cancel()

	require.NoError(t, waitResult(t, done))
	assert.True(t, h.api.wasStopped())
	assert.True(t, h.obs.wasStopped())
	assert.NotNil(t, h.handler)
	require.NotNil(t, h.readiness)
	assert.True(t, h.readiness(), "readiness pings the pool")
	assert.Contains(t, h.logs.String(), "gameapi ready")
	assert.Contains(t, h.logs.String(), "shutdown complete")
	assert.False(t, h.migrator.upped, "auto-migrate is off by default")
}

func TestRunServe_MetricsDisabled(t *testing.T) {
	h := newServeHarness(t)
	h.cfg.Metrics.Addr = ""

	cancel, done := h.run(t)
	waitStarted(t, h.api)
	cancel()

	require.NoError(t, waitResult(t, done))
	assert.Nil(t, h.readiness, "observability server is not created")
	assert.False(t, h.obs.wasStopped())
}

func TestRunServe_AutoMigrate(t *testing.T) {
	h := newServeHarness(t)
	h.cfg.Database.AutoMigrate = true

	cancel, done := h.run(t)
	waitStarted(t, h.api)
	cancel()

	require.NoError(t, waitResult(t, done))
	assert.True(t, h.migrator.upped)
	assert.True(t, h.migrator.closed)
}

func TestRunServe_AutoMigrateFailureAborts(t *testing.T) {
	h := newServeHarness(t)
	h.cfg.Database.AutoMigrate = true
	h.migrator.upErr = errors.New("dirty database")

	_, done := h.run(t)

	err := waitResult(t, done)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_FAILED")
	assert.True(t, h.migrator.closed)
	assert.Nil(t, h.handler, "api server is never built")
}

func TestRunServe_InvalidConfigFailsBeforeConnecting(t *testing.T) {
	h := newServeHarness(t)
	h.cfg.JWT.Key = "short"

	_, done := h.run(t)

	err := waitResult(t, done)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	assert.Zero(t, h.poolCalls)
}

func TestRunServe_ConfigLoadError(t *testing.T) {
	h := newServeHarness(t)
	cmd := &cobra.Command{}
	deps := h.deps(t)
	deps.ConfigLoader = func(string, *pflag.FlagSet) (*config.Config, error) {
		return nil, errors.New("unreadable")
	}

	err := runServeWithDeps(context.Background(), cmd, deps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreadable")
	assert.Zero(t, h.poolCalls)
}

func TestRunServe_PoolFailure(t *testing.T) {
	h := newServeHarness(t)
	cmd := &cobra.Command{}
	deps := h.deps(t)
	deps.PoolFactory = func(context.Context, string, int, *slog.Logger) (Pool, error) {
		return nil, errors.New("connection refused")
	}

	err := runServeWithDeps(context.Background(), cmd, deps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRunServe_APIStartFailureStopsObservability(t *testing.T) {
	h := newServeHarness(t)
	h.cfg.Metrics.Addr = "127.0.0.1:0"
	h.api.startErr = errors.New("address in use")

	_, done := h.run(t)

	err := waitResult(t, done)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address in use")
	assert.True(t, h.obs.wasStopped())
}

func TestRunServe_ServerErrorTriggersShutdown(t *testing.T) {
	h := newServeHarness(t)

	_, done := h.run(t)
	waitStarted(t, h.api)
	h.api.errCh <- errors.New("listener closed")

	require.NoError(t, waitResult(t, done))
	assert.True(t, h.api.wasStopped())
}

func TestRunServe_WithRedisThrottle(t *testing.T) {
	mr := miniredis.RunT(t)
	h := newServeHarness(t)
	h.cfg.RateLimit.RedisAddr = mr.Addr()

	var client *redis.Client
	cmd := &cobra.Command{}
	deps := h.deps(t)
	deps.RedisFactory = func(_ context.Context, addr string) (RedisClient, error) {
		client = redis.NewClient(&redis.Options{Addr: addr})
		return client, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServeWithDeps(ctx, cmd, deps) }()

	waitStarted(t, h.api)
	cancel()
	require.NoError(t, waitResult(t, done))

	require.NotNil(t, client)
	assert.ErrorIs(t, client.Ping(context.Background()).Err(), redis.ErrClosed, "client is closed on shutdown")
}

func TestRunServe_RedisFailure(t *testing.T) {
	h := newServeHarness(t)
	h.cfg.RateLimit.RedisAddr = "127.0.0.1:1"
	cmd := &cobra.Command{}
	deps := h.deps(t)
	deps.RedisFactory = func(context.Context, string) (RedisClient, error) {
		return nil, errors.New("redis down")
	}

	err := runServeWithDeps(context.Background(), cmd, deps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
}

func TestMonitorServerErrors(t *testing.T) {
	t.Run("error cancels", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		errCh := make(chan error, 1)
		errCh <- errors.New("boom")

		monitorServerErrors(ctx, cancel, errCh, "api")
		assert.Error(t, ctx.Err())
	})

	t.Run("closed channel does not cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		errCh := make(chan error)
		close(errCh)

		monitorServerErrors(ctx, cancel, errCh, "api")
		assert.NoError(t, ctx.Err())
	})

	t.Run("returns when context is done", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		monitorServerErrors(ctx, cancel, make(chan error), "api")
	})
}
