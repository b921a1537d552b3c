// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

// Package config loads service configuration from defaults, a YAML file,
// the environment and command-line flags, in increasing precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates nesting levels: GAMEAPI_JWT__KEY sets jwt.key.
const EnvPrefix = "GAMEAPI_"

// minJWTKeyLength mirrors the HMAC key floor enforced by the session issuer.
const minJWTKeyLength = 32

// Config is the complete service configuration.
type Config struct {
	HTTP      HTTPConfig      `koanf:"http"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Log       LogConfig       `koanf:"log"`
	Database  DatabaseConfig  `koanf:"database"`
	JWT       JWTConfig       `koanf:"jwt"`
	Password  PasswordConfig  `koanf:"password"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// MetricsConfig configures the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL             string `koanf:"url"`
	ConnectAttempts int    `koanf:"connect_attempts"`
	AutoMigrate     bool   `koanf:"auto_migrate"`
}

// JWTConfig holds the session signing parameters.
type JWTConfig struct {
	Key      string        `koanf:"key"`
	Issuer   string        `koanf:"issuer"`
	Audience string        `koanf:"audience"`
	TTL      time.Duration `koanf:"ttl"`
}

// PasswordConfig holds the password hashing and strength parameters.
type PasswordConfig struct {
	BcryptCost int     `koanf:"bcrypt_cost"`
	MinEntropy float64 `koanf:"min_entropy"`
}

// RateLimitConfig configures request throttling. An empty RedisAddr
// disables it.
type RateLimitConfig struct {
	RedisAddr string        `koanf:"redis_addr"`
	Limit     int           `koanf:"limit"`
	Window    time.Duration `koanf:"window"`
}

// defaults are the built-in values, lowest precedence.
var defaults = map[string]any{
	"http.addr":                 ":8080",
	"http.shutdown_timeout":     "5s",
	"metrics.addr":              "127.0.0.1:9100",
	"log.format":                "json",
	"log.level":                 "info",
	"database.connect_attempts": 5,
	"database.auto_migrate":     false,
	"jwt.ttl":                   "24h",
	"password.bcrypt_cost":      12,
	"password.min_entropy":      0,
	"ratelimit.limit":           20,
	"ratelimit.window":          "1m",
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"http-addr":    "http.addr",
	"metrics-addr": "metrics.addr",
	"log-format":   "log.format",
	"log-level":    "log.level",
	"database-url": "database.url",
	"auto-migrate": "database.auto_migrate",
	"redis-addr":   "ratelimit.redis_addr",
}

// RegisterFlags defines the flags Load understands on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("http-addr", "", "API listen address (default :8080)")
	fs.String("metrics-addr", "", "metrics/health listen address, empty to disable (default 127.0.0.1:9100)")
	fs.String("log-format", "", "log format: json or text (default json)")
	fs.String("log-level", "", "log level: debug, info, warn or error (default info)")
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.Bool("auto-migrate", false, "apply database migrations before serving")
	fs.String("redis-addr", "", "Redis address for request throttling, empty to disable")
}

// Load builds a Config. path names an optional YAML file; flags may be nil.
// Only flags explicitly set on the command line override other sources.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").Wrap(err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "file").With("path", path).Wrap(err)
		}
	}

	// DATABASE_URL is honored for compatibility with hosting platforms.
	if err := k.Load(env.ProviderWithValue("DATABASE_URL", ".", func(name, value string) (string, any) {
		if name != "DATABASE_URL" || value == "" {
			return "", nil
		}
		return "database.url", value
	}), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "decode").Wrap(err)
	}
	return &cfg, nil
}

// envKey maps GAMEAPI_RATELIMIT__REDIS_ADDR to ratelimit.redis_addr.
func envKey(name string) string {
	name = strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	return strings.ReplaceAll(name, "__", ".")
}

// Validate reports every missing or out-of-range value in one error.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.HTTP.Addr == "" {
		add("http.addr is required")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		add("http.shutdown_timeout must be positive")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		add("log.format must be json or text, got %q", c.Log.Format)
	}
	if c.Database.URL == "" {
		add("database.url is required")
	}
	if c.Database.ConnectAttempts < 1 {
		add("database.connect_attempts must be at least 1")
	}
	if len(c.JWT.Key) < minJWTKeyLength {
		add("jwt.key must be at least %d bytes", minJWTKeyLength)
	}
	if c.JWT.Issuer == "" {
		add("jwt.issuer is required")
	}
	if c.JWT.Audience == "" {
		add("jwt.audience is required")
	}
	if c.JWT.TTL <= 0 {
		add("jwt.ttl must be positive")
	}
	if c.Password.BcryptCost < bcrypt.MinCost || c.Password.BcryptCost > bcrypt.MaxCost {
		add("password.bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.Password.MinEntropy < 0 {
		add("password.min_entropy cannot be negative")
	}
	if c.RateLimit.RedisAddr != "" {
		if c.RateLimit.Limit < 1 {
			add("ratelimit.limit must be at least 1")
		}
		if c.RateLimit.Window <= 0 {
			add("ratelimit.window must be positive")
		}
	}

	if len(problems) > 0 {
		return oops.Code("CONFIG_INVALID").
			With("problems", problems).
			Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// DatabaseURL returns the configured database URL, for commands that need
// only the database.
func DatabaseURL(path string, flags *pflag.FlagSet) (string, error) {
	cfg, err := Load(path, flags)
	if err != nil {
		return "", err
	}
	if cfg.Database.URL == "" {
		return "", oops.Code("CONFIG_INVALID").Errorf("database.url is required (set --database-url, DATABASE_URL or %sDATABASE__URL)", EnvPrefix)
	}
	return cfg.Database.URL, nil
}
