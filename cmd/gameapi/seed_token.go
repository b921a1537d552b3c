// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"

	"github.com/6lebedev9/GameAPI/internal/auth"
	"github.com/6lebedev9/GameAPI/internal/auth/postgres"
	"github.com/6lebedev9/GameAPI/internal/config"
	"github.com/6lebedev9/GameAPI/internal/store"
)

// Generated values collide with another identity's outstanding token only
// rarely; a few quick retries with a fresh value cover it.
const (
	seedRetryInterval = 10 * time.Millisecond
	seedMaxRetries    = 4
)

type seedTokenOptions struct {
	bindingID int64
	chatID    int64
	value     string
	ttl       time.Duration
}

// tokenIssueFunc stores a verification token as the outstanding token of its
// external identity.
type tokenIssueFunc func(ctx context.Context, token *auth.VerificationToken) error

// NewSeedTokenCmd creates the seed-token subcommand.
func NewSeedTokenCmd() *cobra.Command {
	opts := &seedTokenOptions{}

	cmd := &cobra.Command{
		Use:   "seed-token",
		Short: "Issue a verification token for an external identity",
		Long: `Issue a verification token for an external identity, replacing any
token it already holds, and print the value. This stands in for the chat bot
that normally issues tokens.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeedToken(cmd, opts)
		},
	}

	cmd.Flags().Int64Var(&opts.bindingID, "binding-id", 0, "external identity (chat user) id")
	cmd.Flags().Int64Var(&opts.chatID, "chat-id", 0, "chat the token was issued in")
	cmd.Flags().StringVar(&opts.value, "value", "", "token value (default: generated)")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", time.Hour, "token lifetime")
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")
	_ = cmd.MarkFlagRequired("binding-id") //nolint:errcheck // flag is defined above

	return cmd
}

func runSeedToken(cmd *cobra.Command, opts *seedTokenOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	databaseURL, err := config.DatabaseURL(configFile, cmd.Flags())
	if err != nil {
		return oops.With("operation", "resolve database url").Wrap(err)
	}

	pool, err := store.Connect(ctx, databaseURL, 1, slog.Default())
	if err != nil {
		return oops.With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	token, err := seedToken(ctx, postgres.NewTokenRepository(pool).Issue, opts, time.Now())
	if err != nil {
		return err
	}

	cmd.Printf("Token %s issued for binding %d, expires %s\n",
		token.Value, token.ExternalBindingID, token.ExpiresAt.UTC().Format(time.RFC3339))
	return nil
}

// seedToken builds and issues the token. An explicit value is issued once; a
// generated value is regenerated and retried when another identity already
// holds it.
func seedToken(ctx context.Context, issue tokenIssueFunc, opts *seedTokenOptions, now time.Time) (*auth.VerificationToken, error) {
	if opts.ttl <= 0 {
		return nil, oops.Code("INVALID_TTL").With("ttl", opts.ttl.String()).Errorf("ttl must be positive")
	}
	expiresAt := now.Add(opts.ttl)

	if opts.value != "" {
		token, err := auth.NewVerificationToken(opts.bindingID, opts.chatID, opts.value, expiresAt)
		if err != nil {
			return nil, oops.With("operation", "build token").Wrap(err)
		}
		if err := issue(ctx, token); err != nil {
			return nil, oops.With("operation", "issue token").Wrap(err)
		}
		return token, nil
	}

	var token *auth.VerificationToken
	backoff := retry.WithMaxRetries(seedMaxRetries, retry.NewConstant(seedRetryInterval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		value, err := auth.GenerateVerificationCode()
		if err != nil {
			return err //nolint:wrapcheck // wrapped below
		}
		candidate, err := auth.NewVerificationToken(opts.bindingID, opts.chatID, value, expiresAt)
		if err != nil {
			return err //nolint:wrapcheck // wrapped below
		}
		if err := issue(ctx, candidate); err != nil {
			if errors.Is(err, postgres.ErrTokenValueTaken) {
				return retry.RetryableError(err)
			}
			return err
		}
		token = candidate
		return nil
	})
	if err != nil {
		return nil, oops.With("operation", "issue token").Wrap(err)
	}
	return token, nil
}
