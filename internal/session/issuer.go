// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/6lebedev9/GameAPI/internal/auth"
)

// Token configuration.
const (
	// DefaultTTL is the lifetime of an issued session token.
	DefaultTTL = 24 * time.Hour

	// MinKeyLength is the minimum HMAC signing key size in bytes.
	MinKeyLength = 32
)

// Config holds the process-wide signing parameters.
type Config struct {
	Key      []byte
	Issuer   string
	Audience string
	TTL      time.Duration
}

// Claims is the claim set of a session token. Subject carries the account
// ID and ID a random identifier unique per issuance.
type Claims struct {
	Email             string `json:"email"`
	ExternalBindingID int64  `json:"ext_binding_id"`
	Role              int    `json:"role"`
	jwt.RegisteredClaims
}

// Principal converts verified claims into the caller identity.
func (c *Claims) Principal() (auth.Principal, error) {
	id, err := ulid.Parse(c.Subject)
	if err != nil {
		return auth.Principal{}, auth.ErrSessionInvalid(oops.With("subject", c.Subject).Wrap(err))
	}
	return auth.Principal{
		AccountID:         id,
		ExternalBindingID: c.ExternalBindingID,
		Email:             c.Email,
		Role:              c.Role,
	}, nil
}

// Issuer signs and verifies session tokens.
type Issuer struct {
	key      []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
	parser   *jwt.Parser
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source used for issuance and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

// NewIssuer validates cfg and creates an Issuer. Missing or short signing
// material is an error; callers treat it as fatal at startup.
func NewIssuer(cfg Config, opts ...Option) (*Issuer, error) {
	if len(cfg.Key) < MinKeyLength {
		return nil, oops.Code("SESSION_INVALID_CONFIG").
			With("key_length", len(cfg.Key)).
			Errorf("signing key must be at least %d bytes", MinKeyLength)
	}
	if cfg.Issuer == "" {
		return nil, oops.Code("SESSION_INVALID_CONFIG").Errorf("issuer is required")
	}
	if cfg.Audience == "" {
		return nil, oops.Code("SESSION_INVALID_CONFIG").Errorf("audience is required")
	}
	if cfg.TTL < 0 {
		return nil, oops.Code("SESSION_INVALID_CONFIG").With("ttl", cfg.TTL).Errorf("ttl cannot be negative")
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}

	i := &Issuer{
		key:      append([]byte(nil), cfg.Key...),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      ttl,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}

	i.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(0),
		jwt.WithTimeFunc(i.now),
	)
	return i, nil
}

// TTL returns the lifetime of issued tokens.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a token for account and returns it with its expiry.
func (i *Issuer) Issue(account *auth.Account) (string, time.Time, error) {
	if account == nil {
		return "", time.Time{}, oops.Code("SESSION_ISSUE_FAILED").Errorf("account is required")
	}

	now := i.now().UTC().Truncate(time.Second)
	expiry := now.Add(i.ttl)

	claims := Claims{
		Email:             account.Email,
		ExternalBindingID: account.ExternalBindingID,
		Role:              account.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   account.ID.String(),
			Audience:  jwt.ClaimStrings{i.audience},
			ExpiresAt: jwt.NewNumericDate(expiry),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", time.Time{}, oops.Code("SESSION_ISSUE_FAILED").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	return signed, expiry, nil
}

// Verify checks signature, algorithm, issuer, audience and expiry with no
// clock skew tolerance and returns the claims.
func (i *Issuer) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, auth.ErrSessionInvalid(nil)
	}

	claims := &Claims{}
	parsed, err := i.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.key, nil
	})
	if err != nil {
		return nil, auth.ErrSessionInvalid(err)
	}
	if !parsed.Valid {
		return nil, auth.ErrSessionInvalid(nil)
	}
	return claims, nil
}

// Authenticate verifies token and returns the caller identity.
func (i *Issuer) Authenticate(token string) (auth.Principal, error) {
	claims, err := i.Verify(token)
	if err != nil {
		return auth.Principal{}, err
	}
	return claims.Principal()
}
