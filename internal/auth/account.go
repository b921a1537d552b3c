// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Account defaults and bounds.
const (
	DefaultRole              = 1
	ModeratorRole            = 2
	AdminRole                = 10
	DefaultMaxCharacterCount = 2
	MaxMaxCharacterCount     = 10
)

// Account represents a game account.
type Account struct {
	ID                  ulid.ULID
	Email               string
	PasswordHash        string
	ExternalBindingID   int64
	Role                int
	Banned              bool
	SessionToken        string
	SessionTokenExpiry  time.Time
	CoinBalance         int64
	MaxCharacterCount   int
	CreatedAt           time.Time
	LastLoginAt         *time.Time
	FailedLoginAttempts int
	LockedUntil         *time.Time
}

// NewAccount creates an Account bound to an external identity with default
// role and limits.
func NewAccount(email, passwordHash string, externalBindingID int64, now time.Time) (*Account, error) {
	if email == "" {
		return nil, oops.Code("ACCOUNT_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	return &Account{
		ID:                ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()),
		Email:             email,
		PasswordHash:      passwordHash,
		ExternalBindingID: externalBindingID,
		Role:              DefaultRole,
		MaxCharacterCount: DefaultMaxCharacterCount,
		CreatedAt:         now,
	}, nil
}

// IsLocked returns true if the account has a lock expiring after now.
func (a *Account) IsLocked(now time.Time) bool {
	return IsLockedOut(a.LockedUntil, now)
}

// IsSessionValid returns true if the stored session token has not expired.
func (a *Account) IsSessionValid(now time.Time) bool {
	return a.SessionToken != "" && a.SessionTokenExpiry.After(now)
}

// IsModerator returns true for moderator and admin roles.
func (a *Account) IsModerator() bool {
	return a.Role >= ModeratorRole
}

// IsAdmin returns true for the admin role.
func (a *Account) IsAdmin() bool {
	return a.Role >= AdminRole
}

// SetSession replaces the session token and expiry as a unit.
func (a *Account) SetSession(token string, expiry time.Time) {
	a.SessionToken = token
	a.SessionTokenExpiry = expiry
}

// Principal is the authenticated caller of an account operation, derived
// from verified session claims.
type Principal struct {
	AccountID         ulid.ULID
	ExternalBindingID int64
	Email             string
	Role              int
}

// AccountRepository manages account persistence.
// Methods participate in the transaction carried by ctx, if any.
type AccountRepository interface {
	// Create stores a new account. Returns an AUTH_EMAIL_EXISTS or
	// AUTH_BINDING_EXISTS error on a uniqueness violation.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByEmail retrieves an account by exact email.
	// Returns ErrNotFound if no account has the given email.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// SaveLogin persists a successful login: failure counter, last login,
	// session pair and password hash. The write only applies while the stored
	// hash still equals verifiedHash; otherwise it returns
	// ErrCredentialsChanged and leaves the row untouched.
	SaveLogin(ctx context.Context, account *Account, verifiedHash string) error

	// SaveCredentials persists email, password hash and the session pair in
	// one statement. Returns an AUTH_EMAIL_IN_USE error on an email
	// uniqueness violation.
	SaveCredentials(ctx context.Context, account *Account) error

	// RecordLoginFailure atomically applies the failure transition of the
	// lockout policy and returns the stored counter and lock.
	RecordLoginFailure(ctx context.Context, id ulid.ULID, transition FailureTransition) (int, *time.Time, error)
}
