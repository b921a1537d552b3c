// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/6lebedev9/GameAPI/internal/auth"
)

const accountColumns = `id, email, password_hash, external_binding_id, role, banned,
		       session_token, session_token_expiry, coin_balance, max_character_count,
		       created_at, last_login_at, failed_login_attempts, locked_until`

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	db DB
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create stores a new account together with its first session.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	_, err := conn(ctx, r.db).Exec(ctx, `
		INSERT INTO accounts (
			id, email, password_hash, external_binding_id, role, banned,
			session_token, session_token_expiry, coin_balance, max_character_count,
			created_at, last_login_at, failed_login_attempts, locked_until
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		account.ID.String(),
		account.Email,
		account.PasswordHash,
		account.ExternalBindingID,
		account.Role,
		account.Banned,
		account.SessionToken,
		nullTime(account.SessionTokenExpiry),
		account.CoinBalance,
		account.MaxCharacterCount,
		account.CreatedAt,
		account.LastLoginAt,
		account.FailedLoginAttempts,
		account.LockedUntil,
	)
	if err != nil {
		switch constraint, _ := uniqueViolation(err); constraint {
		case constraintAccountEmail:
			return auth.ErrEmailExists(err)
		case constraintAccountBinding:
			return auth.ErrBindingExists(err)
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("external_binding_id", account.ExternalBindingID).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, id.String())

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(auth.CodeAccountNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_ID_FAILED").
			With("operation", "get account by id").
			With("id", id.String()).
			Wrap(err)
	}
	return account, nil
}

// GetByEmail retrieves an account by exact email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE email = $1
	`, email)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(auth.CodeAccountNotFound).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_EMAIL_FAILED").
			With("operation", "get account by email").
			Wrap(err)
	}
	return account, nil
}

// SaveLogin persists the state written by a successful login. The UPDATE is
// conditioned on the hash the login verified, so a password change committed
// in the meantime is never overwritten. A missing row is reported the same
// way: the credentials the login checked no longer exist.
func (r *AccountRepository) SaveLogin(ctx context.Context, account *auth.Account, verifiedHash string) error {
	result, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE accounts SET
			password_hash = $2,
			failed_login_attempts = $3,
			last_login_at = $4,
			session_token = $5,
			session_token_expiry = $6
		WHERE id = $1 AND password_hash = $7
	`,
		account.ID.String(),
		account.PasswordHash,
		account.FailedLoginAttempts,
		account.LastLoginAt,
		account.SessionToken,
		nullTime(account.SessionTokenExpiry),
		verifiedHash,
	)
	if err != nil {
		return oops.Code("ACCOUNT_SAVE_LOGIN_FAILED").
			With("operation", "update login state").
			With("id", account.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code(auth.CodeCredentialsChanged).
			With("id", account.ID.String()).
			Wrap(auth.ErrCredentialsChanged)
	}
	return nil
}

// SaveCredentials persists email, password hash and session in one statement.
func (r *AccountRepository) SaveCredentials(ctx context.Context, account *auth.Account) error {
	result, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE accounts SET
			email = $2,
			password_hash = $3,
			session_token = $4,
			session_token_expiry = $5
		WHERE id = $1
	`,
		account.ID.String(),
		account.Email,
		account.PasswordHash,
		account.SessionToken,
		nullTime(account.SessionTokenExpiry),
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == constraintAccountEmail {
			return auth.ErrEmailInUse(err)
		}
		return oops.Code("ACCOUNT_SAVE_CREDENTIALS_FAILED").
			With("operation", "update credentials").
			With("id", account.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code(auth.CodeAccountNotFound).
			With("id", account.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// RecordLoginFailure applies transition to the stored counter in a single
// UPDATE, so concurrent failures are never lost.
func (r *AccountRepository) RecordLoginFailure(ctx context.Context, id ulid.ULID, transition auth.FailureTransition) (int, *time.Time, error) {
	var (
		attempts    int
		lockedUntil *time.Time
	)
	err := conn(ctx, r.db).QueryRow(ctx, `
		UPDATE accounts SET
			failed_login_attempts = LEAST(failed_login_attempts + 1, $2),
			locked_until = CASE
				WHEN LEAST(failed_login_attempts + 1, $2) >= $3 THEN $4
				ELSE locked_until
			END
		WHERE id = $1
		RETURNING failed_login_attempts, locked_until
	`,
		id.String(),
		transition.MaxAttempts,
		transition.Threshold,
		transition.LockUntil,
	).Scan(&attempts, &lockedUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, oops.Code(auth.CodeAccountNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return 0, nil, oops.Code("ACCOUNT_RECORD_FAILURE_FAILED").
			With("operation", "record login failure").
			With("id", id.String()).
			Wrap(err)
	}
	return attempts, lockedUntil, nil
}

// scanAccount scans a single row into an Account.
// Callers are responsible for handling pgx.ErrNoRows.
func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		account     auth.Account
		idStr       string
		tokenExpiry *time.Time
	)

	err := row.Scan(
		&idStr,
		&account.Email,
		&account.PasswordHash,
		&account.ExternalBindingID,
		&account.Role,
		&account.Banned,
		&account.SessionToken,
		&tokenExpiry,
		&account.CoinBalance,
		&account.MaxCharacterCount,
		&account.CreatedAt,
		&account.LastLoginAt,
		&account.FailedLoginAttempts,
		&account.LockedUntil,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context-specific info
		}
		return nil, oops.Code("ACCOUNT_SCAN_FAILED").
			With("operation", "scan account").
			Wrap(err)
	}

	account.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_ID").
			With("operation", "parse account id").
			With("id", idStr).
			Wrap(err)
	}
	if tokenExpiry != nil {
		account.SessionTokenExpiry = *tokenExpiry
	}
	return &account, nil
}

// nullTime maps the zero time to SQL NULL.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var _ auth.AccountRepository = (*AccountRepository)(nil)
