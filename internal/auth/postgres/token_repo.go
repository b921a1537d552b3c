// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/6lebedev9/GameAPI/internal/auth"
)

// ErrTokenValueTaken is returned by Issue when another identity holds an
// outstanding token with the same value.
var ErrTokenValueTaken = errors.New("token value already outstanding")

const tokenColumns = `external_binding_id, chat_context_id, token_value, expires_at, used`

// TokenRepository implements auth.TokenRepository using PostgreSQL.
type TokenRepository struct {
	db DB
}

// NewTokenRepository creates a new TokenRepository.
func NewTokenRepository(db DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Reserve consumes an outstanding token in one conditional UPDATE. Of two
// concurrent calls for the same token, the second waits on the row lock,
// re-evaluates "NOT used" and matches nothing.
func (r *TokenRepository) Reserve(ctx context.Context, value string, bindingID *int64) (*auth.VerificationToken, error) {
	var row pgx.Row
	if bindingID == nil {
		row = conn(ctx, r.db).QueryRow(ctx, `
			UPDATE verification_tokens SET used = true
			WHERE token_value = $1 AND NOT used AND expires_at > now()
			RETURNING `+tokenColumns, value)
	} else {
		row = conn(ctx, r.db).QueryRow(ctx, `
			UPDATE verification_tokens SET used = true
			WHERE token_value = $1 AND external_binding_id = $2 AND NOT used AND expires_at > now()
			RETURNING `+tokenColumns, value, *bindingID)
	}

	var token auth.VerificationToken
	err := row.Scan(
		&token.ExternalBindingID,
		&token.ChatContextID,
		&token.Value,
		&token.ExpiresAt,
		&token.Used,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.ErrTokenInvalid()
	}
	if err != nil {
		return nil, oops.Code("TOKEN_RESERVE_FAILED").
			With("operation", "reserve verification token").
			Wrap(err)
	}
	return &token, nil
}

// Issue stores token as the one outstanding token of its external identity,
// replacing any previous token.
func (r *TokenRepository) Issue(ctx context.Context, token *auth.VerificationToken) error {
	_, err := conn(ctx, r.db).Exec(ctx, `
		INSERT INTO verification_tokens (`+tokenColumns+`)
		VALUES ($1, $2, $3, $4, false)
		ON CONFLICT (external_binding_id) DO UPDATE SET
			chat_context_id = EXCLUDED.chat_context_id,
			token_value = EXCLUDED.token_value,
			expires_at = EXCLUDED.expires_at,
			used = false
	`,
		token.ExternalBindingID,
		token.ChatContextID,
		token.Value,
		token.ExpiresAt,
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == constraintActiveToken {
			return oops.Code("TOKEN_VALUE_TAKEN").
				With("external_binding_id", token.ExternalBindingID).
				Wrap(ErrTokenValueTaken)
		}
		return oops.Code("TOKEN_ISSUE_FAILED").
			With("operation", "upsert verification token").
			With("external_binding_id", token.ExternalBindingID).
			Wrap(err)
	}
	token.Used = false
	return nil
}

var _ auth.TokenRepository = (*TokenRepository)(nil)
