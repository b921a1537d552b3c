// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

package postgres

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// Unique constraints declared by the schema migrations.
const (
	constraintAccountEmail   = "accounts_email_key"
	constraintAccountBinding = "accounts_external_binding_id_key"
	constraintActiveToken    = "verification_tokens_active_value_key"
)

// uniqueViolation returns the constraint name when err is a unique
// violation.
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}
