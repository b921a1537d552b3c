// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

// Package postgres implements the auth repositories and transactor on
// PostgreSQL via pgx.
//
// Repository methods run inside the transaction carried by their context
// when one was opened by Transactor.InTransaction, and on the pool
// otherwise. Uniqueness is enforced by the schema; violations are mapped to
// the auth conflict errors by constraint name.
package postgres
