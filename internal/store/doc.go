// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

// Package store owns the account database: the embedded schema migrations
// and connection pool setup.
package store
