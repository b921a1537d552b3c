// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

// Package session mints and verifies the signed bearer tokens that identify
// an authenticated account. Tokens are stateless HS256 JWTs; the issuer
// persists nothing.
package session
