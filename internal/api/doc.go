// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

// Package api exposes the account operations over HTTP/JSON.
//
// Routes are served under both /accounts and /api/accounts:
//
//	POST /register         create an account by redeeming a verification token
//	POST /login            authenticate with email and password
//	PUT  /update-email     change email (bearer session + verification token)
//	PUT  /update-password  change password (bearer session + verification token)
//
// Every response is JSON with a boolean success field. Failures carry only a
// client-safe message.
package api
