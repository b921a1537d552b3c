// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

// Package auth provides account authentication and credential lifecycle
// primitives for GameAPI.
//
// # Domain Types
//
// Domain types should be created using their constructors:
//   - NewAccount - creates an Account with defaulted role and limits
//   - NewVerificationToken - creates a VerificationToken with a validated value
//
// Direct struct initialization bypasses validation and may create invalid state.
//
// # Components
//
//   - PasswordHasher - one-way password hashing (BcryptHasher)
//   - LockoutPolicy - consecutive failure counting and timed locks
//   - TokenRepository.Reserve - the verification token gate
//   - SessionIssuer - signed session tokens (implemented in internal/session)
//
// # Services
//
// Service coordinates Register, Login, UpdateEmail and UpdatePassword as
// atomic sequences over the components above. It is created with
// NewService, which validates its dependencies.
package auth
