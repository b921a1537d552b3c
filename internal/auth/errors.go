// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

package auth

import (
	"errors"
	"time"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrCredentialsChanged is returned by AccountRepository.SaveLogin when the
// stored password hash no longer matches the one the login verified.
var ErrCredentialsChanged = errors.New("credentials changed")

// Error codes for account operations.
const (
	CodeValidation         = "AUTH_VALIDATION_FAILED"
	CodeTokenInvalid       = "AUTH_TOKEN_INVALID"
	CodeEmailExists        = "AUTH_EMAIL_EXISTS"
	CodeEmailInUse         = "AUTH_EMAIL_IN_USE"
	CodeBindingExists      = "AUTH_BINDING_EXISTS"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeAccountBanned      = "AUTH_ACCOUNT_BANNED"
	CodeAccountLocked      = "AUTH_ACCOUNT_LOCKED"
	CodeSessionInvalid     = "SESSION_INVALID"
	CodeAccountNotFound    = "ACCOUNT_NOT_FOUND"
	CodeCredentialsChanged = "AUTH_CREDENTIALS_CHANGED"
)

// Kind classifies an error for callers that translate errors into
// client-facing outcomes.
type Kind int

// Error kinds.
const (
	KindInternal Kind = iota
	KindValidation
	KindTokenInvalid
	KindConflict
	KindUnauthorized
	KindNotFound
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTokenInvalid:
		return "token_invalid"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// ErrValidation creates an error for malformed input on the named field.
func ErrValidation(field, message string) error {
	return oops.Code(CodeValidation).
		With("field", field).
		With("message", message).
		Errorf("%s", message)
}

// ErrTokenInvalid creates the single rejection returned for expired, unknown,
// mismatched or already used verification tokens.
func ErrTokenInvalid() error {
	return oops.Code(CodeTokenInvalid).Errorf("invalid or expired token")
}

// ErrEmailExists creates a registration conflict error.
func ErrEmailExists(cause error) error {
	b := oops.Code(CodeEmailExists)
	if cause != nil {
		return b.Wrap(cause)
	}
	return b.Errorf("email already exists")
}

// ErrEmailInUse creates an email update conflict error.
func ErrEmailInUse(cause error) error {
	b := oops.Code(CodeEmailInUse)
	if cause != nil {
		return b.Wrap(cause)
	}
	return b.Errorf("email already in use")
}

// ErrBindingExists creates a conflict for an external identity that already
// owns an account.
func ErrBindingExists(cause error) error {
	b := oops.Code(CodeBindingExists)
	if cause != nil {
		return b.Wrap(cause)
	}
	return b.Errorf("account already exists for external binding")
}

// ErrInvalidCredentials creates the generic login failure.
func ErrInvalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("invalid credentials")
}

// ErrAccountBanned creates a login refusal for banned accounts.
func ErrAccountBanned() error {
	return oops.Code(CodeAccountBanned).Errorf("account banned")
}

// ErrAccountLocked creates a login refusal carrying the lock expiry.
func ErrAccountLocked(until time.Time) error {
	return oops.Code(CodeAccountLocked).
		With("locked_until", until).
		Errorf("account locked until %s", until.UTC().Format(time.RFC3339))
}

// ErrSessionInvalid creates an error for a missing or rejected session.
func ErrSessionInvalid(cause error) error {
	b := oops.Code(CodeSessionInvalid)
	if cause != nil {
		return b.Wrap(cause)
	}
	return b.Errorf("session invalid")
}

// KindOf returns the Kind for err based on its oops code.
// Errors without a recognized code are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return KindInternal
	}
	switch oopsErr.Code() {
	case CodeValidation:
		return KindValidation
	case CodeTokenInvalid:
		return KindTokenInvalid
	case CodeEmailExists, CodeEmailInUse, CodeBindingExists:
		return KindConflict
	case CodeInvalidCredentials, CodeAccountBanned, CodeAccountLocked, CodeSessionInvalid:
		return KindUnauthorized
	case CodeAccountNotFound:
		return KindNotFound
	default:
		return KindInternal
	}
}

// LockedUntil extracts the lock expiry from an AUTH_ACCOUNT_LOCKED error.
func LockedUntil(err error) (time.Time, bool) {
	oopsErr, ok := oops.AsOops(err)
	if !ok || oopsErr.Code() != CodeAccountLocked {
		return time.Time{}, false
	}
	until, ok := oopsErr.Context()["locked_until"].(time.Time)
	return until, ok
}

// Message extracts a client-facing message from an error. Internal failures
// never expose their cause.
func Message(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return "Internal server error"
	}

	switch oopsErr.Code() {
	case CodeValidation:
		if msg, ok := oopsErr.Context()["message"].(string); ok && msg != "" {
			return msg
		}
		return "Invalid data"
	case CodeTokenInvalid:
		return "Invalid or expired token"
	case CodeEmailExists:
		return "Email already exists"
	case CodeEmailInUse:
		return "Email already in use"
	case CodeBindingExists:
		return "Account already exists for this identity"
	case CodeInvalidCredentials:
		return "Invalid credentials"
	case CodeAccountBanned:
		return "Account banned"
	case CodeAccountLocked:
		if until, ok := LockedUntil(err); ok {
			return "Account locked until " + until.UTC().Format(time.RFC3339)
		}
		return "Account locked"
	case CodeSessionInvalid:
		return "Unauthorized"
	case CodeAccountNotFound:
		return "Account not found"
	default:
		return "Internal server error"
	}
}
