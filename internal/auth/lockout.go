// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

package auth

import (
	"context"
	"time"
)

// Lockout configuration.
const (
	// LockoutDuration is the time an account is locked after too many failures.
	LockoutDuration = 15 * time.Minute

	// LockoutThreshold is the number of consecutive failures that triggers a lockout.
	LockoutThreshold = 5

	// MaxFailedAttempts bounds the stored failure counter.
	MaxFailedAttempts = 10
)

// FailureTransition carries the parameters of one failed-login transition
// to the store, which applies it atomically against the current counter.
type FailureTransition struct {
	Threshold   int
	MaxAttempts int
	LockUntil   time.Time
}

// LockoutPolicy tracks consecutive failed logins per account and enforces a
// timed lock. State is derived from the stored counters only.
type LockoutPolicy struct {
	Threshold   int
	Duration    time.Duration
	MaxAttempts int
}

// DefaultLockoutPolicy returns the policy of 5 failures locking for 15 minutes.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		Threshold:   LockoutThreshold,
		Duration:    LockoutDuration,
		MaxAttempts: MaxFailedAttempts,
	}
}

// Transition returns the failure transition for an attempt made at now.
func (p LockoutPolicy) Transition(now time.Time) FailureTransition {
	return FailureTransition{
		Threshold:   p.Threshold,
		MaxAttempts: p.MaxAttempts,
		LockUntil:   now.Add(p.Duration),
	}
}

// RecordFailure applies a failed login to account through the store and
// reports whether the account is locked as a result.
func (p LockoutPolicy) RecordFailure(ctx context.Context, accounts AccountRepository, account *Account, now time.Time) (bool, error) {
	attempts, lockedUntil, err := accounts.RecordLoginFailure(ctx, account.ID, p.Transition(now))
	if err != nil {
		return false, err //nolint:wrapcheck // repository errors carry their own codes
	}
	account.FailedLoginAttempts = attempts
	account.LockedUntil = lockedUntil
	return attempts >= p.Threshold && IsLockedOut(lockedUntil, now), nil
}

// RecordSuccess resets the failure counter. An existing lock is left to run
// to its natural expiry.
func (p LockoutPolicy) RecordSuccess(account *Account) {
	account.FailedLoginAttempts = 0
}

// IsLockedOut returns true if the lockout time is after now.
func IsLockedOut(lockedUntil *time.Time, now time.Time) bool {
	return lockedUntil != nil && lockedUntil.After(now)
}
