// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

package auth

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/samber/oops"
)

// Verification token configuration.
const (
	// VerificationTokenLength is the exact length of a verification code.
	VerificationTokenLength = 5
)

// verificationAlphabet excludes characters that are easy to confuse.
const verificationAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// VerificationToken is a single-use code issued out of band to prove control
// of an external identity.
type VerificationToken struct {
	ExternalBindingID int64
	ChatContextID     int64
	Value             string
	ExpiresAt         time.Time
	Used              bool
}

// NewVerificationToken creates an unused VerificationToken.
func NewVerificationToken(externalBindingID, chatContextID int64, value string, expiresAt time.Time) (*VerificationToken, error) {
	if err := ValidateTokenValue(value); err != nil {
		return nil, err
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("TOKEN_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}
	return &VerificationToken{
		ExternalBindingID: externalBindingID,
		ChatContextID:     chatContextID,
		Value:             value,
		ExpiresAt:         expiresAt,
	}, nil
}

// IsValid returns true if the token is unused and unexpired at now.
func (t *VerificationToken) IsValid(now time.Time) bool {
	return !t.Used && t.ExpiresAt.After(now)
}

// TokenRepository manages verification token persistence.
type TokenRepository interface {
	// Reserve matches an unused, unexpired token by value, and by external
	// binding when bindingID is non-nil, and marks it used in the same
	// statement. Returns an AUTH_TOKEN_INVALID error when nothing matched.
	Reserve(ctx context.Context, value string, bindingID *int64) (*VerificationToken, error)

	// Issue stores the outstanding token for an external identity,
	// replacing any previous one.
	Issue(ctx context.Context, token *VerificationToken) error
}

// GenerateVerificationCode returns a random code of VerificationTokenLength
// characters.
func GenerateVerificationCode() (string, error) {
	limit := big.NewInt(int64(len(verificationAlphabet)))
	code := make([]byte, VerificationTokenLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", oops.Code("TOKEN_GENERATE_FAILED").Wrap(err)
		}
		code[i] = verificationAlphabet[n.Int64()]
	}
	return string(code), nil
}
