// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

package auth

import (
	"fmt"
	"net/mail"
	"unicode"
	"unicode/utf8"

	passwordvalidator "github.com/wagslane/go-password-validator"
)

// Input constraints.
const (
	MaxEmailLength    = 50
	MinPasswordLength = 8
	MaxPasswordLength = 100
)

// PasswordPolicy describes the password rules applied on registration and
// password change.
type PasswordPolicy struct {
	// MinEntropy is the minimum estimated entropy in bits. Zero disables the
	// entropy check.
	MinEntropy float64
}

// Validate checks a password against the policy.
// Requirements:
// - Length: MinPasswordLength to MaxPasswordLength characters
// - At least one lowercase letter, one uppercase letter and one digit
func (p PasswordPolicy) Validate(field, password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength {
		return ErrValidation(field, fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
	}
	if n > MaxPasswordLength {
		return ErrValidation(field, fmt.Sprintf("Password cannot exceed %d characters", MaxPasswordLength))
	}

	var lower, upper, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !lower || !upper || !digit {
		return ErrValidation(field, "Password must contain at least one uppercase letter, one lowercase letter and one number")
	}

	if p.MinEntropy > 0 {
		if err := passwordvalidator.Validate(password, p.MinEntropy); err != nil {
			return ErrValidation(field, "Password is too weak: "+err.Error())
		}
	}
	return nil
}

// ValidateEmail validates an email address.
func ValidateEmail(field, email string) error {
	if email == "" {
		return ErrValidation(field, "Email is required")
	}
	if utf8.RuneCountInString(email) > MaxEmailLength {
		return ErrValidation(field, fmt.Sprintf("Email cannot exceed %d characters", MaxEmailLength))
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrValidation(field, "Invalid email format")
	}
	return nil
}

// ValidateTokenValue validates the shape of a verification token value.
func ValidateTokenValue(value string) error {
	if value == "" {
		return ErrValidation("verificationToken", "Verification token is required")
	}
	if utf8.RuneCountInString(value) != VerificationTokenLength {
		return ErrValidation("verificationToken", fmt.Sprintf("Token must be %d characters", VerificationTokenLength))
	}
	return nil
}
