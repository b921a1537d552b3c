// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/6lebedev9/GameAPI/pkg/errutil"
)

const tracerName = "gameapi/auth"

// Transactor runs fn inside one storage transaction. Repositories called with
// the context passed to fn participate in that transaction. A non-nil error
// from fn rolls every write back.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// SessionIssuer mints signed session tokens. It persists nothing; callers
// store the returned token and expiry as a unit.
type SessionIssuer interface {
	Issue(account *Account) (string, time.Time, error)
}

// RegisterInput is the payload of a registration request.
type RegisterInput struct {
	TokenValue      string
	Email           string
	Password        string
	ConfirmPassword string
}

// Result is the outcome of a successful account operation.
type Result struct {
	Account     Account
	AccessToken string
	TokenExpiry time.Time
	Locked      bool
}

func newResult(account *Account, now time.Time) *Result {
	return &Result{
		Account:     *account,
		AccessToken: account.SessionToken,
		TokenExpiry: account.SessionTokenExpiry,
		Locked:      account.IsLocked(now),
	}
}

// dummyPasswordHash is verified when an email is unknown so that the failure
// path costs the same as a wrong password.
//
//nolint:gosec // G101: intentionally fake hash, not a credential.
const dummyPasswordHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// Service coordinates account registration, login and credential updates.
type Service struct {
	accounts  AccountRepository
	tokens    TokenRepository
	tx        Transactor
	hasher    PasswordHasher
	issuer    SessionIssuer
	lockout   LockoutPolicy
	passwords PasswordPolicy
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// ServiceOption configures optional Service behavior.
type ServiceOption func(*Service)

// WithLockoutPolicy overrides DefaultLockoutPolicy.
func WithLockoutPolicy(p LockoutPolicy) ServiceOption {
	return func(s *Service) { s.lockout = p }
}

// WithPasswordPolicy sets the password policy.
func WithPasswordPolicy(p PasswordPolicy) ServiceOption {
	return func(s *Service) { s.passwords = p }
}

// WithTracerProvider sets the provider operation spans are started from.
// Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) ServiceOption {
	return func(s *Service) { s.tracer = tp.Tracer(tracerName) }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service that logs to slog.Default().
func NewService(
	accounts AccountRepository,
	tokens TokenRepository,
	tx Transactor,
	hasher PasswordHasher,
	issuer SessionIssuer,
	opts ...ServiceOption,
) (*Service, error) {
	return NewServiceWithLogger(accounts, tokens, tx, hasher, issuer, slog.Default(), opts...)
}

// NewServiceWithLogger creates a Service with an explicit logger.
func NewServiceWithLogger(
	accounts AccountRepository,
	tokens TokenRepository,
	tx Transactor,
	hasher PasswordHasher,
	issuer SessionIssuer,
	logger *slog.Logger,
	opts ...ServiceOption,
) (*Service, error) {
	switch {
	case accounts == nil:
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("accounts repository is required")
	case tokens == nil:
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("tokens repository is required")
	case tx == nil:
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("transactor is required")
	case hasher == nil:
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("password hasher is required")
	case issuer == nil:
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("session issuer is required")
	case logger == nil:
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("logger is required")
	}

	s := &Service{
		accounts: accounts,
		tokens:   tokens,
		tx:       tx,
		hasher:   hasher,
		issuer:   issuer,
		lockout:  DefaultLockoutPolicy(),
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates an account by redeeming a verification token.
// The token is consumed and the account created in one transaction, so a
// failure never leaves a used token without an account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "account.register")
	result, err := s.register(ctx, in)
	endSpan(span, result, err)
	return result, err
}

func (s *Service) register(ctx context.Context, in RegisterInput) (*Result, error) {
	if err := ValidateTokenValue(in.TokenValue); err != nil {
		return nil, err
	}
	if err := ValidateEmail("email", in.Email); err != nil {
		return nil, err
	}
	if err := s.passwords.Validate("password", in.Password); err != nil {
		return nil, err
	}
	if in.Password != in.ConfirmPassword {
		return nil, ErrValidation("confirmPassword", "Passwords do not match")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, s.internal(ctx, "register", oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err))
	}

	now := s.now()
	var account *Account
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		token, err := s.tokens.Reserve(ctx, in.TokenValue, nil)
		if err != nil {
			return err //nolint:wrapcheck // carries AUTH_TOKEN_INVALID or a storage code
		}

		if err := s.ensureEmailFree(ctx, in.Email, nil, ErrEmailExists); err != nil {
			return err
		}

		account, err = NewAccount(in.Email, hash, token.ExternalBindingID, now)
		if err != nil {
			return err
		}
		if err := s.issueSession(account); err != nil {
			return err
		}
		return s.accounts.Create(ctx, account) //nolint:wrapcheck // carries conflict or storage code
	})
	if err != nil {
		return nil, s.fail(ctx, "register", err)
	}

	s.logger.InfoContext(ctx, "account registered",
		"account_id", account.ID.String(),
		"external_binding_id", account.ExternalBindingID,
	)
	return newResult(account, now), nil
}

// Login authenticates an account by email and password and rotates its
// session token. Unknown emails and wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, email, password string) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "account.login")
	result, err := s.login(ctx, email, password)
	endSpan(span, result, err)
	return result, err
}

func (s *Service) login(ctx context.Context, email, password string) (*Result, error) {
	now := s.now()

	account, lookupErr := s.accounts.GetByEmail(ctx, email)

	targetHash := dummyPasswordHash
	exists := false
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, s.internal(ctx, "login", oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get account by email").
				Wrap(lookupErr))
		}
	} else {
		targetHash = account.PasswordHash
		exists = true
	}

	// Always verify so an unknown email costs the same as a wrong password.
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if exists {
			s.logger.WarnContext(ctx, "stored password hash is malformed",
				"account_id", account.ID.String(),
				"error", verifyErr,
			)
		}
		valid = false
	}

	if !exists {
		return nil, ErrInvalidCredentials()
	}

	if !valid {
		return nil, s.loginFailure(ctx, account, now)
	}

	if account.Banned {
		s.logger.InfoContext(ctx, "login refused for banned account", "account_id", account.ID.String())
		return nil, ErrAccountBanned()
	}
	if account.IsLocked(now) {
		return nil, ErrAccountLocked(*account.LockedUntil)
	}

	s.lockout.RecordSuccess(account)
	account.LastLoginAt = &now

	verifiedHash := account.PasswordHash
	if s.hasher.NeedsUpgrade(account.PasswordHash) {
		if newHash, err := s.hasher.Hash(password); err == nil {
			account.PasswordHash = newHash
		}
	}

	if err := s.issueSession(account); err != nil {
		return nil, s.fail(ctx, "login", err)
	}
	if err := s.accounts.SaveLogin(ctx, account, verifiedHash); err != nil {
		if errors.Is(err, ErrCredentialsChanged) {
			s.logger.InfoContext(ctx, "login raced a credential change",
				"account_id", account.ID.String(),
			)
			return nil, ErrInvalidCredentials()
		}
		return nil, s.fail(ctx, "login", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "save login").
			With("account_id", account.ID.String()).
			Wrap(err))
	}

	s.logger.InfoContext(ctx, "login succeeded", "account_id", account.ID.String())
	return newResult(account, now), nil
}

// loginFailure applies the lockout failure transition for a wrong password.
// A lock in force is reported as is and never extended.
func (s *Service) loginFailure(ctx context.Context, account *Account, now time.Time) error {
	if account.IsLocked(now) {
		return ErrAccountLocked(*account.LockedUntil)
	}

	locked, err := s.lockout.RecordFailure(ctx, s.accounts, account, now)
	if err != nil {
		return s.internal(ctx, "login", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "record login failure").
			With("account_id", account.ID.String()).
			Wrap(err))
	}

	s.logger.InfoContext(ctx, "login failed",
		"account_id", account.ID.String(),
		"failed_attempts", account.FailedLoginAttempts,
	)

	if locked {
		s.logger.WarnContext(ctx, "account locked",
			"account_id", account.ID.String(),
			"locked_until", *account.LockedUntil,
		)
		return ErrAccountLocked(*account.LockedUntil)
	}
	return ErrInvalidCredentials()
}

// UpdateEmail changes the principal's email. The verification token must be
// bound to the principal's external identity. Email change, token consumption
// and session rotation commit together or not at all.
func (s *Service) UpdateEmail(ctx context.Context, principal Principal, tokenValue, newEmail string) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "account.update_email")
	result, err := s.updateEmail(ctx, principal, tokenValue, newEmail)
	endSpan(span, result, err)
	return result, err
}

func (s *Service) updateEmail(ctx context.Context, principal Principal, tokenValue, newEmail string) (*Result, error) {
	if err := ValidateTokenValue(tokenValue); err != nil {
		return nil, err
	}
	if err := ValidateEmail("newEmail", newEmail); err != nil {
		return nil, err
	}

	now := s.now()
	account, err := s.updateCredentials(ctx, principal, tokenValue, func(ctx context.Context, account *Account) error {
		if err := s.ensureEmailFree(ctx, newEmail, account, ErrEmailInUse); err != nil {
			return err
		}
		account.Email = newEmail
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "update email", err)
	}

	s.logger.InfoContext(ctx, "account email updated", "account_id", account.ID.String())
	return newResult(account, now), nil
}

// UpdatePassword changes the principal's password under the same atomicity
// rules as UpdateEmail.
func (s *Service) UpdatePassword(ctx context.Context, principal Principal, tokenValue, newPassword string) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "account.update_password")
	result, err := s.updatePassword(ctx, principal, tokenValue, newPassword)
	endSpan(span, result, err)
	return result, err
}

func (s *Service) updatePassword(ctx context.Context, principal Principal, tokenValue, newPassword string) (*Result, error) {
	if err := ValidateTokenValue(tokenValue); err != nil {
		return nil, err
	}
	if err := s.passwords.Validate("newPassword", newPassword); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, s.internal(ctx, "update password", oops.Code("AUTH_UPDATE_PASSWORD_FAILED").
			With("operation", "hash password").
			Wrap(err))
	}

	now := s.now()
	account, err := s.updateCredentials(ctx, principal, tokenValue, func(_ context.Context, account *Account) error {
		account.PasswordHash = hash
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "update password", err)
	}

	s.logger.InfoContext(ctx, "account password updated", "account_id", account.ID.String())
	return newResult(account, now), nil
}

// updateCredentials runs the shared credential update sequence in one
// transaction: reserve the principal's token, load the account, apply
// mutate, reissue the session and persist.
func (s *Service) updateCredentials(
	ctx context.Context,
	principal Principal,
	tokenValue string,
	mutate func(ctx context.Context, account *Account) error,
) (*Account, error) {
	var account *Account
	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		binding := principal.ExternalBindingID
		if _, err := s.tokens.Reserve(ctx, tokenValue, &binding); err != nil {
			return err //nolint:wrapcheck // carries AUTH_TOKEN_INVALID or a storage code
		}

		var err error
		account, err = s.accounts.GetByID(ctx, principal.AccountID)
		if err != nil {
			return err //nolint:wrapcheck // carries ACCOUNT_NOT_FOUND or a storage code
		}
		if account.ExternalBindingID != principal.ExternalBindingID {
			return ErrSessionInvalid(nil)
		}

		if err := mutate(ctx, account); err != nil {
			return err
		}
		if err := s.issueSession(account); err != nil {
			return err
		}
		return s.accounts.SaveCredentials(ctx, account) //nolint:wrapcheck // carries conflict or storage code
	})
	if err != nil {
		return nil, err //nolint:wrapcheck // classified by caller
	}
	return account, nil
}

// ensureEmailFree rejects email when it belongs to an account other than
// self. The store's unique constraint remains the authoritative guard.
func (s *Service) ensureEmailFree(ctx context.Context, email string, self *Account, conflict func(error) error) error {
	owner, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.With("operation", "check email availability").Wrap(err)
	}
	if self != nil && owner.ID == self.ID {
		return nil
	}
	return conflict(nil)
}

func (s *Service) issueSession(account *Account) error {
	token, expiry, err := s.issuer.Issue(account)
	if err != nil {
		return oops.Code("AUTH_SESSION_ISSUE_FAILED").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	account.SetSession(token, expiry)
	return nil
}

// fail logs internal failures and returns err unchanged for classified ones.
func (s *Service) fail(ctx context.Context, operation string, err error) error {
	if KindOf(err) != KindInternal {
		return err
	}
	return s.internal(ctx, operation, err)
}

func (s *Service) internal(ctx context.Context, operation string, err error) error {
	errutil.LogErrorContext(ctx, s.logger, operation+" failed", err)
	return err
}

// endSpan records the outcome of an operation on span and ends it.
func endSpan(span trace.Span, result *Result, err error) {
	defer span.End()
	if err != nil {
		kind := KindOf(err)
		span.SetAttributes(attribute.String("auth.outcome", kind.String()))
		if oopsErr, ok := oops.AsOops(err); ok {
			if code, ok := oopsErr.Code().(string); ok && code != "" {
				span.SetAttributes(attribute.String("error.code", code))
			}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, kind.String())
		return
	}
	span.SetAttributes(
		attribute.String("auth.outcome", "success"),
		attribute.String("account.id", result.Account.ID.String()),
	)
}
