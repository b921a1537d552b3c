// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

//go:build integration

package postgres_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"golang.org/x/crypto/bcrypt"

	"github.com/6lebedev9/GameAPI/internal/auth"
	"github.com/6lebedev9/GameAPI/internal/auth/postgres"
	"github.com/6lebedev9/GameAPI/internal/session"
)

var _ = Describe("Account service on PostgreSQL", func() {
	var (
		ctx      context.Context
		accounts *postgres.AccountRepository
		tokens   *postgres.TokenRepository
		svc      *auth.Service
	)

	issueToken := func(binding int64, value string) {
		tok, err := auth.NewVerificationToken(binding, binding*10, value, time.Now().Add(time.Hour))
		Expect(err).NotTo(HaveOccurred())
		Expect(tokens.Issue(ctx, tok)).To(Succeed())
	}

	tokenUsed := func(binding int64) bool {
		var used bool
		err := testPool.QueryRow(ctx,
			`SELECT used FROM verification_tokens WHERE external_binding_id = $1`, binding).Scan(&used)
		Expect(err).NotTo(HaveOccurred())
		return used
	}

	countAccounts := func() int {
		var n int
		Expect(testPool.QueryRow(ctx, `SELECT count(*) FROM accounts`).Scan(&n)).To(Succeed())
		return n
	}

	register := func(value, email string) (*auth.Result, error) {
		return svc.Register(ctx, auth.RegisterInput{
			TokenValue:      value,
			Email:           email,
			Password:        "Password123",
			ConfirmPassword: "Password123",
		})
	}

	BeforeEach(func() {
		ctx = context.Background()
		truncateAll(ctx)

		accounts = postgres.NewAccountRepository(testPool)
		tokens = postgres.NewTokenRepository(testPool)

		hasher, err := auth.NewBcryptHasher(bcrypt.MinCost)
		Expect(err).NotTo(HaveOccurred())
		issuer, err := session.NewIssuer(session.Config{
			Key:      []byte("integration-test-signing-key-0123456789"),
			Issuer:   "gameapi-test",
			Audience: "gameapi-test-clients",
		})
		Expect(err).NotTo(HaveOccurred())

		svc, err = auth.NewServiceWithLogger(accounts, tokens, postgres.NewTransactor(testPool), hasher, issuer,
			slog.New(slog.NewTextHandler(io.Discard, nil)))
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Register", func() {
		It("consumes the token and creates the account", func() {
			issueToken(1001, "ABCDE")

			result, err := register("ABCDE", "first@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.AccessToken).NotTo(BeEmpty())
			Expect(result.Account.ExternalBindingID).To(Equal(int64(1001)))
			Expect(tokenUsed(1001)).To(BeTrue())

			stored, err := accounts.GetByEmail(ctx, "first@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.ID).To(Equal(result.Account.ID))
			Expect(stored.SessionToken).To(Equal(result.AccessToken))
		})

		It("rejects a second use of the token", func() {
			issueToken(1001, "ABCDE")
			_, err := register("ABCDE", "first@example.com")
			Expect(err).NotTo(HaveOccurred())

			_, err = register("ABCDE", "second@example.com")
			Expect(auth.KindOf(err)).To(Equal(auth.KindTokenInvalid))
		})

		It("rejects an expired token", func() {
			tok, err := auth.NewVerificationToken(1002, 1, "EXPRD", time.Now().Add(-time.Minute))
			Expect(err).NotTo(HaveOccurred())
			Expect(tokens.Issue(ctx, tok)).To(Succeed())

			_, err = register("EXPRD", "late@example.com")
			Expect(auth.KindOf(err)).To(Equal(auth.KindTokenInvalid))
			Expect(tokenUsed(1002)).To(BeFalse())
		})

		It("leaves the token unused when the email is taken", func() {
			issueToken(1001, "AAAAA")
			issueToken(1002, "BBBBB")
			_, err := register("AAAAA", "taken@example.com")
			Expect(err).NotTo(HaveOccurred())

			_, err = register("BBBBB", "taken@example.com")
			Expect(auth.KindOf(err)).To(Equal(auth.KindConflict))
			Expect(tokenUsed(1002)).To(BeFalse())
			Expect(countAccounts()).To(Equal(1))
		})

		It("lets exactly one concurrent registration redeem a token", func() {
			issueToken(1001, "RACE1")

			const n = 8
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
				kinds     []auth.Kind
			)
			for i := range n {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					defer GinkgoRecover()
					_, err := register("RACE1", "racer"+string(rune('a'+i))+"@example.com")
					mu.Lock()
					defer mu.Unlock()
					if err == nil {
						successes++
						return
					}
					kinds = append(kinds, auth.KindOf(err))
				}(i)
			}
			wg.Wait()

			Expect(successes).To(Equal(1))
			Expect(kinds).To(HaveLen(n - 1))
			for _, k := range kinds {
				Expect(k).To(Equal(auth.KindTokenInvalid))
			}
			Expect(countAccounts()).To(Equal(1))
			Expect(tokenUsed(1001)).To(BeTrue())
		})

		It("reports a concurrent duplicate email as a conflict with no orphaned token", func() {
			const n = 6
			for i := range n {
				issueToken(int64(2000+i), "DUP"+string(rune('A'+i))+"X")
			}

			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
				conflicts int
			)
			for i := range n {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					defer GinkgoRecover()
					_, err := register("DUP"+string(rune('A'+i))+"X", "same@example.com")
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						successes++
					case auth.KindOf(err) == auth.KindConflict:
						conflicts++
					}
				}(i)
			}
			wg.Wait()

			Expect(successes).To(Equal(1))
			Expect(conflicts).To(Equal(n - 1))

			var used int
			Expect(testPool.QueryRow(ctx, `SELECT count(*) FROM verification_tokens WHERE used`).Scan(&used)).To(Succeed())
			Expect(used).To(Equal(1))
		})
	})

	Describe("Login lockout", func() {
		BeforeEach(func() {
			issueToken(3001, "LOGIN")
			_, err := register("LOGIN", "locker@example.com")
			Expect(err).NotTo(HaveOccurred())
		})

		It("locks on the fifth failure and refuses the correct password", func() {
			for i := 1; i <= 4; i++ {
				_, err := svc.Login(ctx, "locker@example.com", "WrongPass1")
				Expect(err).To(HaveOccurred())
				Expect(auth.Message(err)).To(Equal("Invalid credentials"))
			}

			_, err := svc.Login(ctx, "locker@example.com", "WrongPass1")
			until, locked := auth.LockedUntil(err)
			Expect(locked).To(BeTrue())
			Expect(until).To(BeTemporally("~", time.Now().Add(15*time.Minute), 5*time.Second))

			_, err = svc.Login(ctx, "locker@example.com", "Password123")
			_, locked = auth.LockedUntil(err)
			Expect(locked).To(BeTrue())
		})

		It("resets the counter on success", func() {
			for i := 0; i < 4; i++ {
				_, _ = svc.Login(ctx, "locker@example.com", "WrongPass1")
			}
			_, err := svc.Login(ctx, "locker@example.com", "Password123")
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Login(ctx, "locker@example.com", "WrongPass1")
			Expect(auth.Message(err)).To(Equal("Invalid credentials"))

			stored, err := accounts.GetByEmail(ctx, "locker@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.FailedLoginAttempts).To(Equal(1))
		})

		It("counts concurrent failures without losing updates", func() {
			stored, err := accounts.GetByEmail(ctx, "locker@example.com")
			Expect(err).NotTo(HaveOccurred())

			transition := auth.DefaultLockoutPolicy().Transition(time.Now())
			var wg sync.WaitGroup
			for range 4 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					_, _, err := accounts.RecordLoginFailure(ctx, stored.ID, transition)
					Expect(err).NotTo(HaveOccurred())
				}()
			}
			wg.Wait()

			stored, err = accounts.GetByEmail(ctx, "locker@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.FailedLoginAttempts).To(Equal(4))
			Expect(stored.LockedUntil).To(BeNil())
		})

		It("does not touch any row for an unknown email", func() {
			_, err := svc.Login(ctx, "nobody@example.com", "Password123")
			Expect(auth.Message(err)).To(Equal("Invalid credentials"))

			var total int
			Expect(testPool.QueryRow(ctx, `SELECT COALESCE(sum(failed_login_attempts), 0) FROM accounts`).Scan(&total)).To(Succeed())
			Expect(total).To(BeZero())
		})
	})

	Describe("UpdateEmail", func() {
		var principal auth.Principal

		BeforeEach(func() {
			issueToken(4001, "OWNER")
			owner, err := register("OWNER", "owner@example.com")
			Expect(err).NotTo(HaveOccurred())
			principal = auth.Principal{AccountID: owner.Account.ID, ExternalBindingID: 4001}

			issueToken(4002, "OTHER")
			_, err = register("OTHER", "other@example.com")
			Expect(err).NotTo(HaveOccurred())
		})

		It("rolls back entirely on conflict", func() {
			issueToken(4001, "CHNG1")

			_, err := svc.UpdateEmail(ctx, principal, "CHNG1", "other@example.com")
			Expect(auth.KindOf(err)).To(Equal(auth.KindConflict))

			stored, err := accounts.GetByID(ctx, principal.AccountID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Email).To(Equal("owner@example.com"))
			Expect(tokenUsed(4001)).To(BeFalse())
		})

		It("changes the email and rotates the session", func() {
			before, err := accounts.GetByID(ctx, principal.AccountID)
			Expect(err).NotTo(HaveOccurred())
			issueToken(4001, "CHNG2")

			result, err := svc.UpdateEmail(ctx, principal, "CHNG2", "renamed@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.AccessToken).NotTo(Equal(before.SessionToken))

			stored, err := accounts.GetByID(ctx, principal.AccountID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Email).To(Equal("renamed@example.com"))
			Expect(stored.SessionToken).To(Equal(result.AccessToken))
			Expect(tokenUsed(4001)).To(BeTrue())
		})

		It("refuses a token bound to another identity", func() {
			issueToken(4002, "FOREN")

			_, err := svc.UpdateEmail(ctx, principal, "FOREN", "renamed@example.com")
			Expect(auth.KindOf(err)).To(Equal(auth.KindTokenInvalid))
			Expect(tokenUsed(4002)).To(BeFalse())
		})
	})

	Describe("UpdatePassword", func() {
		It("is not reverted by a login verifying the old password", func() {
			issueToken(5101, "RACE2")
			owner, err := register("RACE2", "racer@example.com")
			Expect(err).NotTo(HaveOccurred())
			principal := auth.Principal{AccountID: owner.Account.ID, ExternalBindingID: 5101}
			issueToken(5101, "RACE3")

			base, err := auth.NewBcryptHasher(bcrypt.MinCost)
			Expect(err).NotTo(HaveOccurred())
			// The password change commits while the login is between its
			// read and its write.
			hooked := &verifyHookHasher{BcryptHasher: base, afterVerify: func() {
				_, err := svc.UpdatePassword(ctx, principal, "RACE3", "BrandNew99")
				Expect(err).NotTo(HaveOccurred())
			}}
			issuer, err := session.NewIssuer(session.Config{
				Key:      []byte("integration-test-signing-key-0123456789"),
				Issuer:   "gameapi-test",
				Audience: "gameapi-test-clients",
			})
			Expect(err).NotTo(HaveOccurred())
			racing, err := auth.NewServiceWithLogger(accounts, tokens, postgres.NewTransactor(testPool), hooked, issuer,
				slog.New(slog.NewTextHandler(io.Discard, nil)))
			Expect(err).NotTo(HaveOccurred())

			_, err = racing.Login(ctx, "racer@example.com", "Password123")
			Expect(auth.KindOf(err)).To(Equal(auth.KindUnauthorized))

			_, err = svc.Login(ctx, "racer@example.com", "Password123")
			Expect(auth.KindOf(err)).To(Equal(auth.KindUnauthorized))
			_, err = svc.Login(ctx, "racer@example.com", "BrandNew99")
			Expect(err).NotTo(HaveOccurred())
		})

		It("replaces the password", func() {
			issueToken(5001, "PASS1")
			owner, err := register("PASS1", "pw@example.com")
			Expect(err).NotTo(HaveOccurred())
			principal := auth.Principal{AccountID: owner.Account.ID, ExternalBindingID: 5001}

			issueToken(5001, "PASS2")
			_, err = svc.UpdatePassword(ctx, principal, "PASS2", "BrandNew99")
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Login(ctx, "pw@example.com", "Password123")
			Expect(auth.KindOf(err)).To(Equal(auth.KindUnauthorized))
			_, err = svc.Login(ctx, "pw@example.com", "BrandNew99")
			Expect(err).NotTo(HaveOccurred())
		})
	})
})

// verifyHookHasher runs afterVerify once, after the first Verify call.
type verifyHookHasher struct {
	*auth.BcryptHasher
	afterVerify func()
}

func (h *verifyHookHasher) Verify(password, hash string) (bool, error) {
	ok, err := h.BcryptHasher.Verify(password, hash)
	if h.afterVerify != nil {
		hook := h.afterVerify
		h.afterVerify = nil
		hook()
	}
	return ok, err
}
