// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

//go:build integration

package store_test

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/6lebedev9/GameAPI/internal/store"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

var _ = Describe("Migrator", Ordered, func() {
	var migrator *store.Migrator

	BeforeAll(func() {
		var err error
		migrator, err = store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = migrator.Close() })

		// Top-level containers run in random order; start from an empty schema.
		Expect(migrator.Down()).To(Succeed())
	})

	It("starts at version zero", func() {
		st, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Version).To(BeZero())
		Expect(st.Dirty).To(BeFalse())
		Expect(st.Pending).To(Equal([]uint{1, 2}))
	})

	It("applies every migration", func() {
		Expect(migrator.Up()).To(Succeed())
		st, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Version).To(Equal(uint(2)))
		Expect(st.Pending).To(BeEmpty())
	})

	It("steps down and back up", func() {
		Expect(migrator.Steps(-1)).To(Succeed())
		version, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))

		Expect(migrator.Steps(1)).To(Succeed())
		version, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(2)))
	})

	It("rolls everything back and reapplies", func() {
		Expect(migrator.Down()).To(Succeed())
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
		Expect(dirty).To(BeFalse())

		Expect(migrator.Up()).To(Succeed())
	})

	It("forces a version without running migrations", func() {
		Expect(migrator.Force(1)).To(Succeed())
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))
		Expect(dirty).To(BeFalse())

		Expect(migrator.Force(2)).To(Succeed())
	})
})

var _ = Describe("Account schema", Ordered, func() {
	var (
		ctx  context.Context
		pool *pgxpool.Pool
	)

	BeforeAll(func() {
		ctx = context.Background()
		migrator, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		Expect(migrator.Up()).To(Succeed())
		Expect(migrator.Close()).To(Succeed())

		pool, err = store.Connect(ctx, connStr, 3, nil)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(pool.Close)
	})

	AfterEach(func() {
		_, err := pool.Exec(ctx, `TRUNCATE accounts, verification_tokens`)
		Expect(err).NotTo(HaveOccurred())
	})

	insertAccount := func(id, email string, binding int64) error {
		_, err := pool.Exec(ctx,
			`INSERT INTO accounts (id, email, password_hash, external_binding_id) VALUES ($1, $2, 'h', $3)`,
			id, email, binding)
		return err
	}

	It("applies column defaults", func() {
		Expect(insertAccount("01HZX0000000000000000000A1", "a@example.com", 1)).To(Succeed())

		var role, maxChars, attempts int
		var banned bool
		var token string
		err := pool.QueryRow(ctx, `
			SELECT role, max_character_count, failed_login_attempts, banned, session_token
			FROM accounts WHERE id = $1`, "01HZX0000000000000000000A1").
			Scan(&role, &maxChars, &attempts, &banned, &token)
		Expect(err).NotTo(HaveOccurred())
		Expect(role).To(Equal(1))
		Expect(maxChars).To(Equal(2))
		Expect(attempts).To(BeZero())
		Expect(banned).To(BeFalse())
		Expect(token).To(BeEmpty())
	})

	It("enforces a unique email", func() {
		Expect(insertAccount("01HZX0000000000000000000A1", "dup@example.com", 1)).To(Succeed())
		err := insertAccount("01HZX0000000000000000000A2", "dup@example.com", 2)
		Expect(pgCode(err)).To(Equal(pgerrcode.UniqueViolation))

		var pgErr *pgconn.PgError
		Expect(errors.As(err, &pgErr)).To(BeTrue())
		Expect(pgErr.ConstraintName).To(Equal("accounts_email_key"))
	})

	It("enforces one account per external binding", func() {
		Expect(insertAccount("01HZX0000000000000000000A1", "one@example.com", 7)).To(Succeed())
		err := insertAccount("01HZX0000000000000000000A2", "two@example.com", 7)

		var pgErr *pgconn.PgError
		Expect(errors.As(err, &pgErr)).To(BeTrue())
		Expect(pgErr.ConstraintName).To(Equal("accounts_external_binding_id_key"))
	})

	It("bounds the failure counter", func() {
		Expect(insertAccount("01HZX0000000000000000000A1", "c@example.com", 1)).To(Succeed())
		_, err := pool.Exec(ctx, `UPDATE accounts SET failed_login_attempts = 11`)
		Expect(pgCode(err)).To(Equal(pgerrcode.CheckViolation))
	})

	It("allows one outstanding token per value", func() {
		_, err := pool.Exec(ctx, `
			INSERT INTO verification_tokens (external_binding_id, chat_context_id, token_value, expires_at)
			VALUES (1, 10, 'ABCDE', now() + interval '1 hour')`)
		Expect(err).NotTo(HaveOccurred())

		_, err = pool.Exec(ctx, `
			INSERT INTO verification_tokens (external_binding_id, chat_context_id, token_value, expires_at)
			VALUES (2, 20, 'ABCDE', now() + interval '1 hour')`)
		Expect(pgCode(err)).To(Equal(pgerrcode.UniqueViolation))

		_, err = pool.Exec(ctx, `UPDATE verification_tokens SET used = true WHERE external_binding_id = 1`)
		Expect(err).NotTo(HaveOccurred())

		_, err = pool.Exec(ctx, `
			INSERT INTO verification_tokens (external_binding_id, chat_context_id, token_value, expires_at)
			VALUES (2, 20, 'ABCDE', now() + interval '1 hour')`)
		Expect(err).NotTo(HaveOccurred())
	})
})
