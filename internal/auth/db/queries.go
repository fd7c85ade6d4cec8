package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/willemschots/webauth/internal/auth"
	"github.com/willemschots/webauth/internal/db"
	"github.com/willemschots/webauth/internal/email"
	"github.com/willemschots/webauth/internal/errorz"
	"github.com/willemschots/webauth/internal/krypto"
)

type execFunc func(query string, params ...any) (sql.Result, error)
type queryFunc func(query string, params ...any) (*sql.Rows, error)

func bindExec(ctx context.Context, f func(context.Context, string, ...any) (sql.Result, error)) execFunc {
	return func(query string, params ...any) (sql.Result, error) {
		return f(ctx, query, params...)
	}
}

func bindQuery(ctx context.Context, f func(context.Context, string, ...any) (*sql.Rows, error)) queryFunc {
	return func(query string, params ...any) (*sql.Rows, error) {
		return f(ctx, query, params...)
	}
}

const accountColumns = `id, name, email, phone, password_hash, enabled, verified, verification_token, reset_token, reset_token_expiry, version, created_at, updated_at`

func insertAccount(q db.Query, ef execFunc, now time.Time, a *auth.Account) error {
	if a.ID == uuid.Nil {
		return fmt.Errorf("zero uuid provided: %w", errorz.ErrConstraintViolated)
	}

	err := a.Validate()
	if err != nil {
		return fmt.Errorf("%w: %w", errorz.ErrConstraintViolated, err)
	}

	q.Unsafe(`INSERT INTO accounts (` + accountColumns + `) VALUES (`)
	q.Params(a.ID, a.Name, string(a.Email))
	q.Unsafe(`, `)
	q.ParamEncrypted([]byte(a.Phone))
	q.Unsafe(`, `)
	q.Params(
		a.PasswordHash.String(), a.Enabled, a.Verified,
		nullDigest(a.VerificationToken), nullDigest(a.ResetToken), nullTime(a.ResetTokenExpiry),
		1, now, now,
	)
	q.Unsafe(`)`)

	s, params, err := q.Get()
	if err != nil {
		return err
	}

	_, err = ef(s, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	a.Version = 1
	a.CreatedAt = now
	a.UpdatedAt = now

	return nil
}

func updateAccount(q db.Query, ef execFunc, now time.Time, a *auth.Account) error {
	err := a.Validate()
	if err != nil {
		return fmt.Errorf("%w: %w", errorz.ErrConstraintViolated, err)
	}

	q.Unsafe(`UPDATE accounts SET `)

	q.Unsafe(`name = `)
	q.Param(a.Name)

	q.Unsafe(`, email = `)
	q.Param(string(a.Email))

	q.Unsafe(`, phone = `)
	q.ParamEncrypted([]byte(a.Phone))

	q.Unsafe(`, password_hash = `)
	q.Param(a.PasswordHash.String())

	q.Unsafe(`, enabled = `)
	q.Param(a.Enabled)

	q.Unsafe(`, verified = `)
	q.Param(a.Verified)

	q.Unsafe(`, verification_token = `)
	q.Param(nullDigest(a.VerificationToken))

	q.Unsafe(`, reset_token = `)
	q.Param(nullDigest(a.ResetToken))

	q.Unsafe(`, reset_token_expiry = `)
	q.Param(nullTime(a.ResetTokenExpiry))

	q.Unsafe(`, version = version + 1`)

	q.Unsafe(`, updated_at = `)
	q.Param(now)

	q.Unsafe(` WHERE id = `)
	q.Param(a.ID)

	q.Unsafe(` AND version = `)
	q.Param(a.Version)

	s, params, err := q.Get()
	if err != nil {
		return err
	}

	err = errorz.MapRowsAffected(ef(s, params...))
	if err != nil {
		return fmt.Errorf("account %s version %d: %w", a.ID, a.Version, err)
	}

	a.Version++
	a.UpdatedAt = now

	return nil
}

func accountExists(qf queryFunc, addr email.Address) (bool, error) {
	rows, err := qf(`SELECT EXISTS (SELECT 1 FROM accounts WHERE email = ?)`, string(addr))
	if err != nil {
		return false, errorz.MapDBErr(err)
	}
	defer rows.Close()

	var exists bool
	if rows.Next() {
		err = rows.Scan(&exists)
		if err != nil {
			return false, errorz.MapDBErr(err)
		}
	}

	if err := rows.Err(); err != nil {
		return false, errorz.MapDBErr(err)
	}

	return exists, nil
}

// accountFilter selects a single account, exactly one field should be set.
type accountFilter struct {
	id                *uuid.UUID
	email             *email.Address
	verificationToken *krypto.TokenDigest
	resetToken        *krypto.TokenDigest
}

func selectAccount(q db.Query, qf queryFunc, f accountFilter) (auth.Account, error) {
	q.Unsafe(`SELECT ` + accountColumns + ` FROM accounts WHERE `)

	switch {
	case f.id != nil:
		q.Unsafe(`id = `)
		q.Param(*f.id)
	case f.email != nil:
		// the email column is declared with COLLATE NOCASE.
		q.Unsafe(`email = `)
		q.Param(string(*f.email))
	case f.verificationToken != nil:
		q.Unsafe(`verification_token = `)
		q.Param(*f.verificationToken)
	case f.resetToken != nil:
		q.Unsafe(`reset_token = `)
		q.Param(*f.resetToken)
	default:
		return auth.Account{}, fmt.Errorf("empty account filter")
	}

	s, params, err := q.Get()
	if err != nil {
		return auth.Account{}, err
	}

	rows, err := qf(s, params...)
	if err != nil {
		return auth.Account{}, errorz.MapDBErr(err)
	}

	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return auth.Account{}, errorz.MapDBErr(err)
		}
		return auth.Account{}, errorz.ErrNotFound
	}

	var (
		a          auth.Account
		addr       string
		phone      = q.DecryptionTarget()
		resetUntil sql.NullTime
	)

	err = rows.Scan(
		&a.ID, &a.Name, &addr, phone, &a.PasswordHash, &a.Enabled, &a.Verified,
		&a.VerificationToken, &a.ResetToken, &resetUntil,
		&a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return auth.Account{}, errorz.MapDBErr(err)
	}

	a.Email, err = email.ParseAddress(addr)
	if err != nil {
		return auth.Account{}, err
	}

	a.Phone = auth.Phone(phone.Data)

	if resetUntil.Valid {
		a.ResetTokenExpiry = ptr(resetUntil.Time.UTC())
	}

	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()

	return a, rows.Err()
}

func nullDigest(d *krypto.TokenDigest) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func ptr[T any](v T) *T {
	return &v
}
