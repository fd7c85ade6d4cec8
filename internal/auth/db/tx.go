package db

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/willemschots/webauth/internal/auth"
	"github.com/willemschots/webauth/internal/email"
	"github.com/willemschots/webauth/internal/krypto"
)

type Tx struct {
	ctx   context.Context
	tx    *sql.Tx
	store *Store
}

func (t *Tx) Commit() error {
	return t.tx.Commit()
}

func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// CreateAccount creates an account in the database.
// It sets the Version, CreatedAt and UpdatedAt fields when successful.
func (t *Tx) CreateAccount(a *auth.Account) error {
	return insertAccount(t.store.newQuery(), bindExec(t.ctx, t.tx.ExecContext), t.store.now(), a)
}

// UpdateAccount updates an account in the database if the version matches.
// It increments the Version and sets the UpdatedAt field when successful.
// It returns errorz.ErrNotFound if no account with the id and version is found.
func (t *Tx) UpdateAccount(a *auth.Account) error {
	return updateAccount(t.store.newQuery(), bindExec(t.ctx, t.tx.ExecContext), t.store.now(), a)
}

// AccountExists reports whether an account with the email exists.
func (t *Tx) AccountExists(addr email.Address) (bool, error) {
	return accountExists(bindQuery(t.ctx, t.tx.QueryContext), addr)
}

func (t *Tx) FindAccountByID(id uuid.UUID) (auth.Account, error) {
	return selectAccount(t.store.newQuery(), bindQuery(t.ctx, t.tx.QueryContext), accountFilter{id: &id})
}

func (t *Tx) FindAccountByEmail(addr email.Address) (auth.Account, error) {
	return selectAccount(t.store.newQuery(), bindQuery(t.ctx, t.tx.QueryContext), accountFilter{email: &addr})
}

func (t *Tx) FindAccountByVerificationToken(d krypto.TokenDigest) (auth.Account, error) {
	return selectAccount(t.store.newQuery(), bindQuery(t.ctx, t.tx.QueryContext), accountFilter{verificationToken: &d})
}

func (t *Tx) FindAccountByResetToken(d krypto.TokenDigest) (auth.Account, error) {
	return selectAccount(t.store.newQuery(), bindQuery(t.ctx, t.tx.QueryContext), accountFilter{resetToken: &d})
}
