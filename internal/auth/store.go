package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/willemschots/webauth/internal/email"
	"github.com/willemschots/webauth/internal/krypto"
)

// Store provides access to the account store.
type Store interface {
	BeginTx(ctx context.Context) (Tx, error)

	// FindAccountByEmail reads an account outside of a transaction.
	// It returns errorz.ErrNotFound if no account matches.
	FindAccountByEmail(ctx context.Context, addr email.Address) (Account, error)
}

// Tx is a transaction. If an error occurs on any of the Create/Update/Find methods,
// the transaction is considered to have failed and should be rolled back.
//
// Write transactions on the same store are serialized, so a read followed by a
// write within one Tx can't interleave with another Tx touching the same account.
//
// Find methods return errorz.ErrNotFound if no account matches.
// Tx is not safe for concurrent use.
type Tx interface {
	Commit() error
	Rollback() error

	// CreateAccount inserts a new account. It returns errorz.ErrConstraintViolated
	// if an account with the same email (compared case-insensitively) exists.
	CreateAccount(a *Account) error
	// UpdateAccount updates the account if its Version matches the stored version
	// and increments Version. It returns errorz.ErrNotFound on a version mismatch.
	UpdateAccount(a *Account) error

	AccountExists(addr email.Address) (bool, error)
	FindAccountByID(id uuid.UUID) (Account, error)
	FindAccountByEmail(addr email.Address) (Account, error)
	FindAccountByVerificationToken(d krypto.TokenDigest) (Account, error)
	FindAccountByResetToken(d krypto.TokenDigest) (Account, error)
}
