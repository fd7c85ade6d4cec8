package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/willemschots/webauth/internal/auth"
	"github.com/willemschots/webauth/internal/db"
	"github.com/willemschots/webauth/internal/email"
	"github.com/willemschots/webauth/internal/krypto"
)

// NowFunc is a function that returns the current time.
type NowFunc func() time.Time

// Store is responsible for interacting with a database.
//
// Reads outside of transactions use the read pool, transactions always
// use the write pool. The write pool is expected to have a single connection
// with immediate transactions (see db.OpenSQLite), which serializes all
// transactions.
type Store struct {
	readDB    *sql.DB
	writeDB   *sql.DB
	encryptor *krypto.Encryptor
	nowFunc   NowFunc
}

// New creates a new Store.
func New(readDB, writeDB *sql.DB, encryptor *krypto.Encryptor, nowFunc NowFunc) *Store {
	if nowFunc == nil {
		nowFunc = time.Now
	}

	return &Store{
		readDB:    readDB,
		writeDB:   writeDB,
		encryptor: encryptor,
		nowFunc:   nowFunc,
	}
}

// BeginTx starts a new transaction.
func (s *Store) BeginTx(ctx context.Context) (auth.Tx, error) {
	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{
		ctx:   ctx,
		tx:    tx,
		store: s,
	}, nil
}

// FindAccountByEmail finds an account by email, compared case-insensitively.
// It returns errorz.ErrNotFound if no account matches.
func (s *Store) FindAccountByEmail(ctx context.Context, addr email.Address) (auth.Account, error) {
	return selectAccount(s.newQuery(), bindQuery(ctx, s.readDB.QueryContext), accountFilter{email: &addr})
}

func (s *Store) newQuery() db.Query {
	return db.Query{
		Encryptor: s.encryptor,
	}
}

func (s *Store) now() time.Time {
	return s.nowFunc().UTC()
}
