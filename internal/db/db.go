// Package db opens the sqlite databases of the app and builds queries for them.
package db

import (
	"database/sql"
	"net/url"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

// busyTimeoutMs is how long a connection waits for a lock held by another one.
const busyTimeoutMs = 5000

// dsn returns the data source name for file. Readers and writers share WAL mode,
// so reads never wait for writes. A write transaction takes the database lock on
// BEGIN, with the single write connection this serializes the read-modify-write
// of an account. Readers can't write at all.
func dsn(file string, write bool) string {
	opts := url.Values{}
	opts.Set("_foreign_keys", "on")
	opts.Set("_journal_mode", "wal")
	opts.Set("_busy_timeout", strconv.Itoa(busyTimeoutMs))

	if write {
		opts.Set("_txlock", "immediate")
	} else {
		opts.Set("_query_only", "on")
	}

	return file + "?" + opts.Encode()
}

// OpenSQLite opens a pool of sqlite connections for reading or for writing.
//
// See https://github.com/mattn/go-sqlite3/issues/1179#issuecomment-1638083995
// for why the two are split.
func OpenSQLite(file string, write bool) (*sql.DB, error) {
	sqlDB, err := sql.Open("sqlite3", dsn(file, write))
	if err != nil {
		return nil, err
	}

	if !write {
		return sqlDB, nil
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	// the connection is never recycled, an in-memory database
	// would be dropped with it.
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetConnMaxIdleTime(0)

	return sqlDB, nil
}
