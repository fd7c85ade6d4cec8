// Package testdb provides migrated sqlite databases for tests.
package testdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/willemschots/webauth/internal/db"
	"github.com/willemschots/webauth/internal/db/migrate"
	"github.com/willemschots/webauth/migrations"
)

// RunWhile runs an in-memory database while the provided test is executing.
// It returns an empty database with all migrations applied.
//
// An in-memory database only lives as long as its connection, so the
// same *sql.DB has to be used for reading and writing.
func RunWhile(t *testing.T, write bool) *sql.DB {
	t.Helper()

	sqlDB := RunUnmigratedWhile(t, write)
	runMigrations(t, sqlDB)

	return sqlDB
}

// RunUnmigratedWhile runs an in-memory database while the provided test is executing.
// It returns an empty database without any migrations applied.
func RunUnmigratedWhile(t *testing.T, write bool) *sql.DB {
	t.Helper()

	return open(t, ":memory:", write)
}

// RunFileWhile runs a migrated database in a temporary file while the
// provided test is executing. It returns a read and a write pool for the
// same file, the way the server uses them.
func RunFileWhile(t *testing.T) (readDB, writeDB *sql.DB) {
	t.Helper()

	file := filepath.Join(t.TempDir(), "test.db")

	// the write pool creates the file, so it's opened and migrated first.
	writeDB = open(t, file, true)
	runMigrations(t, writeDB)

	readDB = open(t, file, false)
	if err := readDB.Ping(); err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}

	return readDB, writeDB
}

func runMigrations(t *testing.T, sqlDB *sql.DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := migrate.RunFS(ctx, sqlDB, migrations.FS, migrate.Metadata{})
	if err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
}

func open(t *testing.T, file string, write bool) *sql.DB {
	t.Helper()

	sqlDB, err := db.OpenSQLite(file, write)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	t.Cleanup(func() {
		err := sqlDB.Close()
		if err != nil {
			t.Errorf("failed to close database: %v", err)
		}
	})

	return sqlDB
}
