// Package migrate applies the numbered *.sql files of an fs.FS to a database.
//
// A migration file is named <version>_<description>.sql, versions start at 1
// and have no gaps. Applied migrations are recorded with a checksum of their
// contents, a recorded migration that was renamed or edited afterwards stops
// all further migrations.
package migrate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Migration is a migration file, possibly applied.
type Migration struct {
	Version  int
	Filename string
	// Checksum is the hex encoded SHA-256 of the file contents.
	Checksum string
	// Metadata is only set for applied migrations.
	Metadata Metadata
}

// Equal checks if two migrations are equal.
func (m Migration) Equal(other Migration) bool {
	return m.Version == other.Version &&
		m.Filename == other.Filename &&
		m.Checksum == other.Checksum &&
		m.Metadata.AppVersion == other.Metadata.AppVersion &&
		m.Metadata.Timestamp.Equal(other.Metadata.Timestamp)
}

// Metadata is recorded next to every applied migration.
type Metadata struct {
	AppVersion string
	Timestamp  time.Time
}

var (
	// ErrNoTable indicates no migration was ever applied to the database.
	ErrNoTable = errors.New("migrations table does not exist")
	// ErrMigrationsMismatch indicates the applied migrations differ from the files.
	ErrMigrationsMismatch = errors.New("migrations mismatch")
	// ErrInvalidFilename indicates a *.sql file without a valid version prefix.
	ErrInvalidFilename = errors.New("invalid migration filename")
)

// MigrationError wraps the error of a failing migration file.
type MigrationError struct {
	Version  int
	Filename string
	Err      error
}

func (m MigrationError) Error() string {
	return fmt.Sprintf("migration %d (%s) failed: %v", m.Version, m.Filename, m.Err)
}

func (m MigrationError) Unwrap() error {
	return m.Err
}

const (
	createTableQuery = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version     INTEGER PRIMARY KEY,
	filename    TEXT NOT NULL,
	checksum    TEXT NOT NULL,
	app_version TEXT NOT NULL,
	applied_at  TIMESTAMP NOT NULL
)`
	selectQuery = `SELECT version, filename, checksum, app_version, applied_at FROM schema_migrations ORDER BY version`
	insertQuery = `INSERT INTO schema_migrations (version, filename, checksum, app_version, applied_at) VALUES (?, ?, ?, ?, ?)`
)

// RunFS applies the migrations in the root of fsys that were not applied
// before, in a single transaction. It returns the migrations it applied,
// an empty slice if the database was up to date.
func RunFS(ctx context.Context, db *sql.DB, fsys fs.FS, meta Metadata) ([]Migration, error) {
	files, err := loadFiles(fsys)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx, createTableQuery)
	if err != nil {
		return nil, rollback(tx, fmt.Errorf("failed to create migrations table: %w", err))
	}

	applied, err := query(ctx, tx)
	if err != nil {
		return nil, rollback(tx, err)
	}

	pending, err := diff(applied, files)
	if err != nil {
		return nil, rollback(tx, err)
	}

	ran, err := apply(ctx, tx, pending, meta)
	if err != nil {
		return nil, rollback(tx, err)
	}

	err = tx.Commit()
	if err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return ran, nil
}

// Pending returns the migrations in fsys that were not applied to db yet.
// Their Metadata is left empty.
func Pending(ctx context.Context, db *sql.DB, fsys fs.FS) ([]Migration, error) {
	files, err := loadFiles(fsys)
	if err != nil {
		return nil, err
	}

	applied, err := QueryMigrations(ctx, db)
	if errors.Is(err, ErrNoTable) {
		applied = nil
	} else if err != nil {
		return nil, err
	}

	pending, err := diff(applied, files)
	if err != nil {
		return nil, err
	}

	out := make([]Migration, 0, len(pending))
	for _, f := range pending {
		out = append(out, f.Migration)
	}

	return out, nil
}

// QueryMigrations returns the applied migrations ordered by version. It returns
// ErrNoTable if no migration was ever applied.
func QueryMigrations(ctx context.Context, db *sql.DB) ([]Migration, error) {
	return query(ctx, db)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func query(ctx context.Context, q queryer) ([]Migration, error) {
	rows, err := q.QueryContext(ctx, selectQuery)
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return nil, ErrNoTable
		}
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	out := make([]Migration, 0)
	for rows.Next() {
		var m Migration
		err := rows.Scan(&m.Version, &m.Filename, &m.Checksum, &m.Metadata.AppVersion, &m.Metadata.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		out = append(out, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate over migrations: %w", err)
	}

	return out, nil
}

// diff checks the applied migrations against the files and returns the
// files that still need to be applied.
func diff(applied []Migration, files []file) ([]file, error) {
	if len(applied) > len(files) {
		return nil, fmt.Errorf("%d migrations were applied but only %d files exist: %w",
			len(applied), len(files), ErrMigrationsMismatch)
	}

	for i, m := range applied {
		f := files[i]
		switch {
		case m.Version != f.Version:
			return nil, fmt.Errorf("applied migration %d, but file has version %d: %w", m.Version, f.Version, ErrMigrationsMismatch)
		case m.Filename != f.Filename:
			return nil, fmt.Errorf("migration %d was applied as %s, but file is named %s: %w", m.Version, m.Filename, f.Filename, ErrMigrationsMismatch)
		case m.Checksum != f.Checksum:
			return nil, fmt.Errorf("migration %d (%s) was edited after it was applied: %w", m.Version, f.Filename, ErrMigrationsMismatch)
		}
	}

	return files[len(applied):], nil
}

func apply(ctx context.Context, tx *sql.Tx, pending []file, meta Metadata) ([]Migration, error) {
	ran := make([]Migration, 0, len(pending))
	if len(pending) == 0 {
		return ran, nil
	}

	stmt, err := tx.PrepareContext(ctx, insertQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for _, f := range pending {
		_, err := tx.ExecContext(ctx, f.content)
		if err != nil {
			return nil, MigrationError{Version: f.Version, Filename: f.Filename, Err: err}
		}

		m := f.Migration
		m.Metadata = meta

		_, err = stmt.ExecContext(ctx, m.Version, m.Filename, m.Checksum, meta.AppVersion, meta.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}

		ran = append(ran, m)
	}

	return ran, nil
}

// file is a migration file that was read from the filesystem.
type file struct {
	Migration
	content string
}

func loadFiles(fsys fs.FS) ([]file, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	files := make([]file, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}

		version, err := parseVersion(entry.Name())
		if err != nil {
			return nil, err
		}

		content, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", entry.Name(), err)
		}

		sum := sha256.Sum256(content)
		files = append(files, file{
			Migration: Migration{
				Version:  version,
				Filename: entry.Name(),
				Checksum: hex.EncodeToString(sum[:]),
			},
			content: string(content),
		})
	}

	// ReadDir sorts by name, 10_x.sql would come before 2_x.sql.
	slices.SortFunc(files, func(a, b file) int {
		return a.Version - b.Version
	})

	for i, f := range files {
		if f.Version != i+1 {
			return nil, fmt.Errorf("expected migration version %d, got %s: %w", i+1, f.Filename, ErrInvalidFilename)
		}
	}

	return files, nil
}

func parseVersion(name string) (int, error) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, fmt.Errorf("%s has no version prefix: %w", name, ErrInvalidFilename)
	}

	v, err := strconv.Atoi(prefix)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s has an invalid version prefix: %w", name, ErrInvalidFilename)
	}

	return v, nil
}

func rollback(tx *sql.Tx, err error) error {
	rErr := tx.Rollback()
	if rErr != nil {
		return errors.Join(err, rErr)
	}

	return err
}
