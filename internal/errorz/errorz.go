package errorz

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConstraintViolated = errors.New("constraint violated")
	ErrDuplicate          = errors.New("duplicate")
)

// MapDBErr maps database errors to appropriate errorz errors.
// If err is nil, MapDBErr returns nil.
func MapDBErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	sErr := sqlite3.Error{}
	if errors.As(err, &sErr) {
		if sErr.Code == sqlite3.ErrConstraint {
			switch sErr.ExtendedCode {
			case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
				return fmt.Errorf("%w: %w: %w", ErrConstraintViolated, ErrDuplicate, err)
			default:
				return fmt.Errorf("%w: %w", ErrConstraintViolated, err)
			}
		}
	}

	return err
}

// MapRowsAffected returns ErrNotFound when a write statement did not
// touch exactly one row.
func MapRowsAffected(res sql.Result, err error) error {
	if err != nil {
		return MapDBErr(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n != 1 {
		return ErrNotFound
	}

	return nil
}
