package errorz

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConstraintViolated = errors.New("constraint violated")
)

// MapDBErr maps database errors to appropriate errorz errors.
// If err is nil, MapDBErr returns nil.
//
// Unique constraint violations are returned as a Keyed error, with the
// violating column as the key.
func MapDBErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	sErr := sqlite3.Error{}
	if errors.As(err, &sErr) && sErr.Code == sqlite3.ErrConstraint {
		if sErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			if col, ok := uniqueColumn(sErr.Error()); ok {
				return Keyed{Key: col, Err: ErrConstraintViolated}
			}
		}
		return ErrConstraintViolated
	}

	return err
}

// uniqueColumn extracts the first column from a message like
// "UNIQUE constraint failed: accounts.username".
func uniqueColumn(msg string) (string, bool) {
	_, cols, ok := strings.Cut(msg, "UNIQUE constraint failed: ")
	if !ok {
		return "", false
	}

	first, _, _ := strings.Cut(cols, ",")
	_, col, ok := strings.Cut(strings.TrimSpace(first), ".")
	if !ok || col == "" {
		return "", false
	}

	return col, true
}
