package store

import (
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrStorageUnavailable is returned when the database cannot be opened
	// or stays busy after every retry. Callers should treat it as a 503.
	ErrStorageUnavailable = eris.New("storage unavailable")

	// ErrDuplicateSlug is returned by Create/Update on entities whose slug
	// must be unique and already exists.
	ErrDuplicateSlug = eris.New("duplicate slug")

	// ErrValidation is returned when a payload is missing required fields or
	// carries values that cannot be stored.
	ErrValidation = eris.New("invalid input")
)

// coded matches driver errors that expose a SQLite result code.
type coded interface {
	Code() int
}

func resultCode(err error) (int, bool) {
	var c coded
	if errors.As(err, &c) {
		return c.Code(), true
	}
	return 0, false
}

// IsBusy reports whether err is a transient SQLITE_BUSY or SQLITE_LOCKED
// condition worth retrying.
func IsBusy(err error) bool {
	if err == nil || eris.Is(err, ErrStorageUnavailable) {
		return false
	}
	if code, ok := resultCode(err); ok {
		primary := code & 0xff
		return primary == sqlite3.SQLITE_BUSY || primary == sqlite3.SQLITE_LOCKED
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := resultCode(err); ok {
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func validationError(format string, args ...any) error {
	return eris.Wrapf(ErrValidation, format, args...)
}
