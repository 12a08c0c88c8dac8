package store

import (
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrLocked is returned when another process (usually a running Firefox)
	// holds the lock on the origin store. It is never retried.
	ErrLocked = errors.New("store is locked by another process")

	// ErrNotPlaces is returned when the origin file lacks the Places tables.
	ErrNotPlaces = errors.New("not a places database")

	// ErrReadOnly is returned when a write is attempted on a read-only store.
	ErrReadOnly = errors.New("store is read-only")
)

// IsLocked reports whether err is a SQLite busy/locked condition.
func IsLocked(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrLocked) {
		return true
	}
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.Code == sqlite3.ErrBusy || sqlErr.Code == sqlite3.ErrLocked
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
