package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/foxmirror/internal/locate"
	"github.com/roach88/foxmirror/internal/snapshot"
	"github.com/roach88/foxmirror/internal/store"
)

// ErrorCode categorizes engine and session errors.
type ErrorCode string

const (
	// ErrCodeLocatorFailed indicates no places.sqlite matched the criterion.
	ErrCodeLocatorFailed ErrorCode = "LOCATOR_FAILED"

	// ErrCodeStoreLocked indicates another process holds the origin lock.
	ErrCodeStoreLocked ErrorCode = "STORE_LOCKED"

	// ErrCodeNotPlaces indicates the origin file is not a Places database.
	ErrCodeNotPlaces ErrorCode = "NOT_PLACES_DB"

	// ErrCodeReadOnly indicates a commit on a read-only session.
	ErrCodeReadOnly ErrorCode = "READ_ONLY"

	// ErrCodeNoSnapshot indicates a restore with no snapshot on disk.
	ErrCodeNoSnapshot ErrorCode = "NO_SNAPSHOT"

	// ErrCodeSnapshotIndex indicates a restore index outside the snapshot list.
	ErrCodeSnapshotIndex ErrorCode = "SNAPSHOT_INDEX_OUT_OF_RANGE"

	// ErrCodeSnapshotFailed indicates the pre-commit backup could not be written.
	ErrCodeSnapshotFailed ErrorCode = "SNAPSHOT_FAILED"

	// ErrCodeLoadFailed indicates the mirror could not be populated.
	ErrCodeLoadFailed ErrorCode = "LOAD_FAILED"

	// ErrCodeDiffFailed indicates the origin or mirror could not be scanned.
	ErrCodeDiffFailed ErrorCode = "DIFF_FAILED"

	// ErrCodeCommitFailed indicates the commit transaction was rolled back.
	ErrCodeCommitFailed ErrorCode = "COMMIT_FAILED"

	// ErrCodePlaceConflict indicates bookmarks sharing a place that carry
	// different edits to it.
	ErrCodePlaceConflict ErrorCode = "PLACE_CONFLICT"

	// ErrCodeInvalidQuery indicates a select or update referenced unknown fields.
	ErrCodeInvalidQuery ErrorCode = "INVALID_QUERY"

	// ErrCodeInternal covers anything else.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// ErrPlaceConflict is wrapped by ErrCodePlaceConflict errors.
var ErrPlaceConflict = errors.New("conflicting edits to a shared place")

// Error is a classified failure from the engine or session.
//
// Snapshot is set on commit failures so callers can point the user at the
// backup taken before the failed write.
type Error struct {
	Code     ErrorCode
	Message  string
	GUID     string
	Snapshot string
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.GUID != "" {
		msg += fmt.Sprintf(" (guid=%s)", e.GUID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap classifies err and wraps it with a message.
// The code is derived from err (see CodeOf), falling back to fallback.
func Wrap(fallback ErrorCode, message string, err error) *Error {
	code := CodeOf(err)
	if code == ErrCodeInternal {
		code = fallback
	}
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code for err.
// Engine errors keep their own code; package sentinels map to theirs.
func CodeOf(err error) ErrorCode {
	var ee *Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ee):
		return ee.Code
	case errors.Is(err, locate.ErrNotFound):
		return ErrCodeLocatorFailed
	case store.IsLocked(err):
		return ErrCodeStoreLocked
	case errors.Is(err, store.ErrNotPlaces):
		return ErrCodeNotPlaces
	case errors.Is(err, store.ErrReadOnly):
		return ErrCodeReadOnly
	case errors.Is(err, snapshot.ErrNoSnapshot):
		return ErrCodeNoSnapshot
	case errors.Is(err, snapshot.ErrIndexOutOfRange):
		return ErrCodeSnapshotIndex
	default:
		return ErrCodeInternal
	}
}

// IsLocked returns true if err reports a locked origin.
// Uses errors.As to handle wrapped errors.
func IsLocked(err error) bool {
	return CodeOf(err) == ErrCodeStoreLocked
}

// IsSnapshotError returns true if err is a restore failure caused by a
// missing snapshot or an out-of-range index.
func IsSnapshotError(err error) bool {
	code := CodeOf(err)
	return code == ErrCodeNoSnapshot || code == ErrCodeSnapshotIndex
}
