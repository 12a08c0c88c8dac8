package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Flattened bookmark table
const currentSchemaVersion = 1

// Store wraps one SQLite database: either the Places origin or the mirror.
type Store struct {
	db       *sql.DB
	path     string
	readOnly bool
}

// OriginOptions controls how the Places database is opened.
type OriginOptions struct {
	// ReadOnly opens the file with mode=ro. Commit is refused.
	ReadOnly bool

	// BusyTimeout is how long SQLite waits on a lock before failing.
	// Zero fails immediately, which is what a running Firefox needs.
	BusyTimeout time.Duration
}

// OpenOrigin opens an existing Places database.
//
// The file must already exist and contain moz_bookmarks, moz_places and
// moz_origins. In writable mode a BEGIN IMMEDIATE check confirms no other
// process holds the write lock. Lock contention surfaces as ErrLocked.
func OpenOrigin(ctx context.Context, path string, opts OriginOptions) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat origin: %w", err)
	}

	params := url.Values{}
	params.Set("_busy_timeout", strconv.FormatInt(opts.BusyTimeout.Milliseconds(), 10))
	if opts.ReadOnly {
		params.Set("mode", "ro")
	} else {
		params.Set("_txlock", "immediate")
	}

	db, err := sql.Open(DriverName, fileDSN(path, params))
	if err != nil {
		return nil, fmt.Errorf("failed to open origin: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, path: path, readOnly: opts.ReadOnly}
	if err := s.checkOrigin(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// checkOrigin verifies the Places tables exist and that the lock is free.
func (s *Store) checkOrigin(ctx context.Context) error {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('moz_bookmarks', 'moz_places', 'moz_origins')`,
	).Scan(&n)
	if err != nil {
		return classify("failed to read origin schema", err)
	}
	if n != 3 {
		return fmt.Errorf("%s: %w", s.path, ErrNotPlaces)
	}
	if s.readOnly {
		return nil
	}

	// _txlock=immediate turns BeginTx into BEGIN IMMEDIATE.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("failed to acquire origin write lock", err)
	}
	return tx.Rollback()
}

// OpenMirror creates a fresh mirror database at path.
// Any file left over at path from an earlier session is deleted first.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (the mirror is disposable)
//   - 5-second busy timeout for lock contention
func OpenMirror(ctx context.Context, path string) (*Store, error) {
	if err := RemoveFiles(path); err != nil {
		return nil, fmt.Errorf("failed to remove stale mirror: %w", err)
	}

	db, err := sql.Open(DriverName, fileDSN(path, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror: %w", err)
	}

	// Verify connection works
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to mirror: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// ReadOnly reports whether the store was opened read-only.
func (s *Store) ReadOnly() bool {
	return s.readOnly
}

// Query executes a query and returns the resulting rows.
// Callers are responsible for closing the returned rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("query", err)
	}
	return rows, nil
}

// QueryRow executes a query expected to return at most one row.
func (s *Store) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

// Exec executes a statement and returns the number of affected rows.
func (s *Store) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	if s.readOnly {
		return 0, ErrReadOnly
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classify("exec", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// WithTx runs fn inside a transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if s.readOnly {
		return ErrReadOnly
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify("commit transaction", err)
	}
	return nil
}

// Checkpoint folds the write-ahead log into the main database file so a
// plain file copy captures every committed transaction.
// It is a no-op for databases not in WAL mode.
func (s *Store) Checkpoint(ctx context.Context) error {
	if s.readOnly {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return classify("checkpoint", err)
	}
	return nil
}

// RemoveFiles deletes a database file and its -wal and -shm siblings.
// Missing files are not an error.
func RemoveFiles(path string) error {
	var errs []error
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// classify wraps err, mapping SQLite busy/locked codes to ErrLocked.
func classify(op string, err error) error {
	if IsLocked(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrLocked, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates the mirror table and records the schema version.
func applySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
