package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/roach88/foxmirror/internal/engine"
	"github.com/roach88/foxmirror/internal/locate"
	"github.com/roach88/foxmirror/internal/querysql"
	"github.com/roach88/foxmirror/internal/schema"
	"github.com/roach88/foxmirror/internal/snapshot"
	"github.com/roach88/foxmirror/internal/store"
)

// DefaultMirrorName is the mirror file name inside the temp directory.
const DefaultMirrorName = "bookmarks.sqlite"

// Options configures Connect.
type Options struct {
	// OriginPath is the places.sqlite to open. Empty means locate one
	// under ProfilesDir using Criterion.
	OriginPath string

	// ProfilesDir is the locator search root. Empty means the OS default.
	ProfilesDir string

	// Criterion picks among several located profiles. Empty means latest.
	Criterion locate.Criterion

	// MirrorPath is where the mirror is created. Any existing file there is
	// replaced. Empty means $TMPDIR/bookmarks.sqlite.
	MirrorPath string

	// BatchSize is the id-range width of each load batch. Zero means 100.
	BatchSize int

	// WriteFrecency writes place frecency columns back on commit.
	WriteFrecency bool

	// ReadOnly opens the origin read-only; Commit and RestoreBackup fail.
	ReadOnly bool

	// Duplicate works on a read-only copy of the origin (and its WAL) in a
	// temporary directory, so a running Firefox never sees the session.
	Duplicate bool

	// BusyTimeout is how long to wait on a locked origin. Zero fails at once.
	BusyTimeout time.Duration

	// Logger receives session logs. Nil discards them.
	Logger *slog.Logger

	// FS is used for locating profiles and for snapshots. Nil means the OS
	// file system; the origin itself is always opened from disk.
	FS afero.Fs

	// Clock names snapshots. Nil means the system clock.
	Clock snapshot.Clock
}

// Session owns one origin handle and one mirror for the lifetime of an edit.
//
// A Session is not safe for concurrent use.
type Session struct {
	id     uuid.UUID
	opts   Options
	logger *slog.Logger

	originPath string
	mirrorPath string
	dupDir     string

	origin *store.Store
	mirror *store.Store

	engine    *engine.Engine
	snapshots *snapshot.Manager
	compiler  *querysql.SQLCompiler
	loaded    engine.LoadResult
}

// Connect resolves the origin, opens it, creates the mirror and loads it.
func Connect(ctx context.Context, opts Options) (*Session, error) {
	opts = withDefaults(opts)

	id, err := uuid.NewV7()
	if err != nil {
		return nil, engine.Wrap(engine.ErrCodeInternal, "failed to create session id", err)
	}
	s := &Session{
		id:         id,
		opts:       opts,
		logger:     opts.Logger.With("session", id.String()),
		mirrorPath: opts.MirrorPath,
		snapshots:  snapshot.New(opts.FS, opts.Clock),
		compiler:   querysql.NewSQLCompiler(),
	}
	s.engine = engine.New(
		schema.New(schema.Options{WriteFrecency: opts.WriteFrecency}),
		s.snapshots,
		engine.WithBatchSize(opts.BatchSize),
		engine.WithLogger(s.logger),
	)

	if err := s.connect(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) connect(ctx context.Context) error {
	path, err := s.resolveOrigin()
	if err != nil {
		return err
	}
	s.originPath = path

	if s.opts.Duplicate {
		if err := s.duplicate(); err != nil {
			return engine.Wrap(engine.ErrCodeInternal, "failed to duplicate origin", err)
		}
	}

	if err := s.openOrigin(ctx); err != nil {
		return err
	}
	if err := s.reload(ctx); err != nil {
		return err
	}

	s.logger.Info("session connected",
		"origin", s.originPath,
		"mirror", s.mirrorPath,
		"read_only", s.ReadOnly(),
		"rows", s.loaded.Rows)
	return nil
}

// resolveOrigin returns the explicit origin path or locates one.
func (s *Session) resolveOrigin() (string, error) {
	if s.opts.OriginPath != "" {
		return s.opts.OriginPath, nil
	}

	root := s.opts.ProfilesDir
	if root == "" {
		dir, err := locate.ProfilesDir()
		if err != nil {
			return "", engine.Wrap(engine.ErrCodeLocatorFailed, "failed to resolve profiles directory", err)
		}
		root = dir
	}
	found, err := locate.Locate(s.opts.FS, root, s.opts.Criterion)
	if err != nil {
		return "", engine.Wrap(engine.ErrCodeLocatorFailed, "failed to locate places database", err)
	}
	s.logger.Debug("located origin", "path", found.Path, "criterion", s.opts.Criterion)
	return found.Path, nil
}

// duplicate copies the origin and its WAL into a private temp directory and
// points the session at the copy.
func (s *Session) duplicate() error {
	dir, err := os.MkdirTemp("", "foxmirror-")
	if err != nil {
		return err
	}
	s.dupDir = dir

	dst := filepath.Join(dir, locate.FileName)
	if err := s.snapshots.CopyFile(s.originPath, dst); err != nil {
		return err
	}
	wal := s.originPath + "-wal"
	if ok, _ := afero.Exists(s.opts.FS, wal); ok {
		if err := s.snapshots.CopyFile(wal, dst+"-wal"); err != nil {
			return err
		}
	}
	s.logger.Debug("origin duplicated", "from", s.originPath, "to", dst)
	s.originPath = dst
	return nil
}

func (s *Session) openOrigin(ctx context.Context) error {
	origin, err := store.OpenOrigin(ctx, s.originPath, store.OriginOptions{
		ReadOnly:    s.ReadOnly(),
		BusyTimeout: s.opts.BusyTimeout,
	})
	if err != nil {
		return engine.Wrap(engine.ErrCodeInternal, "failed to open origin", err)
	}
	s.origin = origin
	return nil
}

// reload replaces the mirror with a fresh copy of the origin.
func (s *Session) reload(ctx context.Context) error {
	if s.mirror != nil {
		if err := s.mirror.Close(); err != nil {
			return engine.Wrap(engine.ErrCodeInternal, "failed to close mirror", err)
		}
		s.mirror = nil
	}
	mirror, err := store.OpenMirror(ctx, s.mirrorPath)
	if err != nil {
		return engine.Wrap(engine.ErrCodeLoadFailed, "failed to create mirror", err)
	}
	s.mirror = mirror

	result, err := s.engine.Load(ctx, s.origin, s.mirror)
	if err != nil {
		return err
	}
	s.loaded = result
	return nil
}

// Close closes both stores and deletes the mirror files.
// It is safe to call more than once.
func (s *Session) Close() error {
	var errs []error
	if s.origin != nil {
		errs = append(errs, s.origin.Close())
		s.origin = nil
	}
	if s.mirror != nil {
		errs = append(errs, s.mirror.Close())
		s.mirror = nil
		if err := store.RemoveFiles(s.mirrorPath); err != nil {
			errs = append(errs, fmt.Errorf("remove mirror: %w", err))
		}
	}
	if s.dupDir != "" {
		if err := os.RemoveAll(s.dupDir); err != nil {
			errs = append(errs, fmt.Errorf("remove duplicate: %w", err))
		}
		s.dupDir = ""
	}
	err := errors.Join(errs...)
	if err != nil {
		s.logger.Warn("session closed with errors", "error", err)
	} else {
		s.logger.Debug("session closed")
	}
	return err
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id.String()
}

// OriginPath returns the origin file the session works on. For duplicate
// sessions this is the temporary copy.
func (s *Session) OriginPath() string {
	return s.originPath
}

// MirrorPath returns the mirror file path.
func (s *Session) MirrorPath() string {
	return s.mirrorPath
}

// ReadOnly reports whether commits are refused.
func (s *Session) ReadOnly() bool {
	return s.opts.ReadOnly || s.opts.Duplicate
}

// Loaded returns the result of the most recent mirror load.
func (s *Session) Loaded() engine.LoadResult {
	return s.loaded
}

// Translator returns the field table in use.
func (s *Session) Translator() *schema.Translator {
	return s.engine.Translator()
}

// Diff reports mirror rows that differ from the origin.
func (s *Session) Diff(ctx context.Context) (*engine.DiffReport, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.engine.Diff(ctx, s.origin, s.mirror)
}

// Commit backs up the origin and writes every changed mirror row back.
func (s *Session) Commit(ctx context.Context) (*engine.CommitResult, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.engine.Commit(ctx, s.origin, s.mirror)
}

// Snapshots lists the origin's backups, newest first.
func (s *Session) Snapshots() ([]snapshot.Snapshot, error) {
	snaps, err := s.snapshots.List(s.originPath)
	if err != nil {
		return nil, engine.Wrap(engine.ErrCodeInternal, "failed to list snapshots", err)
	}
	return snaps, nil
}

// RestoreBackup copies the index-th newest snapshot over the origin and
// reloads the mirror from it. Index 0 is the most recent backup.
//
// The origin is closed for the copy and reopened afterwards; pending mirror
// edits are discarded.
func (s *Session) RestoreBackup(ctx context.Context, index int) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	if s.ReadOnly() {
		return "", &engine.Error{Code: engine.ErrCodeReadOnly, Message: "session was opened read-only", Err: store.ErrReadOnly}
	}

	if err := s.origin.Close(); err != nil {
		return "", engine.Wrap(engine.ErrCodeInternal, "failed to close origin", err)
	}
	s.origin = nil

	src, restoreErr := s.snapshots.Restore(s.originPath, index)
	if restoreErr != nil {
		restoreErr = engine.Wrap(engine.ErrCodeInternal, "failed to restore snapshot", restoreErr)
	}

	// Reopen whether or not the restore worked so the session stays usable.
	if err := s.openOrigin(ctx); err != nil {
		return "", errors.Join(restoreErr, err)
	}
	if restoreErr != nil {
		return "", restoreErr
	}
	if err := s.reload(ctx); err != nil {
		return "", err
	}

	s.logger.Info("snapshot restored", "snapshot", src, "index", index)
	return src, nil
}

func (s *Session) checkOpen() error {
	if s.origin == nil || s.mirror == nil {
		return &engine.Error{Code: engine.ErrCodeInternal, Message: "session is closed"}
	}
	return nil
}

func withDefaults(opts Options) Options {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.FS == nil {
		opts.FS = afero.NewOsFs()
	}
	if opts.Clock == nil {
		opts.Clock = snapshot.SystemClock{}
	}
	if opts.Criterion == "" {
		opts.Criterion = locate.Latest
	}
	if opts.MirrorPath == "" {
		opts.MirrorPath = filepath.Join(os.TempDir(), DefaultMirrorName)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = engine.DefaultBatchSize
	}
	return opts
}
