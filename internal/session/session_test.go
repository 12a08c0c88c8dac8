package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/foxmirror/internal/engine"
	"github.com/roach88/foxmirror/internal/ir"
	"github.com/roach88/foxmirror/internal/locate"
	"github.com/roach88/foxmirror/internal/queryir"
	"github.com/roach88/foxmirror/internal/testutil"
)

func connect(t *testing.T, places *testutil.Places, opts Options) *Session {
	t.Helper()
	opts.OriginPath = places.Path
	if opts.MirrorPath == "" {
		opts.MirrorPath = filepath.Join(t.TempDir(), DefaultMirrorName)
	}
	if opts.Clock == nil {
		opts.Clock = testutil.NewStepClock(1700000000, time.Second)
	}
	s, err := Connect(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConnect_LoadsMirror(t *testing.T) {
	places := testutil.StandardPlaces(t)
	s := connect(t, places, Options{})

	assert.Equal(t, 10, s.Loaded().Rows)
	assert.Equal(t, places.Path, s.OriginPath())
	assert.False(t, s.ReadOnly())
	assert.NotEmpty(t, s.ID())
	assert.FileExists(t, s.MirrorPath())
}

func TestConnect_LocatesOrigin(t *testing.T) {
	profiles := t.TempDir()
	older := testutil.NewPlaces(t, filepath.Join(profiles, "old.default"))
	older.AddFolder(1, testutil.GUIDRoot, "", 0, 0)
	newer := testutil.NewPlaces(t, filepath.Join(profiles, "new.default-release"))
	newer.AddFolder(1, testutil.GUIDRoot, "", 0, 0)
	newer.AddFolder(2, testutil.GUIDMenu, "menu", 1, 0)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older.Path, past, past))

	s, err := Connect(context.Background(), Options{
		ProfilesDir: profiles,
		MirrorPath:  filepath.Join(t.TempDir(), DefaultMirrorName),
	})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, newer.Path, s.OriginPath())
	assert.Equal(t, 2, s.Loaded().Rows)
}

func TestConnect_NothingToLocate(t *testing.T) {
	_, err := Connect(context.Background(), Options{
		ProfilesDir: t.TempDir(),
		MirrorPath:  filepath.Join(t.TempDir(), DefaultMirrorName),
	})
	require.Error(t, err)
	assert.Equal(t, engine.ErrCodeLocatorFailed, engine.CodeOf(err))
	assert.ErrorIs(t, err, locate.ErrNotFound)
}

func TestConnect_LockedOrigin(t *testing.T) {
	places := testutil.StandardPlaces(t)
	release := places.HoldWriteLock()
	defer release()

	_, err := Connect(context.Background(), Options{
		OriginPath: places.Path,
		MirrorPath: filepath.Join(t.TempDir(), DefaultMirrorName),
	})
	require.Error(t, err)
	assert.True(t, engine.IsLocked(err), "got %v", err)
}

func TestConnect_NotPlaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "places.sqlite")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := Connect(context.Background(), Options{
		OriginPath: path,
		MirrorPath: filepath.Join(t.TempDir(), DefaultMirrorName),
	})
	require.Error(t, err)
	assert.Equal(t, engine.ErrCodeNotPlaces, engine.CodeOf(err))
}

func TestClose_RemovesMirror(t *testing.T) {
	places := testutil.StandardPlaces(t)
	s, err := Connect(context.Background(), Options{
		OriginPath: places.Path,
		MirrorPath: filepath.Join(t.TempDir(), DefaultMirrorName),
	})
	require.NoError(t, err)
	mirror := s.MirrorPath()
	require.FileExists(t, mirror)

	require.NoError(t, s.Close())
	assert.NoFileExists(t, mirror)
	assert.NoFileExists(t, mirror+"-wal")
	assert.NoFileExists(t, mirror+"-shm")

	// A second Close is a no-op and operations fail cleanly.
	assert.NoError(t, s.Close())
	_, err = s.Diff(context.Background())
	assert.Error(t, err)
}

func TestSession_EditDiffCommit(t *testing.T) {
	ctx := context.Background()
	places := testutil.StandardPlaces(t)
	s := connect(t, places, Options{})

	n, err := s.Update(ctx, queryir.Update{
		Filter:      queryir.Contains{Field: "url", Substring: "WIKIPEDIA.org"},
		Assignments: []queryir.Assignment{queryir.Replace{Field: "title", Old: "Wikipedia", New: "Wikikipedia"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	report, err := s.Diff(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bkwiki000001"}, report.GUIDs())

	// Nothing has reached the origin yet.
	assert.Equal(t, "Go (programming language) - Wikipedia", places.BookmarkTitle("bkwiki000001"))

	result, err := s.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.BookmarksUpdated)
	assert.Equal(t, "Go (programming language) - Wikikipedia", places.BookmarkTitle("bkwiki000001"))

	report, err = s.Diff(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Len())
}

func TestSession_ReadOnly(t *testing.T) {
	ctx := context.Background()
	s := connect(t, testutil.StandardPlaces(t), Options{ReadOnly: true})

	_, err := s.Update(ctx, queryir.Update{
		Assignments: []queryir.Assignment{queryir.Set{Field: "title", Value: ir.String("x")}},
		Filter:      queryir.Equals{Field: "guid", Value: ir.String("bkwiki000001")},
	})
	require.NoError(t, err, "the mirror stays writable")

	_, err = s.Commit(ctx)
	assert.Equal(t, engine.ErrCodeReadOnly, engine.CodeOf(err))

	_, err = s.RestoreBackup(ctx, 0)
	assert.Equal(t, engine.ErrCodeReadOnly, engine.CodeOf(err))
}

func TestSession_Duplicate(t *testing.T) {
	ctx := context.Background()
	places := testutil.StandardPlaces(t)
	s := connect(t, places, Options{Duplicate: true})

	assert.True(t, s.ReadOnly())
	assert.NotEqual(t, places.Path, s.OriginPath())
	assert.FileExists(t, s.OriginPath())
	assert.Equal(t, 10, s.Loaded().Rows)

	// The copy is a snapshot of the origin at connect time.
	places.Exec(`UPDATE moz_bookmarks SET title = 'Changed later' WHERE guid = ?`, "bkwiki000001")
	report, err := s.Diff(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Len())

	dup := filepath.Dir(s.OriginPath())
	require.NoError(t, s.Close())
	assert.NoDirExists(t, dup)
}

func TestSession_RestoreBackup(t *testing.T) {
	ctx := context.Background()
	places := testutil.StandardPlaces(t)
	s := connect(t, places, Options{})

	_, err := s.RestoreBackup(ctx, 0)
	assert.True(t, engine.IsSnapshotError(err), "got %v", err)

	_, err = s.Update(ctx, queryir.Update{
		Filter:      queryir.Equals{Field: "guid", Value: ir.String("bkmedium0001")},
		Assignments: []queryir.Assignment{queryir.Set{Field: "title", Value: ir.String("Renamed")}},
	})
	require.NoError(t, err)
	first, err := s.Commit(ctx)
	require.NoError(t, err)
	require.Equal(t, "Renamed", places.BookmarkTitle("bkmedium0001"))

	snaps, err := s.Snapshots()
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, first.Snapshot, snaps[0].Path)

	_, err = s.RestoreBackup(ctx, 1)
	assert.Equal(t, engine.ErrCodeSnapshotIndex, engine.CodeOf(err))

	src, err := s.RestoreBackup(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, first.Snapshot, src)
	assert.Equal(t, "A Medium story", places.BookmarkTitle("bkmedium0001"))

	// The mirror was reloaded from the restored origin.
	report, err := s.Diff(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Len())
}
