package snapshot

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/foxmirror/internal/testutil"
)

const originPath = "/profiles/abc.default/places.sqlite"

func newFS(t *testing.T, content string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, originPath, []byte(content), 0o644))
	return fs
}

func TestBackup_CopiesOriginNextToIt(t *testing.T) {
	fs := newFS(t, "origin-v1")
	m := New(fs, testutil.NewStepClock(1700000000, time.Second))

	path, err := m.Backup(originPath)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(filepath.Dir(originPath), "backup-1700000000.sqlite"), path)
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, "origin-v1", string(data))

	tmp, err := afero.Exists(fs, path+".tmp")
	require.NoError(t, err)
	assert.False(t, tmp, "temporary copy should be renamed away")
}

func TestBackup_SameSecondGetsDistinctNames(t *testing.T) {
	fs := newFS(t, "origin")
	m := New(fs, testutil.NewStepClock(1700000000, 0))

	first, err := m.Backup(originPath)
	require.NoError(t, err)
	second, err := m.Backup(originPath)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, "backup-1700000001.sqlite", filepath.Base(second))

	snaps, err := m.List(originPath)
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
}

func TestBackup_MissingOrigin(t *testing.T) {
	m := New(afero.NewMemMapFs(), testutil.NewStepClock(1700000000, time.Second))

	_, err := m.Backup(originPath)
	assert.Error(t, err)
}

func TestList_NewestFirstIgnoresOtherFiles(t *testing.T) {
	fs := newFS(t, "origin")
	dir := filepath.Dir(originPath)
	for _, name := range []string{
		"backup-100.sqlite",
		"backup-300.sqlite",
		"backup-200.sqlite",
		"backup-abc.sqlite",
		"backup-400.sqlite.tmp",
		"places.sqlite-wal",
		"favicons.sqlite",
	} {
		require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, name), []byte(name), 0o644))
	}

	m := New(fs, nil)
	snaps, err := m.List(originPath)
	require.NoError(t, err)

	require.Len(t, snaps, 3)
	assert.Equal(t, int64(300), snaps[0].Timestamp)
	assert.Equal(t, int64(200), snaps[1].Timestamp)
	assert.Equal(t, int64(100), snaps[2].Timestamp)
	assert.Equal(t, int64(len("backup-300.sqlite")), snaps[0].Size)
	assert.Equal(t, time.Unix(300, 0), snaps[0].Time())
}

func TestList_Empty(t *testing.T) {
	m := New(newFS(t, "origin"), nil)

	snaps, err := m.List(originPath)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestRestore_ByIndex(t *testing.T) {
	fs := newFS(t, "current")
	dir := filepath.Dir(originPath)
	for _, ts := range []int64{100, 300, 200} {
		require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, Name(ts)), []byte(Name(ts)), 0o644))
	}
	m := New(fs, nil)

	tests := []struct {
		index int
		want  string
	}{
		{index: 0, want: "backup-300.sqlite"},
		{index: 1, want: "backup-200.sqlite"},
		{index: 2, want: "backup-100.sqlite"},
	}
	for _, tt := range tests {
		src, err := m.Restore(originPath, tt.index)
		require.NoError(t, err)
		assert.Equal(t, tt.want, filepath.Base(src))

		data, err := afero.ReadFile(fs, originPath)
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(data))
	}

	// Restoring never consumes a snapshot.
	snaps, err := m.List(originPath)
	require.NoError(t, err)
	assert.Len(t, snaps, 3)
}

func TestRestore_IndexOutOfRange(t *testing.T) {
	fs := newFS(t, "current")
	require.NoError(t, afero.WriteFile(fs, filepath.Join(filepath.Dir(originPath), Name(100)), []byte("old"), 0o644))
	m := New(fs, nil)

	for _, index := range []int{1, 3, -1} {
		_, err := m.Restore(originPath, index)
		assert.True(t, errors.Is(err, ErrIndexOutOfRange), "index %d: %v", index, err)
	}

	data, err := afero.ReadFile(fs, originPath)
	require.NoError(t, err)
	assert.Equal(t, "current", string(data), "origin must be untouched")
}

func TestRestore_NoSnapshot(t *testing.T) {
	m := New(newFS(t, "current"), nil)

	_, err := m.Restore(originPath, 0)
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestRestore_RemovesStaleSidecars(t *testing.T) {
	fs := newFS(t, "current")
	require.NoError(t, afero.WriteFile(fs, filepath.Join(filepath.Dir(originPath), Name(100)), []byte("old"), 0o644))
	require.NoError(t, afero.WriteFile(fs, originPath+"-wal", []byte("wal"), 0o644))
	require.NoError(t, afero.WriteFile(fs, originPath+"-shm", []byte("shm"), 0o644))
	m := New(fs, nil)

	_, err := m.Restore(originPath, 0)
	require.NoError(t, err)

	for _, suffix := range []string{"-wal", "-shm"} {
		exists, err := afero.Exists(fs, originPath+suffix)
		require.NoError(t, err)
		assert.False(t, exists, suffix)
	}
}

func TestBackupThenRestore_RoundTrip(t *testing.T) {
	fs := newFS(t, "before")
	m := New(fs, testutil.NewStepClock(1700000000, time.Second))

	_, err := m.Backup(originPath)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, originPath, []byte("after"), 0o644))

	_, err = m.Restore(originPath, 0)
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, originPath)
	require.NoError(t, err)
	assert.Equal(t, "before", string(data))
}

func TestParseName(t *testing.T) {
	tests := []struct {
		name string
		ts   int64
		ok   bool
	}{
		{"backup-1700000000.sqlite", 1700000000, true},
		{"backup-0.sqlite", 0, true},
		{"backup-.sqlite", 0, false},
		{"backup--5.sqlite", 0, false},
		{"backup-12.sqlite-wal", 0, false},
		{"places.sqlite", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, ok := ParseName(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.ts, ts)
		})
	}
}
