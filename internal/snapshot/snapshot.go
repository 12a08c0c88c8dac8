package snapshot

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
)

const (
	filePrefix = "backup-"
	fileSuffix = ".sqlite"
)

var (
	// ErrNoSnapshot is returned by Restore when no snapshot exists.
	ErrNoSnapshot = errors.New("no snapshot available")

	// ErrIndexOutOfRange is returned by Restore for an index outside the list.
	ErrIndexOutOfRange = errors.New("snapshot index out of range")
)

// Clock supplies wall-clock time for snapshot names.
type Clock interface {
	Now() time.Time
}

// SystemClock is the real wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// Snapshot is one backup file next to the origin.
type Snapshot struct {
	Path      string    `json:"path"`
	Timestamp int64     `json:"timestamp"`
	Size      int64     `json:"size"`
	ModTime   time.Time `json:"mod_time"`
}

// Time returns the snapshot's timestamp as a time.Time.
func (s Snapshot) Time() time.Time {
	return time.Unix(s.Timestamp, 0)
}

// Manager creates, lists and restores origin snapshots.
//
// Snapshots are full copies of the origin file named backup-<unix>.sqlite in
// the origin's directory. The manager never modifies an existing snapshot.
type Manager struct {
	fs    afero.Fs
	clock Clock
}

// New returns a Manager over fs. A nil fs uses the OS file system and a nil
// clock uses the system clock.
func New(fs afero.Fs, clock Clock) *Manager {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Manager{fs: fs, clock: clock}
}

// Backup copies the origin to backup-<now>.sqlite and returns the new path.
//
// If a snapshot for the current second already exists the next free second
// is used, so back-to-back commits never overwrite each other's backup.
func (m *Manager) Backup(originPath string) (string, error) {
	dir := filepath.Dir(originPath)
	ts := m.clock.Now().Unix()

	var dest string
	for {
		dest = filepath.Join(dir, Name(ts))
		exists, err := afero.Exists(m.fs, dest)
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", dest, err)
		}
		if !exists {
			break
		}
		ts++
	}

	if err := m.copyFile(originPath, dest); err != nil {
		return "", fmt.Errorf("back up %s: %w", originPath, err)
	}
	return dest, nil
}

// List returns the snapshots next to originPath, newest first.
// Files that do not match backup-<unix>.sqlite are ignored.
func (m *Manager) List(originPath string) ([]Snapshot, error) {
	dir := filepath.Dir(originPath)
	infos, err := afero.ReadDir(m.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	var out []Snapshot
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		ts, ok := ParseName(info.Name())
		if !ok {
			continue
		}
		out = append(out, Snapshot{
			Path:      filepath.Join(dir, info.Name()),
			Timestamp: ts,
			Size:      info.Size(),
			ModTime:   info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out, nil
}

// Restore copies the index-th newest snapshot over the origin file and
// returns the snapshot path. Index 0 is the most recent.
//
// The origin must not be open: its -wal, -shm and -journal siblings are
// removed so SQLite cannot replay stale pages onto the restored file.
func (m *Manager) Restore(originPath string, index int) (string, error) {
	snaps, err := m.List(originPath)
	if err != nil {
		return "", err
	}
	if len(snaps) == 0 {
		return "", fmt.Errorf("%s: %w", filepath.Dir(originPath), ErrNoSnapshot)
	}
	if index < 0 || index >= len(snaps) {
		return "", fmt.Errorf("index %d of %d snapshots: %w", index, len(snaps), ErrIndexOutOfRange)
	}

	src := snaps[index].Path
	if err := m.overwrite(src, originPath); err != nil {
		return "", fmt.Errorf("restore %s: %w", src, err)
	}
	for _, suffix := range []string{"-wal", "-shm", "-journal"} {
		if err := m.fs.Remove(originPath + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("remove stale %s: %w", suffix, err)
		}
	}
	return src, nil
}

// Name returns the snapshot file name for a Unix timestamp.
func Name(ts int64) string {
	return filePrefix + strconv.FormatInt(ts, 10) + fileSuffix
}

// ParseName extracts the timestamp from a snapshot file name.
func ParseName(name string) (int64, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	ts, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || ts < 0 {
		return 0, false
	}
	return ts, true
}

// copyFile copies src to dst through a temporary sibling and a rename, so a
// reader never observes a half-written dst.
func (m *Manager) copyFile(src, dst string) error {
	in, err := m.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := m.fs.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		m.fs.Remove(tmp)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		m.fs.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		m.fs.Remove(tmp)
		return err
	}
	return m.fs.Rename(tmp, dst)
}

// overwrite copies src into dst in place. Unlike copyFile the destination
// keeps its inode, so connections that outlive the restore see the new pages.
func (m *Manager) overwrite(src, dst string) error {
	in, err := m.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := m.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// CopyFile copies src to dst on the manager's file system.
// Used to duplicate an origin for read-only sessions.
func (m *Manager) CopyFile(src, dst string) error {
	return m.copyFile(src, dst)
}
