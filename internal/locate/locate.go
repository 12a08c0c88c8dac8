// Package locate finds Firefox Places databases under a profiles directory.
package locate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// FileName is the Places database file name inside a profile.
const FileName = "places.sqlite"

// ErrNotFound is returned when no Places database exists under the search root.
var ErrNotFound = errors.New("no places database found")

// Criterion picks one database when a root holds several profiles.
type Criterion string

const (
	// Latest picks the most recently modified database.
	Latest Criterion = "latest"

	// Largest picks the biggest database.
	Largest Criterion = "largest"
)

// ParseCriterion converts a flag or config value to a Criterion.
// The empty string means Latest.
func ParseCriterion(s string) (Criterion, error) {
	switch c := Criterion(strings.ToLower(strings.TrimSpace(s))); c {
	case "", Latest:
		return Latest, nil
	case Largest:
		return Largest, nil
	default:
		return "", fmt.Errorf("unknown criterion %q (want latest or largest)", s)
	}
}

// Candidate is one places.sqlite found under the search root.
type Candidate struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// ProfilesDir returns the default Firefox profiles directory for this OS.
func ProfilesDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", errors.New("APPDATA is not set")
		}
		return filepath.Join(appData, "Mozilla", "Firefox", "Profiles"), nil
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", "Firefox", "Profiles"), nil
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".mozilla", "firefox"), nil
	}
}

// Candidates walks root and returns every places.sqlite below it, sorted by path.
// A missing root yields no candidates rather than an error.
func Candidates(fsys afero.Fs, root string) ([]Candidate, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	var out []Candidate
	err := afero.Walk(fsys, root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			// Unreadable profile directories are skipped, not fatal.
			if errors.Is(err, fs.ErrPermission) {
				if info != nil && info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			return err
		}
		if info.IsDir() || info.Name() != FileName {
			return nil
		}
		out = append(out, Candidate{Path: path, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Locate returns the candidate under root chosen by criterion.
// Ties keep the lexically first path.
func Locate(fsys afero.Fs, root string, criterion Criterion) (Candidate, error) {
	candidates, err := Candidates(fsys, root)
	if err != nil {
		return Candidate{}, err
	}
	if len(candidates) == 0 {
		return Candidate{}, fmt.Errorf("%s under %s: %w", FileName, root, ErrNotFound)
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		switch criterion {
		case Largest:
			if c.Size > best.Size {
				best = c
			}
		default:
			if c.ModTime.After(best.ModTime) {
				best = c
			}
		}
	}
	return best, nil
}
