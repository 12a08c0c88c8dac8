package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/foxmirror/internal/snapshot"
	"github.com/roach88/foxmirror/internal/testutil"
)

// isolateConfig points HOME at an empty directory so no user config is read.
func isolateConfig(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
}

// execute runs the root command and returns what it wrote to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := run(context.Background(), cmd, opts)
	return out.String(), err
}

// against prefixes args with the flags that point the CLI at places.
func against(t *testing.T, places *testutil.Places, args ...string) []string {
	t.Helper()
	return append([]string{
		"--origin", places.Path,
		"--mirror", filepath.Join(t.TempDir(), "bookmarks.sqlite"),
	}, args...)
}

// editResponse mirrors the JSON payload of the edit commands.
type editResponse struct {
	Status string `json:"status"`
	Data   struct {
		Steps []struct {
			Kind string `json:"kind"`
			Rows int64  `json:"rows"`
		} `json:"steps"`
		Diff struct {
			Changes []struct {
				GUID   string `json:"guid"`
				Reason string `json:"reason"`
				Fields []struct {
					Table  string `json:"table"`
					Field  string `json:"field"`
					Origin any    `json:"origin"`
					Mirror any    `json:"mirror"`
				} `json:"fields"`
			} `json:"changes"`
		} `json:"diff"`
		Commit *struct {
			Snapshot         string `json:"snapshot"`
			Changed          int    `json:"changed"`
			BookmarksUpdated int    `json:"bookmarks_updated"`
			PlacesUpdated    int    `json:"places_updated"`
		} `json:"commit"`
	} `json:"data"`
	Error *CLIError `json:"error"`
}

func decodeEdit(t *testing.T, out string) editResponse {
	t.Helper()
	var resp editResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func TestList_JSONGolden(t *testing.T) {
	isolateConfig(t)
	places := testutil.StandardPlaces(t)

	out, err := execute(t, against(t, places, "--format", "json", "list", "--contains", "url=github.com")...)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "list_github", []byte(out))
}

func TestList_Folders(t *testing.T) {
	isolateConfig(t)
	places := testutil.StandardPlaces(t)

	out, err := execute(t, against(t, places, "--format", "json", "list", "--folders", "--fields", "guid,title", "--where", "parent=2")...)
	require.NoError(t, err)

	var resp struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "fldreading01", resp.Data[0]["guid"])
	assert.Equal(t, "Reading", resp.Data[0]["title"])
}

func TestList_Text(t *testing.T) {
	isolateConfig(t)
	places := testutil.StandardPlaces(t)

	out, err := execute(t, against(t, places, "list", "--contains", "title=medium")...)
	require.NoError(t, err)
	assert.Contains(t, out, "bkmedium0001")
	assert.NotContains(t, out, "bkgithub0001")
}

func TestList_InvalidFilter(t *testing.T) {
	isolateConfig(t)
	places := testutil.StandardPlaces(t)

	_, err := execute(t, against(t, places, "list", "--where", "no-equals-sign")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.True(t, Reported(err))
}

func TestList_UnknownField(t *testing.T) {
	isolateConfig(t)
	places := testutil.StandardPlaces(t)

	out, err := execute(t, against(t, places, "--format", "json", "list", "--where", "colour=red")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "INVALID_QUERY")
}

func TestUpdate_ShowsDiffWithoutCommit(t *testing.T) {
	isolateConfig(t)
	places := testutil.StandardPlaces(t)

	out, err := execute(t, against(t, places, "--format", "json",
		"update", "--where", "guid=bkmedium0001", "--set", "title=Read later")...)
	require.NoError(t, err)

	resp := decodeEdit(t, out)
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Steps, 1)
	assert.Equal(t, "update", resp.Data.Steps[0].Kind)
	assert.Equal(t, int64(1), resp.Data.Steps[0].Rows)

	require.Len(t, resp.Data.Diff.Changes, 1)
	change := resp.Data.Diff.Changes[0]
	assert.Equal(t, "bkmedium0001", change.GUID)
	assert.Equal(t, "modified", change.Reason)
	require.Len(t, change.Fields, 1)
	assert.Equal(t, "moz_bookmarks", change.Fields[0].Table)
	assert.Equal(t, "title", change.Fields[0].Field)
	assert.Equal(t, "A Medium story", change.Fields[0].Origin)
	assert.Equal(t, "Read later", change.Fields[0].Mirror)
	assert.Nil(t, resp.Data.Commit)

	assert.Equal(t, "A Medium story", places.BookmarkTitle("bkmedium0001"))
}

func TestUpdate_Commit(t *testing.T) {
	isolateConfig(t)
	places := testutil.StandardPlaces(t)

	out, err := execute(t, against(t, places, "--format", "json",
		"update", "--where", "guid=bkmedium0001", "--set", "title=Read later", "--commit")...)
	require.NoError(t, err)

	resp := decodeEdit(t, out)
	require.NotNil(t, resp.Data.Commit)
	assert.Equal(t, 1, resp.Data.Commit.Changed)
	assert.Equal(t, 1, resp.Data.Commit.BookmarksUpdated)
	assert.Equal(t, filepath.Dir(places.Path), filepath.Dir(resp.Data.Commit.Snapshot))
	assert.FileExists(t, resp.Data.Commit.Snapshot)

	assert.Equal(t, "Read later", places.BookmarkTitle("bkmedium0001"))
}

func TestUpdate_RequiresSet(t *testing.T) {
	isolateConfig(t)
	places := testutil.StandardPlaces(t)

	_, err := execute(t, against(t, places, "update", "--where", "guid=bkmedium0001")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReplace_Commit(t *testing.T) {
	isolateConfig(t)
	places := testutil.StandardPlaces(t)

	out, err := execute(t, against(t, places,
		"replace", "--contains", "url=wikipedia.org", "--field", "url", "--old", "en.wikipedia", "--new", "de.wikipedia", "--commit")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Committed 1 rows")
	assert.Contains(t, out, "Snapshot: ")

	assert.Equal(t, "https://de.wikipedia.org/wiki/Go_(programming_language)", places.PlaceURL("placewiki001"))
}

func TestReplace_MissingFlag(t *testing.T) {
	isolateConfig(t)
	places := testutil.StandardPlaces(t)

	_, err := execute(t, against(t, places, "replace", "--old", "a")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field")
}

func TestMove_Commit(t *testing.T) {
	isolateConfig(t)
	places := testutil.StandardPlaces(t)

	_, err := execute(t, against(t, places, "move", "--contains", "url=github.com", "--to", testutil.GUIDToolbar, "--commit")...)
	require.NoError(t, err)

	assert.Equal(t, int64(3), places.Value(`SELECT parent FROM moz_bookmarks WHERE guid = 'bkgithub0001'`))
	assert.Equal(t, int64(1), places.Value(`SELECT position FROM moz_bookmarks WHERE guid = 'bkgithub0001'`))
}

func TestApply_Script(t *testing.T) {
	isolateConfig(t)
	places := testutil.StandardPlaces(t)

	path := filepath.Join(t.TempDir(), "edit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
description: tidy titles
steps:
  - replace:
      contains: {url: wikipedia.org}
      field: title
      old: " - Wikipedia"
      new: ""
  - update:
      where: {guid: bkgithub0001}
      set: {title: Code}
`), 0o644))

	out, err := execute(t, against(t, places, "--format", "json", "apply", path)...)
	require.NoError(t, err)

	resp := decodeEdit(t, out)
	require.Len(t, resp.Data.Steps, 2)
	require.Len(t, resp.Data.Diff.Changes, 2)
	assert.Equal(t, "bkwiki000001", resp.Data.Diff.Changes[0].GUID)
	assert.Equal(t, "bkgithub0001", resp.Data.Diff.Changes[1].GUID)

	assert.Equal(t, "Go (programming language) - Wikipedia", places.BookmarkTitle("bkwiki000001"))
}

func TestApply_BadScript(t *testing.T) {
	isolateConfig(t)
	places := testutil.StandardPlaces(t)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("steps:\n  - rename: {}\n"), 0o644))

	_, err := execute(t, against(t, places, "apply", path)...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestDiff_RoundTripIsClean(t *testing.T) {
	isolateConfig(t)
	places := testutil.StandardPlaces(t)

	out, err := execute(t, against(t, places, "diff")...)
	require.NoError(t, err)
	assert.Contains(t, out, "No changes")
}

func TestCommit_ReadOnly(t *testing.T) {
	isolateConfig(t)
	places := testutil.StandardPlaces(t)

	path := filepath.Join(t.TempDir(), "edit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("steps:\n  - update:\n      where: {guid: bkgithub0001}\n      set: {title: Code}\n"), 0o644))

	out, err := execute(t, against(t, places, "--read-only", "--format", "json", "commit", path)...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "READ_ONLY")
	assert.Equal(t, "GitHub", places.BookmarkTitle("bkgithub0001"))
}

func TestSnapshotsAndRestore(t *testing.T) {
	isolateConfig(t)
	places := testutil.StandardPlaces(t)

	out, err := execute(t, against(t, places, "snapshots")...)
	require.NoError(t, err)
	assert.Contains(t, out, "No snapshots")

	_, err = execute(t, against(t, places, "update", "--where", "guid=bkgithub0001", "--set", "title=Code", "--commit")...)
	require.NoError(t, err)
	require.Equal(t, "Code", places.BookmarkTitle("bkgithub0001"))

	out, err = execute(t, against(t, places, "--format", "json", "snapshots")...)
	require.NoError(t, err)
	var listed struct {
		Data []struct {
			Index int    `json:"index"`
			Path  string `json:"path"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed.Data, 1)
	assert.Equal(t, 0, listed.Data[0].Index)
	_, ok := snapshot.ParseName(filepath.Base(listed.Data[0].Path))
	assert.True(t, ok)

	out, err = execute(t, against(t, places, "restore")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Restored ")
	assert.Equal(t, "GitHub", places.BookmarkTitle("bkgithub0001"))
}

func TestRestore_IndexOutOfRange(t *testing.T) {
	isolateConfig(t)
	places := testutil.StandardPlaces(t)

	out, err := execute(t, against(t, places, "--format", "json", "restore", "4")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "NO_SNAPSHOT")
}

func TestRestore_BadIndex(t *testing.T) {
	isolateConfig(t)
	places := testutil.StandardPlaces(t)

	_, err := execute(t, against(t, places, "restore", "latest")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLocate(t *testing.T) {
	isolateConfig(t)
	root := t.TempDir()
	places := testutil.NewPlaces(t, filepath.Join(root, "abc.default-release"))

	out, err := execute(t, "--profiles-dir", root, "--format", "json", "locate")
	require.NoError(t, err)

	var resp struct {
		Data struct {
			Criterion string `json:"criterion"`
			Selected  struct {
				Path string `json:"path"`
			} `json:"selected"`
			Candidates []any `json:"candidates"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "latest", resp.Data.Criterion)
	assert.Equal(t, places.Path, resp.Data.Selected.Path)
	assert.Len(t, resp.Data.Candidates, 1)
}

func TestLocate_Empty(t *testing.T) {
	isolateConfig(t)

	out, err := execute(t, "--profiles-dir", t.TempDir(), "locate")
	require.NoError(t, err)
	assert.Contains(t, out, "No places.sqlite found")
}

func TestConfigFileSetsOrigin(t *testing.T) {
	isolateConfig(t)
	places := testutil.StandardPlaces(t)

	cfg := filepath.Join(t.TempDir(), "foxmirror.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(
		"origin: "+places.Path+"\nmirror: "+filepath.Join(t.TempDir(), "m.sqlite")+"\nformat: json\n"), 0o644))

	out, err := execute(t, "--config", cfg, "list", "--where", "guid=bkgithub0001")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "ok"`)
	assert.Contains(t, out, "bkgithub0001")
}
