package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/roach88/foxmirror/internal/schema"
	"github.com/roach88/foxmirror/internal/snapshot"
	"github.com/roach88/foxmirror/internal/store"
	"github.com/roach88/foxmirror/internal/testutil"
)

// testEnv is an origin fixture, its opened stores and an engine over them.
type testEnv struct {
	places    *testutil.Places
	origin    *store.Store
	mirror    *store.Store
	engine    *Engine
	snapshots *snapshot.Manager
}

type envOptions struct {
	translator schema.Options
	readOnly   bool
	batchSize  int
}

func newEnv(t *testing.T, places *testutil.Places, opts envOptions) *testEnv {
	t.Helper()
	ctx := context.Background()

	origin, err := store.OpenOrigin(ctx, places.Path, store.OriginOptions{ReadOnly: opts.readOnly})
	require.NoError(t, err)
	t.Cleanup(func() { origin.Close() })

	mirror, err := store.OpenMirror(ctx, filepath.Join(t.TempDir(), "bookmarks.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { mirror.Close() })

	snaps := snapshot.New(afero.NewOsFs(), testutil.NewStepClock(1700000000, time.Second))
	e := New(schema.New(opts.translator), snaps, WithBatchSize(opts.batchSize))

	return &testEnv{places: places, origin: origin, mirror: mirror, engine: e, snapshots: snaps}
}

// loaded returns an env over the standard fixture with the mirror populated.
func loaded(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	env := newEnv(t, testutil.StandardPlaces(t), opts)
	_, err := env.engine.Load(context.Background(), env.origin, env.mirror)
	require.NoError(t, err)
	return env
}

// mutate runs an UPDATE against the mirror.
func (env *testEnv) mutate(t *testing.T, query string, args ...any) {
	t.Helper()
	n, err := env.mirror.Exec(context.Background(), query, args...)
	require.NoError(t, err)
	require.Positive(t, n, "mirror update matched no rows: %s", query)
}

// mirrorValue reads one column of one mirror row.
func (env *testEnv) mirrorValue(t *testing.T, column, guid string) any {
	t.Helper()
	var v any
	err := env.mirror.QueryRow(context.Background(),
		"SELECT "+schema.QuoteIdent(column)+" FROM bookmark WHERE guid = ?", guid).Scan(&v)
	require.NoError(t, err)
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// sharedPlace returns a loaded env whose origin carries a second bookmark,
// bkgithub0002 on the toolbar, pointing at the GitHub place.
func sharedPlace(t *testing.T) *testEnv {
	t.Helper()
	places := testutil.StandardPlaces(t)
	places.AddBookmark(testutil.Bookmark{ID: 11, Type: 1, PlaceID: 3, Parent: 3, Position: 1, Title: "GitHub (toolbar)", GUID: "bkgithub0002"})

	env := newEnv(t, places, envOptions{})
	_, err := env.engine.Load(context.Background(), env.origin, env.mirror)
	require.NoError(t, err)
	return env
}
