package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/foxmirror/internal/store"
	"github.com/roach88/foxmirror/internal/testutil"
)

func sampleTrace() []TraceEvent {
	r := NewResult()
	r.AddEvent(EventConnect, map[string]any{"rows": 10, "batches": 1})
	r.AddEvent(EventStep, map[string]any{"index": 0, "kind": "replace", "rows": int64(1)})
	r.AddEvent(EventDiff, map[string]any{"changed": 1, "guids": []string{"bkwiki000001"}})
	r.AddEvent(EventCommit, map[string]any{"changed": 1, "snapshot": "backup-1700000000.sqlite"})
	return r.Trace
}

func TestAssertTraceContains_Found(t *testing.T) {
	err := assertTraceContains(sampleTrace(), Assertion{
		Type:   AssertTraceContains,
		Action: EventStep,
		Args:   map[string]any{"kind": "replace", "rows": 1},
	})
	assert.NoError(t, err)
}

func TestAssertTraceContains_ListDetails(t *testing.T) {
	// YAML decodes lists as []any; the trace holds []string.
	err := assertTraceContains(sampleTrace(), Assertion{
		Type:   AssertTraceContains,
		Action: EventDiff,
		Args:   map[string]any{"guids": []any{"bkwiki000001"}},
	})
	assert.NoError(t, err)
}

func TestAssertTraceContains_NotFound(t *testing.T) {
	err := assertTraceContains(sampleTrace(), Assertion{
		Type:   AssertTraceContains,
		Action: EventRestore,
	})
	require.Error(t, err)

	assertErr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Equal(t, AssertTraceContains, assertErr.Type)
	assert.Contains(t, assertErr.Expected, EventRestore)
	assert.Equal(t, "not found in trace", assertErr.Actual)
	assert.Contains(t, assertErr.Error(), "Full trace:")
}

func TestAssertTraceContains_WrongDetails(t *testing.T) {
	err := assertTraceContains(sampleTrace(), Assertion{
		Type:   AssertTraceContains,
		Action: EventCommit,
		Args:   map[string]any{"changed": 2},
	})
	require.Error(t, err)
}

func TestAssertTraceContains_MissingDetail(t *testing.T) {
	err := assertTraceContains(sampleTrace(), Assertion{
		Type:   AssertTraceContains,
		Action: EventCommit,
		Args:   map[string]any{"unmatched": []any{"x"}},
	})
	require.Error(t, err)
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Actions: []string{EventConnect, EventDiff, EventCommit}}))
	assert.NoError(t, assertTraceOrder(trace, Assertion{Actions: []string{EventConnect, EventCommit}}), "gaps are allowed")

	err := assertTraceOrder(trace, Assertion{Actions: []string{EventCommit, EventDiff}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "should be before")

	err = assertTraceOrder(trace, Assertion{Actions: []string{EventConnect, EventRestore}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing event: restore")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Action: EventStep, Count: 1}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Action: EventError, Count: 0}))

	err := assertTraceCount(trace, Assertion{Action: EventStep, Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 occurrences")
}

func TestBuildWhereClause(t *testing.T) {
	sql, args, err := buildWhereClause(map[string]any{"title": nil, "guid": "bkwiki000001", "parent": 3})
	require.NoError(t, err)
	assert.Equal(t, "guid = ? AND parent = ? AND title IS NULL", sql)
	assert.Equal(t, []any{"bkwiki000001", int64(3)}, args)

	sql, args, err = buildWhereClause(nil)
	require.NoError(t, err)
	assert.Empty(t, sql)
	assert.Nil(t, args)

	_, _, err = buildWhereClause(map[string]any{"guid; DROP TABLE x": 1})
	require.Error(t, err)
}

func TestFormatWhereClause(t *testing.T) {
	assert.Equal(t, "(no conditions)", formatWhereClause(nil))
	assert.Equal(t, "a=1 AND b=x", formatWhereClause(map[string]any{"b": "x", "a": 1}))
}

func openStandard(t *testing.T) *store.Store {
	t.Helper()
	places := testutil.StandardPlaces(t)
	st, err := store.OpenOrigin(context.Background(), places.Path, store.OriginOptions{ReadOnly: true})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestAssertFinalState(t *testing.T) {
	st := openStandard(t)
	ctx := context.Background()

	t.Run("match", func(t *testing.T) {
		err := assertFinalState(ctx, st, Assertion{
			Table:  "moz_bookmarks",
			Where:  map[string]any{"guid": "bkgithub0001"},
			Expect: map[string]any{"title": "GitHub", "parent": 9, "keyword_id": nil},
		})
		assert.NoError(t, err)
	})

	t.Run("value mismatch", func(t *testing.T) {
		err := assertFinalState(ctx, st, Assertion{
			Table:  "moz_bookmarks",
			Where:  map[string]any{"guid": "bkgithub0001"},
			Expect: map[string]any{"title": "Code"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `field "title" = Code`)
	})

	t.Run("type sensitive", func(t *testing.T) {
		err := assertFinalState(ctx, st, Assertion{
			Table:  "moz_bookmarks",
			Where:  map[string]any{"guid": "bkgithub0001"},
			Expect: map[string]any{"parent": "9"},
		})
		require.Error(t, err)
	})

	t.Run("row not found", func(t *testing.T) {
		err := assertFinalState(ctx, st, Assertion{
			Table:  "moz_bookmarks",
			Where:  map[string]any{"guid": "nope"},
			Expect: map[string]any{"title": "x"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "row not found")
	})

	t.Run("ambiguous", func(t *testing.T) {
		err := assertFinalState(ctx, st, Assertion{
			Table:  "moz_bookmarks",
			Where:  map[string]any{"type": 2},
			Expect: map[string]any{"title": "x"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "multiple rows matched")
	})

	t.Run("unknown column", func(t *testing.T) {
		err := assertFinalState(ctx, st, Assertion{
			Table:  "moz_bookmarks",
			Where:  map[string]any{"guid": "bkgithub0001"},
			Expect: map[string]any{"colour": "red"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `field "colour" to exist`)
	})

	t.Run("invalid table", func(t *testing.T) {
		err := assertFinalState(ctx, st, Assertion{
			Table:  "moz_bookmarks; --",
			Expect: map[string]any{"title": "x"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid table name")
	})
}

func TestEvaluateAssertions(t *testing.T) {
	result := &Result{Trace: sampleTrace()}
	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceCount, Action: EventDiff, Count: 1},
		{Type: AssertTraceCount, Action: EventDiff, Count: 3},
		{Type: AssertFinalState, Table: "moz_bookmarks", Expect: map[string]any{"title": "x"}},
		{Type: "bogus"},
	}, nil)

	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "3 occurrences of diff")
	assert.Contains(t, errs[1], "final_state requires database context")
	assert.Contains(t, errs[2], `unknown assertion type "bogus"`)
}
