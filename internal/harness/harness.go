package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/foxmirror/internal/engine"
	"github.com/roach88/foxmirror/internal/script"
	"github.com/roach88/foxmirror/internal/session"
	"github.com/roach88/foxmirror/internal/store"
	"github.com/roach88/foxmirror/internal/testutil"
)

// SnapshotEpoch is the Unix second the harness clock starts at, so the first
// snapshot of every scenario is backup-1700000000.sqlite.
const SnapshotEpoch = 1700000000

// Harness is the test execution engine.
// It runs one scenario against a fresh fixture with a deterministic clock.
type Harness struct {
	places *testutil.Places
	clock  *testutil.StepClock
	logger *slog.Logger
	result *Result
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against its own places.sqlite in a test temp directory.
//
// Execution flow:
// 1. Build the fixture and run setup SQL
// 2. Connect a session (loads the mirror)
// 3. Apply the script steps
// 4. Diff, then commit when asked
// 5. Restore a snapshot when asked
// 6. Close the session and evaluate assertions against the origin
//
// The first failing stage is recorded as an error event and ends the run.
// It fails the result unless its code equals ExpectError.
func Run(tb testing.TB, scenario *Scenario) (*Result, error) {
	tb.Helper()

	var places *testutil.Places
	switch scenario.Fixture {
	case FixtureEmpty:
		places = testutil.NewPlaces(tb, tb.TempDir())
	default:
		places = testutil.StandardPlaces(tb)
	}
	for _, stmt := range scenario.Setup {
		places.Exec(stmt)
	}

	h := &Harness{
		places: places,
		clock:  testutil.NewStepClock(SnapshotEpoch, time.Second),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
		result: NewResult(),
	}

	ctx := context.Background()
	mirrorPath := filepath.Join(tb.TempDir(), session.DefaultMirrorName)
	failure := h.execute(ctx, scenario, mirrorPath)

	switch {
	case failure != nil && scenario.ExpectError == "":
		h.result.AddError(fmt.Sprintf("unexpected error: %v", failure))
	case failure == nil && scenario.ExpectError != "":
		h.result.AddError(fmt.Sprintf("expected error %s, run succeeded", scenario.ExpectError))
	case failure != nil && string(engine.CodeOf(failure)) != scenario.ExpectError:
		h.result.AddError(fmt.Sprintf("expected error %s, got %s: %v", scenario.ExpectError, engine.CodeOf(failure), failure))
	}

	origin, err := store.OpenOrigin(ctx, places.Path, store.OriginOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to reopen origin: %w", err)
	}
	defer origin.Close()

	actx := &AssertionContext{
		Store: origin,
		Ctx:   ctx,
	}
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(msg)
	}

	return h.result, nil
}

// execute runs every stage and returns the error that stopped the run.
func (h *Harness) execute(ctx context.Context, scenario *Scenario, mirrorPath string) error {
	sess, err := session.Connect(ctx, session.Options{
		OriginPath:    h.places.Path,
		MirrorPath:    mirrorPath,
		BatchSize:     scenario.Options.BatchSize,
		WriteFrecency: scenario.Options.WriteFrecency,
		ReadOnly:      scenario.Options.ReadOnly,
		Logger:        h.logger,
		Clock:         h.clock,
	})
	if err != nil {
		return h.fail("connect", err)
	}
	defer sess.Close()

	loaded := sess.Loaded()
	h.result.AddEvent(EventConnect, map[string]any{
		"rows":          loaded.Rows,
		"batches":       loaded.Batches,
		"empty_batches": loaded.EmptyBatches,
		"max_id":        loaded.MaxID,
	})

	if len(scenario.Steps) > 0 {
		sc := &script.Script{Steps: scenario.Steps}
		steps, err := sc.Apply(ctx, sess)
		for _, st := range steps {
			h.result.AddEvent(EventStep, map[string]any{
				"index": st.Index,
				"kind":  st.Kind,
				"rows":  st.Rows,
			})
		}
		if err != nil {
			return h.fail("steps", err)
		}
	}

	report, err := sess.Diff(ctx)
	if err != nil {
		return h.fail("diff", err)
	}
	h.result.AddEvent(EventDiff, map[string]any{
		"changed": report.Len(),
		"guids":   report.GUIDs(),
	})

	if scenario.Commit {
		res, err := sess.Commit(ctx)
		if err != nil {
			return h.fail("commit", err)
		}
		details := map[string]any{
			"changed":           res.Changed,
			"bookmarks_updated": res.BookmarksUpdated,
			"places_updated":    res.PlacesUpdated,
			"snapshot":          filepath.Base(res.Snapshot),
		}
		if len(res.Unmatched) > 0 {
			details["unmatched"] = res.Unmatched
		}
		h.result.AddEvent(EventCommit, details)
	}

	if scenario.Restore != nil {
		src, err := sess.RestoreBackup(ctx, *scenario.Restore)
		if err != nil {
			return h.fail("restore", err)
		}
		h.result.AddEvent(EventRestore, map[string]any{
			"index":    *scenario.Restore,
			"snapshot": filepath.Base(src),
			"rows":     sess.Loaded().Rows,
		})
	}

	return nil
}

// fail records an error event for stage and returns err.
func (h *Harness) fail(stage string, err error) error {
	details := map[string]any{
		"stage": stage,
		"code":  string(engine.CodeOf(err)),
	}
	var ee *engine.Error
	if errors.As(err, &ee) && ee.GUID != "" {
		details["guid"] = ee.GUID
	}
	h.result.AddEvent(EventError, details)
	h.logger.Info("scenario stage failed", "stage", stage, "error", err)
	return err
}
