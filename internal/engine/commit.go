package engine

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/foxmirror/internal/ir"
	"github.com/roach88/foxmirror/internal/schema"
	"github.com/roach88/foxmirror/internal/store"
)

// CommitResult summarizes a commit.
type CommitResult struct {
	// Snapshot is the backup taken before any write.
	Snapshot string `json:"snapshot"`

	// Changed is the number of guids the diff reported.
	Changed int `json:"changed"`

	// BookmarksUpdated and PlacesUpdated count origin rows written.
	BookmarksUpdated int `json:"bookmarks_updated"`
	PlacesUpdated    int `json:"places_updated"`

	// Unmatched lists changed guids with no origin row to update.
	Unmatched []string `json:"unmatched,omitempty"`

	// Changes is the diff the commit applied.
	Changes []Change `json:"changes,omitempty"`
}

// Commit writes every changed mirror row back to the origin.
//
// Order of operations:
//  1. refuse if the origin is read-only
//  2. checkpoint the origin WAL and back the file up
//  3. diff mirror against origin
//  4. in one origin transaction, per changed guid:
//     UPDATE moz_bookmarks ... WHERE guid = ?, then, when that matched a row
//     and the row has a place, UPDATE moz_places ... WHERE guid = <place guid>
//
// Any failure in step 4 rolls back every write of the commit. The snapshot
// from step 2 is kept either way. After the transaction commits, every
// mirror row sharing a written place receives the written place columns, so
// bookmarks on one place stay in agreement with the origin.
func (e *Engine) Commit(ctx context.Context, origin, mirror *store.Store) (*CommitResult, error) {
	if origin.ReadOnly() {
		return nil, &Error{Code: ErrCodeReadOnly, Message: "session was opened read-only", Err: store.ErrReadOnly}
	}

	if err := origin.Checkpoint(ctx); err != nil {
		return nil, Wrap(ErrCodeSnapshotFailed, "failed to checkpoint origin", err)
	}
	snap, err := e.snapshots.Backup(origin.Path())
	if err != nil {
		return nil, Wrap(ErrCodeSnapshotFailed, "failed to back up origin", err)
	}
	e.logger.Info("origin backed up", "snapshot", snap)

	report, err := e.Diff(ctx, origin, mirror)
	if err != nil {
		return nil, err
	}

	result := &CommitResult{
		Snapshot: snap,
		Changed:  report.Len(),
		Changes:  report.Changes,
	}
	if report.Len() == 0 {
		e.logger.Info("nothing to commit")
		return result, nil
	}

	bk := e.translator.Separate(schema.TableBookmarks)
	pl := e.translator.Separate(schema.TablePlaces)

	written := make(map[string]ir.Tuple)
	var failedGUID string
	err = origin.WithTx(ctx, func(tx *sql.Tx) error {
		bkStmt, err := tx.PrepareContext(ctx, updateStatement(schema.TableBookmarks, bk))
		if err != nil {
			return fmt.Errorf("prepare bookmark update: %w", err)
		}
		defer bkStmt.Close()

		var plStmt *sql.Stmt
		if len(pl) > 0 {
			plStmt, err = tx.PrepareContext(ctx, updateStatement(schema.TablePlaces, pl))
			if err != nil {
				return fmt.Errorf("prepare place update: %w", err)
			}
			defer plStmt.Close()
		}

		for _, c := range report.Changes {
			failedGUID = c.GUID

			n, err := execUpdate(ctx, bkStmt, c.Mirror[schema.TableBookmarks], c.GUID)
			if err != nil {
				return fmt.Errorf("update bookmark: %w", err)
			}
			if n == 0 {
				result.Unmatched = append(result.Unmatched, c.GUID)
				e.logger.Warn("no origin row for guid", "guid", c.GUID)
				continue
			}
			result.BookmarksUpdated += int(n)

			if plStmt == nil || ir.IsNull(c.PlaceID) || ir.IsNull(c.PlaceGUID) {
				continue
			}
			placeGUID := ir.Format(c.PlaceGUID)
			n, err = execUpdate(ctx, plStmt, c.Mirror[schema.TablePlaces], placeGUID)
			if err != nil {
				return fmt.Errorf("update place %s: %w", placeGUID, err)
			}
			result.PlacesUpdated += int(n)
			if n > 0 {
				written[placeGUID] = c.Mirror[schema.TablePlaces]
			}
		}
		failedGUID = ""
		return nil
	})
	if err != nil {
		werr := Wrap(ErrCodeCommitFailed, "commit rolled back", err)
		werr.GUID = failedGUID
		werr.Snapshot = snap
		e.logger.Error("commit rolled back", "error", err, "guid", failedGUID, "snapshot", snap)
		return nil, werr
	}

	if err := refreshPlaces(ctx, mirror, pl, written); err != nil {
		werr := Wrap(ErrCodeInternal, "origin committed but mirror refresh failed", err)
		werr.Snapshot = snap
		e.logger.Error("mirror refresh failed", "error", err, "snapshot", snap)
		return nil, werr
	}

	e.logger.Info("commit applied",
		"changed", result.Changed,
		"bookmarks_updated", result.BookmarksUpdated,
		"places_updated", result.PlacesUpdated,
		"unmatched", len(result.Unmatched))
	return result, nil
}

// updateStatement builds UPDATE <table> SET <origin cols> = ? ... WHERE guid = ?.
func updateStatement(table string, ms []schema.Mapping) string {
	sets := make([]string, len(ms))
	for i, m := range ms {
		sets[i] = schema.QuoteIdent(m.Origin) + " = ?"
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE guid = ?", table, strings.Join(sets, ", "))
}

// refreshPlaces copies each written place tuple into every mirror row with
// that place guid.
func refreshPlaces(ctx context.Context, mirror *store.Store, pl []schema.Mapping, written map[string]ir.Tuple) error {
	if len(written) == 0 || len(pl) == 0 {
		return nil
	}
	sets := make([]string, len(pl))
	for i, m := range pl {
		sets[i] = schema.QuoteIdent(m.Mirror) + " = ?"
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		schema.MirrorTable, strings.Join(sets, ", "), schema.QuoteIdent(schema.ColumnPlaceGUID))

	return mirror.WithTx(ctx, func(tx *sql.Tx) error {
		for _, guid := range slices.Sorted(maps.Keys(written)) {
			args := append(written[guid].Params(), guid)
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("refresh place %s: %w", guid, err)
			}
		}
		return nil
	})
}

func execUpdate(ctx context.Context, stmt *sql.Stmt, values ir.Tuple, guid string) (int64, error) {
	args := append(values.Params(), guid)
	res, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
