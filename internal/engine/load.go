package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/foxmirror/internal/ir"
	"github.com/roach88/foxmirror/internal/schema"
	"github.com/roach88/foxmirror/internal/store"
)

// maxSQLParams is SQLite's bound-parameter limit (SQLITE_MAX_VARIABLE_NUMBER).
const maxSQLParams = 32766

// LoadResult summarizes a mirror load.
type LoadResult struct {
	Rows         int   `json:"rows"`
	Batches      int   `json:"batches"`
	EmptyBatches int   `json:"empty_batches"`
	MaxID        int64 `json:"max_id"`
}

// Load populates the mirror from the origin.
//
// Bookmark ids are scanned in half-open ranges [lo, lo+batch) from 0 up to and
// including MAX(moz_bookmarks.id). Ranges with no rows are skipped. All
// batches are inserted inside one mirror transaction, so a failed load
// leaves the mirror empty.
func (e *Engine) Load(ctx context.Context, origin, mirror *store.Store) (LoadResult, error) {
	var result LoadResult

	var maxID sql.NullInt64
	if err := origin.QueryRow(ctx, "SELECT MAX(id) FROM moz_bookmarks").Scan(&maxID); err != nil {
		return result, Wrap(ErrCodeLoadFailed, "failed to read max bookmark id", err)
	}
	if !maxID.Valid {
		e.logger.Info("origin has no bookmarks", "origin", origin.Path())
		return result, nil
	}
	result.MaxID = maxID.Int64

	combine := e.translator.Combine()
	selectSQL := loadQuery(combine)
	batch := int64(e.batchSize)

	err := mirror.WithTx(ctx, func(tx *sql.Tx) error {
		for lo := int64(0); lo <= maxID.Int64; lo += batch {
			rows, err := e.readBatch(ctx, origin, selectSQL, lo, lo+batch, len(combine))
			if err != nil {
				return fmt.Errorf("read batch [%d, %d): %w", lo, lo+batch, err)
			}
			result.Batches++
			if len(rows) == 0 {
				result.EmptyBatches++
				e.logger.Debug("empty batch", "lo", lo, "hi", lo+batch)
				continue
			}
			if err := insertRows(ctx, tx, combine, rows); err != nil {
				return fmt.Errorf("insert batch [%d, %d): %w", lo, lo+batch, err)
			}
			result.Rows += len(rows)
		}
		return nil
	})
	if err != nil {
		return LoadResult{}, Wrap(ErrCodeLoadFailed, "failed to load mirror", err)
	}

	e.logger.Info("mirror loaded",
		"rows", result.Rows,
		"batches", result.Batches,
		"empty_batches", result.EmptyBatches,
		"max_id", result.MaxID)
	return result, nil
}

// readBatch reads the combine projection for ids in [lo, hi).
func (e *Engine) readBatch(ctx context.Context, origin *store.Store, query string, lo, hi int64, width int) ([]ir.Tuple, error) {
	rows, err := origin.Query(ctx, query, lo, hi)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ir.Tuple
	for rows.Next() {
		t, err := ir.ScanTuple(rows, width)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// loadQuery builds the batched three-table left join.
func loadQuery(combine []schema.Mapping) string {
	cols := make([]string, len(combine))
	for i, m := range combine {
		cols[i] = m.Qualified()
	}
	return fmt.Sprintf(`SELECT %s
FROM moz_bookmarks
LEFT OUTER JOIN moz_places ON moz_bookmarks.fk = moz_places.id
LEFT OUTER JOIN moz_origins ON moz_places.origin_id = moz_origins.id
WHERE moz_bookmarks.id >= ? AND moz_bookmarks.id < ?
ORDER BY moz_bookmarks.id ASC`, strings.Join(cols, ", "))
}

// insertRows bulk-inserts tuples in combine order using multi-row INSERTs,
// split so no statement exceeds SQLite's parameter limit.
func insertRows(ctx context.Context, tx *sql.Tx, combine []schema.Mapping, rows []ir.Tuple) error {
	width := len(combine)
	perStmt := maxSQLParams / width

	cols := make([]string, width)
	for i, m := range combine {
		cols[i] = schema.QuoteIdent(m.Mirror)
	}
	head := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", schema.MirrorTable, strings.Join(cols, ", "))
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", width), ", ") + ")"

	for start := 0; start < len(rows); start += perStmt {
		end := min(start+perStmt, len(rows))
		chunk := rows[start:end]

		values := make([]string, len(chunk))
		params := make([]any, 0, len(chunk)*width)
		for i, t := range chunk {
			values[i] = placeholder
			params = append(params, t.Params()...)
		}
		if _, err := tx.ExecContext(ctx, head+strings.Join(values, ", "), params...); err != nil {
			return err
		}
	}
	return nil
}
