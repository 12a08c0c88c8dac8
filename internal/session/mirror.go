package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/foxmirror/internal/engine"
	"github.com/roach88/foxmirror/internal/ir"
	"github.com/roach88/foxmirror/internal/queryir"
	"github.com/roach88/foxmirror/internal/schema"
)

var (
	// ErrNotFound is returned when a guid has no mirror row.
	ErrNotFound = errors.New("no mirror row with that guid")

	// ErrNotFolder is returned when a move target is not a folder.
	ErrNotFolder = errors.New("move target is not a folder")

	// ErrMoveIntoSelf is returned when a folder would be moved under itself.
	ErrMoveIntoSelf = errors.New("cannot move a folder into itself or its descendants")
)

// Rows is the result of a mirror select.
type Rows struct {
	Columns []string   `json:"columns"`
	Records []ir.Tuple `json:"records"`
}

// Len returns the number of records.
func (r *Rows) Len() int {
	return len(r.Records)
}

// Value returns the named column of record i, or Null if the column was not
// selected.
func (r *Rows) Value(i int, column string) ir.Value {
	j := slices.Index(r.Columns, column)
	if j < 0 || i < 0 || i >= len(r.Records) {
		return ir.Null{}
	}
	return r.Records[i][j]
}

// Maps returns every record keyed by column name.
func (r *Rows) Maps() []map[string]ir.Value {
	out := make([]map[string]ir.Value, len(r.Records))
	for i, rec := range r.Records {
		m := make(map[string]ir.Value, len(r.Columns))
		for j, col := range r.Columns {
			m[col] = rec[j]
		}
		out[i] = m
	}
	return out
}

// Select reads mirror rows.
func (s *Session) Select(ctx context.Context, q queryir.Select) (*Rows, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := s.validate(q); err != nil {
		return nil, err
	}
	query, params, err := s.compiler.Compile(q)
	if err != nil {
		return nil, engine.Wrap(engine.ErrCodeInvalidQuery, "failed to compile select", err)
	}

	rows, err := s.mirror.Query(ctx, query, params...)
	if err != nil {
		return nil, engine.Wrap(engine.ErrCodeInternal, "failed to query mirror", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, engine.Wrap(engine.ErrCodeInternal, "failed to read columns", err)
	}
	out := &Rows{Columns: cols, Records: []ir.Tuple{}}
	for rows.Next() {
		t, err := ir.ScanTuple(rows, len(cols))
		if err != nil {
			return nil, engine.Wrap(engine.ErrCodeInternal, "failed to scan mirror row", err)
		}
		out.Records = append(out.Records, t)
	}
	if err := rows.Err(); err != nil {
		return nil, engine.Wrap(engine.ErrCodeInternal, "failed to iterate mirror rows", err)
	}
	return out, nil
}

// Update modifies mirror rows and returns how many matched.
// Nothing reaches the origin until Commit.
func (s *Session) Update(ctx context.Context, q queryir.Update) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	if err := s.validate(q); err != nil {
		return 0, err
	}
	query, params, err := s.compiler.Compile(q)
	if err != nil {
		return 0, engine.Wrap(engine.ErrCodeInvalidQuery, "failed to compile update", err)
	}

	n, err := s.mirror.Exec(ctx, query, params...)
	if err != nil {
		return 0, engine.Wrap(engine.ErrCodeInternal, "failed to update mirror", err)
	}
	s.logger.Debug("mirror updated", "rows", n)
	return n, nil
}

// Bookmarks selects bookmark nodes (type 1) matching filter.
func (s *Session) Bookmarks(ctx context.Context, filter queryir.Predicate) (*Rows, error) {
	return s.Select(ctx, queryir.Select{
		Filter: queryir.Conjoin(queryir.Equals{Field: schema.ColumnType, Value: ir.Int(schema.TypeBookmark)}, filter),
	})
}

// Folders selects folder nodes (type 2) matching filter.
func (s *Session) Folders(ctx context.Context, filter queryir.Predicate) (*Rows, error) {
	return s.Select(ctx, queryir.Select{
		Filter: queryir.Conjoin(queryir.Equals{Field: schema.ColumnType, Value: ir.Int(schema.TypeFolder)}, filter),
	})
}

// Move re-parents every node matching filter under the folder with guid
// folderGUID, appending them after the folder's existing children in id
// order. The folders the nodes left are renumbered so their positions stay
// 0..n-1. It returns the number of nodes moved.
func (s *Session) Move(ctx context.Context, filter queryir.Predicate, folderGUID string) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	if err := s.validate(queryir.Select{Filter: filter}); err != nil {
		return 0, err
	}

	target, err := s.node(ctx, folderGUID)
	if err != nil {
		return 0, err
	}
	if target.typ != schema.TypeFolder {
		return 0, &engine.Error{Code: engine.ErrCodeInvalidQuery, Message: "move target " + folderGUID, Err: ErrNotFolder}
	}
	ancestors, err := s.ancestors(ctx, target.id)
	if err != nil {
		return 0, err
	}

	where, params, err := s.compiler.CompileWhere(filter)
	if err != nil {
		return 0, engine.Wrap(engine.ErrCodeInvalidQuery, "failed to compile move filter", err)
	}

	var moved int64
	err = s.mirror.WithTx(ctx, func(tx *sql.Tx) error {
		ids, err := queryIDs(ctx, tx, fmt.Sprintf("SELECT id FROM %s WHERE %s ORDER BY id ASC", schema.MirrorTable, where), params...)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if id == target.id || slices.Contains(ancestors, id) {
				return ErrMoveIntoSelf
			}
		}

		var next int64
		if err := tx.QueryRowContext(ctx,
			fmt.Sprintf("SELECT COALESCE(MAX(position) + 1, 0) FROM %s WHERE parent = ?", schema.MirrorTable),
			target.id).Scan(&next); err != nil {
			return err
		}
		sources, err := queryIDs(ctx, tx,
			fmt.Sprintf("SELECT DISTINCT parent FROM %s WHERE (%s) AND parent IS NOT NULL ORDER BY parent ASC", schema.MirrorTable, where), params...)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf("UPDATE %s SET parent = ?, position = ? WHERE id = ?", schema.MirrorTable),
				target.id, next, id); err != nil {
				return err
			}
			next++
			moved++
		}
		for _, parent := range sources {
			if err := renumber(ctx, tx, parent); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrMoveIntoSelf) {
			return 0, &engine.Error{Code: engine.ErrCodeInvalidQuery, Message: "move into " + folderGUID, Err: err}
		}
		return 0, engine.Wrap(engine.ErrCodeInternal, "failed to move nodes", err)
	}
	s.logger.Debug("nodes moved", "rows", moved, "folder", folderGUID)
	return moved, nil
}

// Path returns the titles from the top-level root child down to the node
// with guid. The root itself is not included.
func (s *Session) Path(ctx context.Context, guid string) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	n, err := s.node(ctx, guid)
	if err != nil {
		return nil, err
	}

	var titles []string
	seen := map[int64]bool{}
	for n.parent != 0 {
		if seen[n.id] {
			return nil, &engine.Error{Code: engine.ErrCodeInternal, Message: fmt.Sprintf("parent cycle at id %d", n.id)}
		}
		seen[n.id] = true
		titles = append(titles, n.title)
		n, err = s.nodeByID(ctx, n.parent)
		if err != nil {
			return nil, err
		}
	}
	slices.Reverse(titles)
	return titles, nil
}

// treeNode is the part of a mirror row needed to walk the tree.
type treeNode struct {
	id     int64
	parent int64
	typ    int64
	title  string
}

const nodeColumns = "id, COALESCE(parent, 0), COALESCE(type, 0), COALESCE(title, '')"

func (s *Session) node(ctx context.Context, guid string) (treeNode, error) {
	return s.scanNode(ctx, "guid = ?", guid)
}

func (s *Session) nodeByID(ctx context.Context, id int64) (treeNode, error) {
	return s.scanNode(ctx, "id = ?", id)
}

func (s *Session) scanNode(ctx context.Context, where string, arg any) (treeNode, error) {
	var n treeNode
	err := s.mirror.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE %s", nodeColumns, schema.MirrorTable, where), arg,
	).Scan(&n.id, &n.parent, &n.typ, &n.title)
	if errors.Is(err, sql.ErrNoRows) {
		return n, &engine.Error{Code: engine.ErrCodeInvalidQuery, Message: fmt.Sprint(arg), Err: ErrNotFound}
	}
	if err != nil {
		return n, engine.Wrap(engine.ErrCodeInternal, "failed to read mirror node", err)
	}
	return n, nil
}

// ancestors returns the ids above id, nearest first.
func (s *Session) ancestors(ctx context.Context, id int64) ([]int64, error) {
	var out []int64
	n, err := s.nodeByID(ctx, id)
	if err != nil {
		return nil, err
	}
	for n.parent != 0 && !slices.Contains(out, n.parent) {
		out = append(out, n.parent)
		if n, err = s.nodeByID(ctx, n.parent); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Session) validate(q queryir.Query) error {
	if err := queryir.Validate(q, s.Translator().IsMirrorColumn).Err(); err != nil {
		return &engine.Error{Code: engine.ErrCodeInvalidQuery, Message: "query rejected", Err: err}
	}
	return nil
}

// renumber rewrites the positions of parent's children to 0..n-1, keeping
// their order. Rows already in place are not touched.
func renumber(ctx context.Context, tx *sql.Tx, parent int64) error {
	children, err := queryIDs(ctx, tx,
		fmt.Sprintf("SELECT id FROM %s WHERE parent = ? ORDER BY position ASC, id ASC", schema.MirrorTable), parent)
	if err != nil {
		return err
	}
	for pos, id := range children {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET position = ? WHERE id = ? AND position IS NOT ?", schema.MirrorTable),
			pos, id, pos); err != nil {
			return fmt.Errorf("renumber folder %d: %w", parent, err)
		}
	}
	return nil
}

func queryIDs(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
