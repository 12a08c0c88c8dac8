package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/foxmirror/internal/ir"
	"github.com/roach88/foxmirror/internal/schema"
	"github.com/roach88/foxmirror/internal/store"
)

// ChangeReason explains why a guid appears in a diff.
type ChangeReason string

const (
	// ReasonModified means at least one written-back column differs.
	ReasonModified ChangeReason = "modified"

	// ReasonMissingOrigin means no origin row carries the mirror guid.
	ReasonMissingOrigin ChangeReason = "missing_origin"
)

// FieldChange is one differing column of a changed row.
type FieldChange struct {
	Table  string   `json:"table"`
	Field  string   `json:"field"`
	Origin ir.Value `json:"origin"`
	Mirror ir.Value `json:"mirror"`
}

// Change is one mirror row that differs from the origin.
type Change struct {
	GUID   string        `json:"guid"`
	Reason ChangeReason  `json:"reason"`
	Fields []FieldChange `json:"fields,omitempty"`

	// Mirror holds the row's separate-projection tuples keyed by origin table.
	Mirror map[string]ir.Tuple `json:"-"`

	// PlaceID and PlaceGUID come from the mirror row and decide whether
	// commit writes the place projection.
	PlaceID   ir.Value `json:"-"`
	PlaceGUID ir.Value `json:"-"`
}

// DiffReport lists every changed mirror row in mirror id order.
type DiffReport struct {
	Changes []Change `json:"changes"`
}

// GUIDs returns the changed guids.
func (r *DiffReport) GUIDs() []string {
	out := make([]string, len(r.Changes))
	for i, c := range r.Changes {
		out[i] = c.GUID
	}
	return out
}

// Len returns the number of changed rows.
func (r *DiffReport) Len() int {
	return len(r.Changes)
}

// Missing returns the guids that have no origin row.
func (r *DiffReport) Missing() []string {
	var out []string
	for _, c := range r.Changes {
		if c.Reason == ReasonMissingOrigin {
			out = append(out, c.GUID)
		}
	}
	return out
}

// originRow is one origin bookmark projected through the separate views.
type originRow struct {
	bookmarks ir.Tuple
	places    ir.Tuple
}

// mirrorRow is one mirror row projected through the separate views.
type mirrorRow struct {
	guid      ir.Value
	placeID   ir.Value
	placeGUID ir.Value
	bookmarks ir.Tuple
	places    ir.Tuple
}

// Diff reports the mirror rows whose written-back columns differ from the
// origin. Each mirror row is matched by guid against moz_bookmarks left-joined
// to moz_places; columns are compared exactly, NULL equal to NULL.
//
// Several bookmarks can point at one place. Rows of such a group that still
// hold the origin place values follow whichever row edited the place, so
// every change in the group carries the same place tuple. Two rows editing
// the same place to different values fail with ErrCodePlaceConflict.
func (e *Engine) Diff(ctx context.Context, origin, mirror *store.Store) (*DiffReport, error) {
	bk := e.translator.Separate(schema.TableBookmarks)
	pl := e.translator.Separate(schema.TablePlaces)

	originRows, err := e.readOrigin(ctx, origin, bk, pl)
	if err != nil {
		return nil, Wrap(ErrCodeDiffFailed, "failed to scan origin", err)
	}
	mirrorRows, err := e.scanMirror(ctx, mirror, bk, pl)
	if err != nil {
		return nil, Wrap(ErrCodeDiffFailed, "failed to scan mirror", err)
	}
	editedPlaces, err := sharedPlaceEdits(mirrorRows, originRows)
	if err != nil {
		return nil, err
	}

	report := &DiffReport{Changes: []Change{}}
	for _, r := range mirrorRows {
		key, _ := r.guid.(ir.String)
		places := r.places
		if edited, ok := editedPlaces[placeKey(r.placeGUID)]; ok {
			places = edited
		}
		change := Change{
			GUID:      string(key),
			Mirror:    map[string]ir.Tuple{schema.TableBookmarks: r.bookmarks, schema.TablePlaces: places},
			PlaceID:   r.placeID,
			PlaceGUID: r.placeGUID,
		}

		row, ok := originRows[string(key)]
		if !ok || ir.IsNull(r.guid) {
			change.Reason = ReasonMissingOrigin
			report.Changes = append(report.Changes, change)
			continue
		}

		change.Fields = append(change.Fields, compareTuples(schema.TableBookmarks, bk, row.bookmarks, r.bookmarks)...)
		change.Fields = append(change.Fields, compareTuples(schema.TablePlaces, pl, row.places, r.places)...)
		if len(change.Fields) > 0 {
			change.Reason = ReasonModified
			report.Changes = append(report.Changes, change)
		}
	}

	e.logger.Debug("diff computed", "origin_rows", len(originRows), "changed", len(report.Changes),
		"edited_places", len(editedPlaces))
	return report, nil
}

// sharedPlaceEdits returns the edited place tuple per place guid. A row whose
// place columns equal its origin row is not an edit.
func sharedPlaceEdits(rows []mirrorRow, origin map[string]originRow) (map[string]ir.Tuple, error) {
	edited := make(map[string]ir.Tuple)
	editor := make(map[string]string)
	for _, r := range rows {
		if ir.IsNull(r.placeGUID) || ir.IsNull(r.guid) || len(r.places) == 0 {
			continue
		}
		guid := ir.Format(r.guid)
		o, ok := origin[guid]
		if !ok || o.places.Equal(r.places) {
			continue
		}
		key := placeKey(r.placeGUID)
		prev, seen := edited[key]
		if !seen {
			edited[key] = r.places
			editor[key] = guid
			continue
		}
		if !prev.Equal(r.places) {
			return nil, &Error{
				Code:    ErrCodePlaceConflict,
				Message: fmt.Sprintf("place %s edited differently by %s and %s", key, editor[key], guid),
				GUID:    guid,
				Err:     ErrPlaceConflict,
			}
		}
	}
	return edited, nil
}

// placeKey is the map key for a place guid. Null has no key.
func placeKey(v ir.Value) string {
	if ir.IsNull(v) {
		return ""
	}
	return ir.Format(v)
}

// readOrigin loads every origin bookmark keyed by guid.
func (e *Engine) readOrigin(ctx context.Context, origin *store.Store, bk, pl []schema.Mapping) (map[string]originRow, error) {
	cols := []string{"moz_bookmarks.guid"}
	for _, m := range bk {
		cols = append(cols, m.Qualified())
	}
	for _, m := range pl {
		cols = append(cols, m.Qualified())
	}
	query := fmt.Sprintf(`SELECT %s
FROM moz_bookmarks
LEFT OUTER JOIN moz_places ON moz_bookmarks.fk = moz_places.id
WHERE moz_bookmarks.guid IS NOT NULL`, strings.Join(cols, ", "))

	rows, err := origin.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]originRow)
	for rows.Next() {
		t, err := ir.ScanTuple(rows, len(cols))
		if err != nil {
			return nil, err
		}
		guid := ir.Format(t[0])
		out[guid] = originRow{
			bookmarks: t[1 : 1+len(bk)],
			places:    t[1+len(bk):],
		}
	}
	return out, rows.Err()
}

// scanMirror streams the mirror rows projected through the separate views.
func (e *Engine) scanMirror(ctx context.Context, mirror *store.Store, bk, pl []schema.Mapping) ([]mirrorRow, error) {
	cols := []string{
		schema.QuoteIdent(schema.ColumnGUID),
		schema.QuoteIdent(schema.ColumnPlaceID),
		schema.QuoteIdent(schema.ColumnPlaceGUID),
	}
	for _, m := range bk {
		cols = append(cols, schema.QuoteIdent(m.Mirror))
	}
	for _, m := range pl {
		cols = append(cols, schema.QuoteIdent(m.Mirror))
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY id ASC", strings.Join(cols, ", "), schema.MirrorTable)

	rows, err := mirror.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []mirrorRow
	for rows.Next() {
		t, err := ir.ScanTuple(rows, len(cols))
		if err != nil {
			return nil, err
		}
		out = append(out, mirrorRow{
			guid:      t[0],
			placeID:   t[1],
			placeGUID: t[2],
			bookmarks: t[3 : 3+len(bk)],
			places:    t[3+len(bk):],
		})
	}
	return out, rows.Err()
}

// compareTuples returns the columns whose values differ.
func compareTuples(table string, ms []schema.Mapping, origin, mirror ir.Tuple) []FieldChange {
	var out []FieldChange
	for i, m := range ms {
		if !ir.Equal(origin[i], mirror[i]) {
			out = append(out, FieldChange{
				Table:  table,
				Field:  m.Mirror,
				Origin: origin[i],
				Mirror: mirror[i],
			})
		}
	}
	return out
}
