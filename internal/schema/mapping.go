package schema

import (
	"fmt"
	"slices"
)

// Origin table names.
const (
	TableBookmarks = "moz_bookmarks"
	TablePlaces    = "moz_places"
	TableOrigins   = "moz_origins"
)

// MirrorTable is the single flattened table in the mirror store.
const MirrorTable = "bookmark"

// Bookmark node types stored in moz_bookmarks.type.
const (
	TypeBookmark  = 1
	TypeFolder    = 2
	TypeSeparator = 3
)

// Key mirror columns used by the engine.
const (
	ColumnID        = "id"
	ColumnGUID      = "guid"
	ColumnPlaceID   = "place_id"
	ColumnPlaceGUID = "place_guid"
	ColumnParent    = "parent"
	ColumnType      = "type"
	ColumnTitle     = "title"
	ColumnURL       = "url"
)

// Mapping is one (origin table, origin column, mirror column) record.
//
// Owned reports whether the mirror column is written back to Table on commit.
// Frecency marks ranking columns that are only written back when enabled.
type Mapping struct {
	Table    string
	Origin   string
	Mirror   string
	Owned    bool
	Frecency bool
}

// Qualified returns the origin column prefixed with its table name.
func (m Mapping) Qualified() string {
	return m.Table + "." + QuoteIdent(m.Origin)
}

// mappings is the ordered field table. Order matches the mirror column order.
var mappings = []Mapping{
	{Table: TableBookmarks, Origin: "id", Mirror: "id"},
	{Table: TableBookmarks, Origin: "title", Mirror: "title", Owned: true},
	{Table: TablePlaces, Origin: "url", Mirror: "url", Owned: true},
	{Table: TablePlaces, Origin: "description", Mirror: "description", Owned: true},
	{Table: TableBookmarks, Origin: "type", Mirror: "type", Owned: true},
	{Table: TableBookmarks, Origin: "parent", Mirror: "parent", Owned: true},
	{Table: TableBookmarks, Origin: "fk", Mirror: "place_id", Owned: true},
	{Table: TablePlaces, Origin: "origin_id", Mirror: "origin_id", Owned: true},
	{Table: TableBookmarks, Origin: "dateAdded", Mirror: "date_added", Owned: true},
	{Table: TableBookmarks, Origin: "folder_type", Mirror: "folder_type", Owned: true},
	{Table: TablePlaces, Origin: "foreign_count", Mirror: "foreign_count", Owned: true},
	{Table: TableBookmarks, Origin: "guid", Mirror: "guid", Owned: true},
	{Table: TablePlaces, Origin: "hidden", Mirror: "hidden", Owned: true},
	{Table: TableBookmarks, Origin: "keyword_id", Mirror: "keyword_id", Owned: true},
	{Table: TableBookmarks, Origin: "lastModified", Mirror: "last_modified", Owned: true},
	{Table: TablePlaces, Origin: "last_visit_date", Mirror: "last_visit_date", Owned: true},
	{Table: TableOrigins, Origin: "alt_frecency", Mirror: "origin_alt_frecency"},
	{Table: TableOrigins, Origin: "frecency", Mirror: "origin_frecency"},
	{Table: TableOrigins, Origin: "host", Mirror: "origin_host"},
	{Table: TableOrigins, Origin: "prefix", Mirror: "origin_prefix"},
	{Table: TableOrigins, Origin: "recalc_alt_frecency", Mirror: "origin_recalc_alt_frecency"},
	{Table: TableOrigins, Origin: "recalc_frecency", Mirror: "origin_recalc_frecency"},
	{Table: TablePlaces, Origin: "alt_frecency", Mirror: "place_alt_frecency", Owned: true, Frecency: true},
	{Table: TablePlaces, Origin: "frecency", Mirror: "place_frecency", Owned: true, Frecency: true},
	{Table: TablePlaces, Origin: "guid", Mirror: "place_guid", Owned: true},
	{Table: TablePlaces, Origin: "recalc_alt_frecency", Mirror: "place_recalc_alt_frecency", Owned: true, Frecency: true},
	{Table: TablePlaces, Origin: "recalc_frecency", Mirror: "place_recalc_frecency", Owned: true, Frecency: true},
	{Table: TablePlaces, Origin: "preview_image_url", Mirror: "preview_image_url", Owned: true},
	{Table: TableBookmarks, Origin: "position", Mirror: "position", Owned: true},
	{Table: TablePlaces, Origin: "rev_host", Mirror: "rev_host", Owned: true},
	{Table: TablePlaces, Origin: "site_name", Mirror: "site_name", Owned: true},
	{Table: TableBookmarks, Origin: "syncChangeCounter", Mirror: "sync_change_counter", Owned: true},
	{Table: TableBookmarks, Origin: "syncStatus", Mirror: "sync_status", Owned: true},
	{Table: TablePlaces, Origin: "typed", Mirror: "typed", Owned: true},
	{Table: TablePlaces, Origin: "url_hash", Mirror: "url_hash", Owned: true},
	{Table: TablePlaces, Origin: "visit_count", Mirror: "visit_count", Owned: true},
}

// Options controls which columns the separate projections carry.
type Options struct {
	// WriteFrecency includes the place ranking columns (frecency, alt_frecency
	// and their recalc flags) in the moz_places projection.
	// Firefox recomputes these itself, so they are load-only by default.
	WriteFrecency bool
}

// Translator exposes the combine and separate views of the field table.
// It is immutable after construction and safe for concurrent use.
type Translator struct {
	opts     Options
	combine  []Mapping
	separate map[string][]Mapping
	owner    map[string]string
	columns  []string
}

// New builds a Translator over the field table.
func New(opts Options) *Translator {
	t := &Translator{
		opts:     opts,
		combine:  slices.Clone(mappings),
		separate: make(map[string][]Mapping, 3),
		owner:    make(map[string]string),
	}
	for _, table := range Tables() {
		t.separate[table] = []Mapping{}
	}
	for _, m := range t.combine {
		t.columns = append(t.columns, m.Mirror)
		if !m.Owned || (m.Frecency && !opts.WriteFrecency) {
			continue
		}
		t.separate[m.Table] = append(t.separate[m.Table], m)
		t.owner[m.Mirror] = m.Table
	}
	return t
}

// Tables returns the origin table names in join order.
func Tables() []string {
	return []string{TableBookmarks, TablePlaces, TableOrigins}
}

// Options returns the options the translator was built with.
func (t *Translator) Options() Options {
	return t.opts
}

// Combine returns every mapping in mirror column order. Used only for loading.
func (t *Translator) Combine() []Mapping {
	return slices.Clone(t.combine)
}

// Separate returns the mappings written back to one origin table.
// moz_origins is never written back and always yields an empty projection.
// Unknown tables yield nil.
func (t *Translator) Separate(table string) []Mapping {
	ms, ok := t.separate[table]
	if !ok {
		return nil
	}
	return slices.Clone(ms)
}

// MirrorColumns returns the mirror column names in table order.
func (t *Translator) MirrorColumns() []string {
	return slices.Clone(t.columns)
}

// IsMirrorColumn reports whether name is a column of the mirror table.
func (t *Translator) IsMirrorColumn(name string) bool {
	return slices.Contains(t.columns, name)
}

// Owner returns the origin table a mirror column is written back to.
func (t *Translator) Owner(mirror string) (string, bool) {
	table, ok := t.owner[mirror]
	return table, ok
}

// Validate checks the structural invariants of the field table:
// mirror columns are unique, each mirror column has one owner at most,
// and no origin column is written from two mirror columns.
func (t *Translator) Validate() error {
	seen := make(map[string]bool, len(t.combine))
	for _, m := range t.combine {
		if seen[m.Mirror] {
			return fmt.Errorf("mirror column %q mapped twice", m.Mirror)
		}
		seen[m.Mirror] = true
	}

	owners := make(map[string]string)
	for _, table := range Tables() {
		targets := make(map[string]string)
		for _, m := range t.separate[table] {
			if prev, ok := owners[m.Mirror]; ok {
				return fmt.Errorf("mirror column %q owned by both %s and %s", m.Mirror, prev, table)
			}
			owners[m.Mirror] = table
			if prev, ok := targets[m.Origin]; ok {
				return fmt.Errorf("%s.%s written from both %q and %q", table, m.Origin, prev, m.Mirror)
			}
			targets[m.Origin] = m.Mirror
		}
	}
	return nil
}

// MirrorNames returns the mirror column names of a projection.
func MirrorNames(ms []Mapping) []string {
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = m.Mirror
	}
	return names
}

// OriginNames returns the origin column names of a projection.
func OriginNames(ms []Mapping) []string {
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = m.Origin
	}
	return names
}

// QuoteIdent quotes an SQL identifier. Places uses camelCase columns.
func QuoteIdent(name string) string {
	return `"` + name + `"`
}
