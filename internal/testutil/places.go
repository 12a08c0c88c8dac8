package testutil

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// placesSchema is the subset of the Firefox Places schema that foxmirror reads
// and writes. Column names, types and defaults follow Firefox.
const placesSchema = `
CREATE TABLE moz_origins (
    id INTEGER PRIMARY KEY,
    prefix TEXT NOT NULL,
    host TEXT NOT NULL,
    frecency INTEGER NOT NULL,
    recalc_frecency INTEGER NOT NULL DEFAULT 0,
    alt_frecency INTEGER,
    recalc_alt_frecency INTEGER NOT NULL DEFAULT 0,
    UNIQUE (prefix, host)
);

CREATE TABLE moz_places (
    id INTEGER PRIMARY KEY,
    url LONGVARCHAR,
    title LONGVARCHAR,
    rev_host LONGVARCHAR,
    visit_count INTEGER DEFAULT 0,
    hidden INTEGER DEFAULT 0 NOT NULL,
    typed INTEGER DEFAULT 0 NOT NULL,
    frecency INTEGER DEFAULT -1 NOT NULL,
    last_visit_date INTEGER,
    guid TEXT,
    foreign_count INTEGER DEFAULT 0 NOT NULL,
    url_hash INTEGER DEFAULT 0 NOT NULL,
    description TEXT,
    preview_image_url TEXT,
    site_name TEXT,
    origin_id INTEGER REFERENCES moz_origins(id),
    recalc_frecency INTEGER NOT NULL DEFAULT 0,
    alt_frecency INTEGER,
    recalc_alt_frecency INTEGER NOT NULL DEFAULT 0
);
CREATE UNIQUE INDEX moz_places_guid_uniqueindex ON moz_places (guid);

CREATE TABLE moz_bookmarks (
    id INTEGER PRIMARY KEY,
    type INTEGER,
    fk INTEGER DEFAULT NULL,
    parent INTEGER,
    position INTEGER,
    title LONGVARCHAR,
    keyword_id INTEGER,
    folder_type TEXT,
    dateAdded INTEGER,
    lastModified INTEGER,
    guid TEXT,
    syncStatus INTEGER NOT NULL DEFAULT 0,
    syncChangeCounter INTEGER NOT NULL DEFAULT 1
);
CREATE UNIQUE INDEX moz_bookmarks_guid_uniqueindex ON moz_bookmarks (guid);
CREATE INDEX moz_bookmarks_itemindex ON moz_bookmarks (fk, type);
CREATE INDEX moz_bookmarks_parentindex ON moz_bookmarks (parent, position);
`

// Well-known root guids.
const (
	GUIDRoot    = "root________"
	GUIDMenu    = "menu________"
	GUIDToolbar = "toolbar_____"
	GUIDTags    = "tags________"
	GUIDUnfiled = "unfiled_____"
	GUIDMobile  = "mobile______"
)

// Origin is a moz_origins row.
type Origin struct {
	ID       int64
	Prefix   string
	Host     string
	Frecency int64
}

// Place is a moz_places row. A zero OriginID is stored as NULL.
type Place struct {
	ID          int64
	URL         string
	Title       string
	GUID        string
	RevHost     string
	OriginID    int64
	VisitCount  int64
	Frecency    int64
	URLHash     int64
	Description string
}

// Bookmark is a moz_bookmarks row. A zero PlaceID is stored as NULL.
type Bookmark struct {
	ID           int64
	Type         int
	PlaceID      int64
	Parent       int64
	Position     int
	Title        string
	GUID         string
	DateAdded    int64
	LastModified int64
}

// Places is a Places database fixture on disk.
type Places struct {
	t    testing.TB
	db   *sql.DB
	Path string
}

// NewPlaces creates an empty Places database at dir/places.sqlite,
// creating dir if needed.
func NewPlaces(t testing.TB, dir string) *Places {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("create profile dir: %v", err)
	}
	path := filepath.Join(dir, "places.sqlite")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open places fixture: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(placesSchema); err != nil {
		db.Close()
		t.Fatalf("create places schema: %v", err)
	}
	p := &Places{t: t, db: db, Path: path}
	t.Cleanup(func() { p.Close() })
	return p
}

// StandardPlaces creates a Places database with the Firefox root folders,
// three origins, three places and three bookmarks:
//
//	root________ (1)
//	├── menu________ (2)
//	│   └── Reading (9, fldreading01)
//	│       └── GitHub (10, bkgithub0001 -> place 3)
//	├── toolbar_____ (3)
//	│   └── Go (programming language) - Wikipedia (7, bkwiki000001 -> place 1)
//	├── tags________ (4)
//	├── unfiled_____ (5)
//	│   └── A Medium story (8, bkmedium0001 -> place 2)
//	└── mobile______ (6)
func StandardPlaces(t testing.TB) *Places {
	t.Helper()
	p := NewPlaces(t, t.TempDir())

	p.AddFolder(1, GUIDRoot, "", 0, 0)
	p.AddFolder(2, GUIDMenu, "menu", 1, 0)
	p.AddFolder(3, GUIDToolbar, "toolbar", 1, 1)
	p.AddFolder(4, GUIDTags, "tags", 1, 2)
	p.AddFolder(5, GUIDUnfiled, "unfiled", 1, 3)
	p.AddFolder(6, GUIDMobile, "mobile", 1, 4)

	p.AddOrigin(Origin{ID: 1, Prefix: "https://", Host: "en.wikipedia.org", Frecency: 200})
	p.AddOrigin(Origin{ID: 2, Prefix: "https://", Host: "medium.com", Frecency: 150})
	p.AddOrigin(Origin{ID: 3, Prefix: "https://", Host: "github.com", Frecency: 900})

	p.AddPlace(Place{ID: 1, URL: "https://en.wikipedia.org/wiki/Go_(programming_language)", Title: "Go (programming language) - Wikipedia",
		GUID: "placewiki001", RevHost: "gro.aidepikiw.ne.", OriginID: 1, VisitCount: 3, Frecency: 120, URLHash: 47356411089529})
	p.AddPlace(Place{ID: 2, URL: "https://medium.com/@someone/a-story", Title: "A Medium story",
		GUID: "placemedium1", RevHost: "moc.muidem.", OriginID: 2, VisitCount: 1, Frecency: 80, URLHash: 47356411089530})
	p.AddPlace(Place{ID: 3, URL: "https://github.com/", Title: "GitHub",
		GUID: "placegithub1", RevHost: "moc.buhtig.", OriginID: 3, VisitCount: 40, Frecency: 2000, URLHash: 47356411089531})

	p.AddBookmark(Bookmark{ID: 7, Type: 1, PlaceID: 1, Parent: 3, Position: 0, Title: "Go (programming language) - Wikipedia", GUID: "bkwiki000001"})
	p.AddBookmark(Bookmark{ID: 8, Type: 1, PlaceID: 2, Parent: 5, Position: 0, Title: "A Medium story", GUID: "bkmedium0001"})
	p.AddFolder(9, "fldreading01", "Reading", 2, 0)
	p.AddBookmark(Bookmark{ID: 10, Type: 1, PlaceID: 3, Parent: 9, Position: 0, Title: "GitHub", GUID: "bkgithub0001"})

	return p
}

// AddOrigin inserts a moz_origins row.
func (p *Places) AddOrigin(o Origin) {
	p.t.Helper()
	p.Exec(`INSERT INTO moz_origins (id, prefix, host, frecency) VALUES (?, ?, ?, ?)`,
		o.ID, o.Prefix, o.Host, o.Frecency)
}

// AddPlace inserts a moz_places row.
func (p *Places) AddPlace(pl Place) {
	p.t.Helper()
	p.Exec(`INSERT INTO moz_places (id, url, title, guid, rev_host, origin_id, visit_count, frecency, url_hash, description, foreign_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		pl.ID, pl.URL, pl.Title, pl.GUID, pl.RevHost, nullableID(pl.OriginID), pl.VisitCount, pl.Frecency, pl.URLHash, nullableString(pl.Description))
}

// AddBookmark inserts a moz_bookmarks row.
func (p *Places) AddBookmark(b Bookmark) {
	p.t.Helper()
	added := b.DateAdded
	if added == 0 {
		added = 1700000000000000 + b.ID
	}
	modified := b.LastModified
	if modified == 0 {
		modified = added
	}
	p.Exec(`INSERT INTO moz_bookmarks (id, type, fk, parent, position, title, guid, dateAdded, lastModified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Type, nullableID(b.PlaceID), b.Parent, b.Position, b.Title, b.GUID, added, modified)
}

// AddFolder inserts a folder node.
func (p *Places) AddFolder(id int64, guid, title string, parent int64, position int) {
	p.t.Helper()
	p.AddBookmark(Bookmark{ID: id, Type: 2, Parent: parent, Position: position, Title: title, GUID: guid})
}

// Exec runs a statement against the fixture and fails the test on error.
func (p *Places) Exec(query string, args ...any) {
	p.t.Helper()
	if _, err := p.db.Exec(query, args...); err != nil {
		p.t.Fatalf("places fixture exec %q: %v", query, err)
	}
}

// Value returns the single value produced by query.
func (p *Places) Value(query string, args ...any) any {
	p.t.Helper()
	var v any
	if err := p.db.QueryRow(query, args...).Scan(&v); err != nil {
		p.t.Fatalf("places fixture query %q: %v", query, err)
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// BookmarkTitle returns moz_bookmarks.title for guid.
func (p *Places) BookmarkTitle(guid string) any {
	p.t.Helper()
	return p.Value(`SELECT title FROM moz_bookmarks WHERE guid = ?`, guid)
}

// PlaceURL returns moz_places.url for a place guid.
func (p *Places) PlaceURL(guid string) any {
	p.t.Helper()
	return p.Value(`SELECT url FROM moz_places WHERE guid = ?`, guid)
}

// HoldWriteLock takes the database write lock from a separate connection,
// the way a running Firefox does. The returned func releases it.
func (p *Places) HoldWriteLock() func() {
	p.t.Helper()
	db, err := sql.Open("sqlite3", p.Path)
	if err != nil {
		p.t.Fatalf("open lock holder: %v", err)
	}
	db.SetMaxOpenConns(1)
	tx, err := db.Begin()
	if err != nil {
		db.Close()
		p.t.Fatalf("begin lock holder: %v", err)
	}
	if _, err := tx.Exec(`UPDATE moz_bookmarks SET title = title WHERE id = 1`); err != nil {
		tx.Rollback()
		db.Close()
		p.t.Fatalf("take write lock: %v", err)
	}
	return func() {
		tx.Rollback()
		db.Close()
	}
}

// Close closes the fixture's connection. Safe to call more than once.
func (p *Places) Close() {
	if p.db != nil {
		p.db.Close()
		p.db = nil
	}
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
