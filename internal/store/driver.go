package store

import (
	"database/sql"
	"net/url"
	"strings"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/text/cases"
)

// DriverName is the database/sql driver registered by this package.
// It is go-sqlite3 with foxmirror's SQL functions attached to every connection.
const DriverName = "sqlite3_foxmirror"

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("casefold", casefold, true)
		},
	})
}

// casefold implements the casefold(x) SQL function.
// Text is Unicode case folded; NULL and non-text values pass through unchanged.
func casefold(v any) any {
	switch s := v.(type) {
	case string:
		return cases.Fold().String(s)
	case []byte:
		return cases.Fold().String(string(s))
	default:
		return v
	}
}

// fileDSN builds a file: URI for path with the given query parameters.
func fileDSN(path string, params url.Values) string {
	escaped := strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23").Replace(path)
	if len(params) == 0 {
		return "file:" + escaped
	}
	return "file:" + escaped + "?" + params.Encode()
}
