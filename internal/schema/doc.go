// Package schema is the field translator between the Places origin tables and
// the flattened mirror table.
//
// A single ordered table of Mapping records drives two views:
//
//   - the combine view: every mapping, used to load the mirror through a
//     moz_bookmarks -> moz_places -> moz_origins left join
//   - the separate views: per origin table, the mirror columns written back
//     on commit
//
// Each writable mirror column belongs to exactly one separate view, so a
// detected change is always attributable to one origin table. moz_origins
// columns and the mirror surrogate id are load-only.
package schema
