// Package engine implements mirror synchronization for a Places database.
//
// Three operations make up the engine:
//
//   - Load copies every moz_bookmarks row, left-joined to its place and the
//     place's origin, into the flattened mirror table. Rows are read in
//     id-range batches inside a single mirror transaction.
//   - Diff compares each mirror row with the origin row of the same guid
//     through the per-table separate projections and reports the guids
//     whose written-back columns differ.
//   - Commit backs the origin file up, diffs, and writes every changed row
//     back with UPDATE ... WHERE guid = ? inside one origin transaction.
//
// Commit never inserts. A mirror row whose guid no longer exists in the
// origin is reported as unmatched and left alone.
//
// The engine is synchronous and single-threaded; context cancellation is
// honoured by every database call.
package engine
