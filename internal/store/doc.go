// Package store opens the two SQLite databases foxmirror works with.
//
// The origin is an existing Firefox Places database (places.sqlite). It is
// never created, migrated or re-configured: no pragmas are changed, so a
// profile opened by foxmirror is still usable by Firefox. A busy or locked
// origin surfaces as ErrLocked and is never retried.
//
// The mirror is a disposable database holding one flattened bookmark table.
// It is recreated from scratch on every OpenMirror call.
//
// # Database Configuration (mirror)
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Both databases are opened through DriverName, which adds the casefold()
// SQL function used for case-insensitive substring matching.
package store
