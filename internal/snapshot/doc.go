// Package snapshot keeps flat, timestamped backups of the Places file.
//
// A snapshot is taken before every commit. Restoring copies one back over the
// origin; there is no history beyond the list of files.
package snapshot
