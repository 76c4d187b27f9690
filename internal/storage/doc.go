// Package storage persists frame traces: one session row per recorded run
// and the ordered wall deltas of its frames.
//
// Drivers:
//   - "file": JSON Lines files on an afero filesystem
//   - "sqlite": a SQLite database (modernc.org/sqlite, no cgo)
package storage
