// Package storage persists the delivery journal: one metadata record per
// notification the engine produced. Message content is never stored.
//
// Drivers:
//   - "file": append-only JSON Lines
//   - "sqlite": SQLite database (modernc.org/sqlite, pure Go)
package storage
