// Package sqlite is the SQLite backend, built on mattn/go-sqlite3.
//
// # Connection strings
//
//   - sqlite://path/to/file.db (query parameters are passed to the driver)
//   - sqlite:path/to/file.db
//   - file:path/to/file.db?mode=rwc
//   - a plain path, or :memory:
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability and performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//   - a single connection: SQLite allows one writer at a time
//
// DeleteByTime compares against datetime('now'), which is UTC. Time values
// are stored as "2006-01-02 15:04:05" text so they compare correctly with it.
package sqlite
