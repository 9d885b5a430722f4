// Package storage keeps the run history of scheduled jobs.
//
// It records lifecycle events (finished, panicked, fused, removed) for
// inspection and retention. Job state is never restored from it: a restarted
// scheduler starts from its configuration alone.
//
// Backends:
//   - file: append-only JSON Lines
//   - sqlite: a single SQLite database (modernc.org/sqlite, no cgo)
package storage
