// Package storage persists the measurement history.
//
// Two drivers are available:
//   - "file": a JSON array of records, rewritten atomically on every append
//   - "sqlite": a single results table (modernc.org/sqlite, no cgo)
//
// Both keep at most Config.MaxRecords entries, dropping the oldest first.
package storage
