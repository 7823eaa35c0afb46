package storage

import (
	"context"
	"errors"
	"time"

	"netcheck/pkg/speedtest"
)

var (
	// ErrDisabled is returned by writes when persistence is turned off.
	ErrDisabled = errors.New("storage disabled")
	// ErrUnknownDriver is returned by Open for an unsupported driver name.
	ErrUnknownDriver = errors.New("unknown storage driver")
)

// schemaVersion is written into every stored record.
const schemaVersion = 1

// Config configures storage.
//
// Driver values:
//   - "file": JSON file (default)
//   - "sqlite": SQLite database file
//   - "none": nothing is persisted; reads return an empty history
type Config struct {
	Driver      string
	Path        string
	MaxRecords  int
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the result log.
//
// Load returns records oldest first. A history that cannot be read or
// decoded is reported as empty rather than as an error; Append errors are
// real write failures.
type Store interface {
	Load(ctx context.Context) ([]speedtest.Result, error)
	Append(ctx context.Context, r speedtest.Result) error
	Latest(ctx context.Context) (speedtest.Result, bool, error)
	Clear(ctx context.Context) error
	Close() error
}
