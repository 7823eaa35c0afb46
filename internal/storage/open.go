package storage

import (
	"context"
	"fmt"
	"strings"

	"netcheck/pkg/logx"
	"netcheck/pkg/speedtest"
)

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = speedtest.DefaultHistoryMaxRecords
	}
	log = log.With(logx.String("driver", driver))

	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "none":
		return disabledStore{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}

// disabledStore reads as an empty history and refuses writes.
type disabledStore struct{}

func (disabledStore) Load(context.Context) ([]speedtest.Result, error) {
	return []speedtest.Result{}, nil
}

func (disabledStore) Append(context.Context, speedtest.Result) error { return ErrDisabled }

func (disabledStore) Latest(context.Context) (speedtest.Result, bool, error) {
	return speedtest.Result{}, false, nil
}

func (disabledStore) Clear(context.Context) error { return nil }
func (disabledStore) Close() error                { return nil }
