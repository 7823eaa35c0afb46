package app

import (
	"strings"

	"netcheck/internal/config"
	"netcheck/internal/storage"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	hc := cfg.History
	busy, err := config.ParseDurationOrDefault("history.busy_timeout", hc.BusyTimeout, 0)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(hc.Driver)),
		Path:        strings.TrimSpace(hc.Path),
		MaxRecords:  hc.MaxRecords,
		BusyTimeout: busy,
	}, nil
}
