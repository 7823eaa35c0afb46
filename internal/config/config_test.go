package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestParseMissingFileUsesDefaults(t *testing.T) {
	m := NewConfigManager(filepath.Join(t.TempDir(), "absent.yaml"))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Latency.Samples != 20 || cfg.History.MaxRecords != 100 || cfg.History.Driver != DriverFile {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if !strings.HasSuffix(cfg.History.Path, filepath.Join("netcheck", "history.json")) {
		t.Fatalf("unexpected default history path %q", cfg.History.Path)
	}
	rc, err := cfg.RunConfig()
	if err != nil {
		t.Fatalf("RunConfig: %v", err)
	}
	if rc.SampleDelay != 50*time.Millisecond || rc.TransferTimeout != 60*time.Second || len(rc.DownloadSizes) != 4 {
		t.Fatalf("unexpected run config: %+v", rc)
	}
}

func TestParseYAMLMergesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netcheck.yaml")
	writeFile(t, path, `
logging:
  level: debug
endpoint:
  base_url: http://127.0.0.1:8080
  dns_servers: ["9.9.9.9"]
latency:
  samples: 5
  delay: 0s
upload:
  sizes: [1000, 2000]
history:
  driver: SQLite
  max_records: 10
`)
	cfg, err := NewConfigManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging not merged: %+v", cfg.Logging)
	}
	if cfg.Endpoint.DownPath != "/__down" {
		t.Fatalf("expected default down path, got %q", cfg.Endpoint.DownPath)
	}
	if cfg.History.Driver != DriverSQLite || !strings.HasSuffix(cfg.History.Path, "history.db") {
		t.Fatalf("unexpected history: %+v", cfg.History)
	}
	rc, err := cfg.RunConfig()
	if err != nil {
		t.Fatalf("RunConfig: %v", err)
	}
	if rc.SampleDelay != 0 {
		t.Fatalf("explicit 0s delay must be honored, got %v", rc.SampleDelay)
	}
	if rc.LatencySamples != 5 || len(rc.UploadSizes) != 2 || len(rc.DownloadSizes) != 4 {
		t.Fatalf("unexpected run config: %+v", rc)
	}
	if rc.Endpoint.DNSServers[0] != "9.9.9.9" {
		t.Fatalf("dns servers not carried: %+v", rc.Endpoint)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netcheck.json")
	writeFile(t, path, `{"latency": {"samples": 3, "sample_count": 4}}`)
	if _, err := NewConfigManager(path).Parse(); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netcheck.json")
	writeFile(t, path, `{"latency": {"samples": 3}} {}`)
	if _, err := NewConfigManager(path).Parse(); err == nil {
		t.Fatalf("expected trailing data error")
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"level":    func(c *Config) { c.Logging.Level = "loud" },
		"url":      func(c *Config) { c.Endpoint.BaseURL = "ftp://example.com" },
		"size":     func(c *Config) { c.Download.Sizes = []int64{1000, -1} },
		"driver":   func(c *Config) { c.History.Driver = "redis" },
		"duration": func(c *Config) { c.Timeouts.Transfer = "soon" },
		"gap":      func(c *Config) { c.Schedule.MinGap = "-1m" },
		"protocol": func(c *Config) {
			c.Endpoint.HTTP3 = true
			c.Endpoint.DisableHTTP2 = true
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			cfg.applyDefaults()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	cfg := Default()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	a := Default()
	b := Default()
	b.Schedule.Spec = "@every 5m"
	b.Latency.Samples = 7
	changed, _ := SummarizeConfigChange(&a, &b)
	if len(changed) != 2 || changed[0] != "latency" || changed[1] != "schedule" {
		t.Fatalf("unexpected changed sections: %v", changed)
	}
}

func TestWatchPublishesChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netcheck.yaml")
	writeFile(t, path, "latency:\n  samples: 3\n")

	m := NewConfigManager(path)
	m.debounce = 20 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, "latency:\n  samples: 9\n")

	select {
	case cfg := <-ch:
		if cfg.Latency.Samples != 9 {
			t.Fatalf("expected reloaded samples=9, got %d", cfg.Latency.Samples)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for reload")
	}
	if got := m.Get().Latency.Samples; got != 9 {
		t.Fatalf("expected committed samples=9, got %d", got)
	}
}
