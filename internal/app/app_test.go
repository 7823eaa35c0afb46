package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"netcheck/internal/storage"
	"netcheck/pkg/logx"
)

func newEndpoint(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/__down", func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(r.URL.Query().Get("bytes"))
		w.Header().Set("cf-ray", "8a1b2c3d4e5f-AMS")
		_, _ = w.Write(make([]byte, n))
	})
	mux.HandleFunc("/__up", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
	})
	mux.HandleFunc("/cdn-cgi/trace", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ip=203.0.113.7\ncolo=AMS\n")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// writeConfig writes a YAML config pointing at srv and returns its path.
func writeConfig(t *testing.T, srv *httptest.Server, extra string) (cfgPath, histPath string) {
	t.Helper()
	dir := t.TempDir()
	histPath = filepath.Join(dir, "history.json")
	cfgPath = filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`logging:
  level: error
  console: false
endpoint:
  base_url: %s
  trace_url: %s/cdn-cgi/trace
  dns_host: localhost
latency:
  samples: 2
  delay: 0s
download:
  sizes: [1000, 1000000]
upload:
  sizes: [1000, 10000]
history:
  driver: file
  path: %s
%s`, srv.URL, srv.URL, histPath, extra)
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath, histPath
}

type cli struct {
	cfg    string
	stdin  string
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func (c *cli) run(t *testing.T, args ...string) int {
	t.Helper()
	c.stdout.Reset()
	c.stderr.Reset()
	full := append([]string{"--config", c.cfg, "--quiet"}, args...)
	return Main(context.Background(), full, strings.NewReader(c.stdin), &c.stdout, &c.stderr)
}

func loadHistory(t *testing.T, path string) int {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer st.Close()
	hist, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	return len(hist)
}

func TestSpeedSavesAndCompares(t *testing.T) {
	srv := newEndpoint(t)
	cfgPath, histPath := writeConfig(t, srv, "")
	c := &cli{cfg: cfgPath}

	if code := c.run(t, "speed"); code != 0 {
		t.Fatalf("speed exit %d: %s", code, c.stderr.String())
	}
	if !strings.Contains(c.stdout.String(), "AMS") || strings.Contains(c.stdout.String(), "Compared with previous") {
		t.Fatalf("unexpected first run output:\n%s", c.stdout.String())
	}
	if n := loadHistory(t, histPath); n != 1 {
		t.Fatalf("expected 1 stored result, got %d", n)
	}

	if code := c.run(t, "speed"); code != 0 {
		t.Fatalf("second speed exit %d: %s", code, c.stderr.String())
	}
	if !strings.Contains(c.stdout.String(), "Compared with previous test") {
		t.Fatalf("second run should compare:\n%s", c.stdout.String())
	}

	if code := c.run(t, "speed", "--no-save", "--no-compare"); code != 0 {
		t.Fatalf("speed --no-save exit %d", code)
	}
	if strings.Contains(c.stdout.String(), "Compared with previous") {
		t.Fatalf("--no-compare must not compare")
	}
	if n := loadHistory(t, histPath); n != 2 {
		t.Fatalf("--no-save must not store; got %d records", n)
	}
}

func TestReducedCommands(t *testing.T) {
	srv := newEndpoint(t)
	cfgPath, histPath := writeConfig(t, srv, "")
	c := &cli{cfg: cfgPath}

	for _, cmd := range []string{"download", "upload", "latency", "jitter"} {
		if code := c.run(t, cmd); code != 0 {
			t.Fatalf("%s exit %d: %s", cmd, code, c.stderr.String())
		}
		if !strings.Contains(c.stdout.String(), "N/A") {
			t.Fatalf("%s: reduced result should show unmeasured metrics as N/A:\n%s", cmd, c.stdout.String())
		}
	}
	if n := loadHistory(t, histPath); n != 4 {
		t.Fatalf("expected 4 stored results, got %d", n)
	}

	if code := c.run(t, "dns"); code != 0 {
		t.Fatalf("dns exit %d: %s", code, c.stderr.String())
	}
	if !strings.Contains(c.stdout.String(), "DNS lookup:") {
		t.Fatalf("unexpected dns output %q", c.stdout.String())
	}
	if code := c.run(t, "ttfb"); code != 0 {
		t.Fatalf("ttfb exit %d: %s", code, c.stderr.String())
	}
	if !strings.Contains(c.stdout.String(), "Time to first byte:") {
		t.Fatalf("unexpected ttfb output %q", c.stdout.String())
	}
	if n := loadHistory(t, histPath); n != 4 {
		t.Fatalf("dns and ttfb must not store results; got %d", n)
	}

	if code := c.run(t, "quality"); code != 0 {
		t.Fatalf("quality exit %d: %s", code, c.stderr.String())
	}
	if !strings.Contains(c.stdout.String(), "Connection quality:") {
		t.Fatalf("unexpected quality output:\n%s", c.stdout.String())
	}
}

func TestHistoryStatsExportClear(t *testing.T) {
	srv := newEndpoint(t)
	cfgPath, histPath := writeConfig(t, srv, "")
	c := &cli{cfg: cfgPath}

	if code := c.run(t, "history"); code != 0 || !strings.Contains(c.stdout.String(), "No test history") {
		t.Fatalf("empty history: exit %d output %q", code, c.stdout.String())
	}
	if code := c.run(t, "stats"); code != 0 || !strings.Contains(c.stdout.String(), "No test history") {
		t.Fatalf("empty stats: exit %d output %q", code, c.stdout.String())
	}

	for i := 0; i < 2; i++ {
		if code := c.run(t, "download"); code != 0 {
			t.Fatalf("download exit %d", code)
		}
	}
	if code := c.run(t, "history", "-n", "1"); code != 0 {
		t.Fatalf("history exit %d", code)
	}
	if got := strings.Count(c.stdout.String(), "AMS"); got != 1 {
		t.Fatalf("history -n 1 should show one row, found %d:\n%s", got, c.stdout.String())
	}
	if code := c.run(t, "stats"); code != 0 || !strings.Contains(c.stdout.String(), "2 tests") {
		t.Fatalf("stats: exit %d output %q", code, c.stdout.String())
	}

	out := filepath.Join(t.TempDir(), "h.parquet")
	if code := c.run(t, "export", "--out", out); code != 0 {
		t.Fatalf("export exit %d: %s", code, c.stderr.String())
	}
	if fi, err := os.Stat(out); err != nil || fi.Size() == 0 {
		t.Fatalf("expected parquet file, err=%v", err)
	}

	c.stdin = "n\n"
	if code := c.run(t, "clear-history"); code != 1 {
		t.Fatalf("declined clear should exit 1, got %d", code)
	}
	if n := loadHistory(t, histPath); n != 2 {
		t.Fatalf("declined clear removed history: %d", n)
	}
	if code := c.run(t, "clear-history", "--yes"); code != 0 {
		t.Fatalf("clear exit %d", code)
	}
	if n := loadHistory(t, histPath); n != 0 {
		t.Fatalf("history not cleared: %d", n)
	}
}

func TestMainUsageAndErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := Main(context.Background(), nil, strings.NewReader(""), &stdout, &stderr); code != 0 {
		t.Fatalf("no args exit %d", code)
	}
	if !strings.Contains(stdout.String(), "clear-history") {
		t.Fatalf("usage missing commands:\n%s", stdout.String())
	}

	stdout.Reset()
	if code := Main(context.Background(), []string{"ping"}, strings.NewReader(""), &stdout, &stderr); code != 2 {
		t.Fatalf("unknown command exit %d", code)
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte(`{"nope": 1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	stderr.Reset()
	if code := Main(context.Background(), []string{"--config", bad, "history"}, strings.NewReader(""), &stdout, &stderr); code != 1 {
		t.Fatalf("invalid config exit %d", code)
	}
	if !strings.Contains(stderr.String(), "Error:") {
		t.Fatalf("expected error message, got %q", stderr.String())
	}

	stdout.Reset()
	if code := Main(context.Background(), []string{"--version"}, strings.NewReader(""), &stdout, &stderr); code != 0 || !strings.Contains(stdout.String(), "netcheck") {
		t.Fatalf("version: exit %d output %q", code, stdout.String())
	}
}

func TestSessionFailureExitsNonZero(t *testing.T) {
	srv := newEndpoint(t)
	cfgPath, _ := writeConfig(t, srv, "")
	a, err := New(Options{ConfigPath: cfgPath, Quiet: true, Stdout: io.Discard, Stderr: io.Discard})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Speed(ctx, SpeedOptions{}); err == nil {
		t.Fatal("cancelled session must fail")
	}
}

func TestWatchRunsAndStops(t *testing.T) {
	srv := newEndpoint(t)
	cfgPath, histPath := writeConfig(t, srv, `schedule:
  spec: "@every 1h"
  min_gap: 0s
metrics:
  enabled: true
  addr: 127.0.0.1:0
`)
	a, err := New(Options{ConfigPath: cfgPath, Stdout: io.Discard, Stderr: io.Discard})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Watch(ctx) }()

	deadline := time.Now().Add(10 * time.Second)
	for loadHistory(t, histPath) == 0 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("watch never stored a session")
		}
		time.Sleep(50 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatchRejectsBadSchedule(t *testing.T) {
	srv := newEndpoint(t)
	cfgPath, _ := writeConfig(t, srv, "schedule:\n  spec: \"not a schedule\"\n")
	a, err := New(Options{ConfigPath: cfgPath, Stdout: io.Discard, Stderr: io.Discard})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	if err := a.Watch(context.Background()); err == nil {
		t.Fatal("expected schedule error")
	}
}
