package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"netcheck/pkg/logx"
	"netcheck/pkg/speedtest"
)

func TestPublishSetsGauges(t *testing.T) {
	e := New()
	ts := time.Unix(1_700_000_000, 0)
	e.Publish(&speedtest.Result{
		Timestamp:    ts,
		DownloadMbps: speedtest.Float(250.5),
		LatencyMs:    speedtest.Float(12),
		QualityScore: speedtest.Int(88),
	})

	if got := testutil.ToFloat64(e.downloadMbps); got != 250.5 {
		t.Fatalf("download = %v", got)
	}
	if got := testutil.ToFloat64(e.latencyMs); got != 12 {
		t.Fatalf("latency = %v", got)
	}
	if got := testutil.ToFloat64(e.qualityScore); got != 88 {
		t.Fatalf("score = %v", got)
	}
	if got := testutil.ToFloat64(e.lastSession); got != float64(ts.Unix()) {
		t.Fatalf("last session = %v", got)
	}
	if got := testutil.ToFloat64(e.sessions.WithLabelValues(StatusOK)); got != 1 {
		t.Fatalf("ok sessions = %v", got)
	}

	// An unmeasured metric keeps its last value.
	e.Publish(&speedtest.Result{Timestamp: ts.Add(time.Minute), LatencyMs: speedtest.Float(20)})
	if got := testutil.ToFloat64(e.downloadMbps); got != 250.5 {
		t.Fatalf("download should be kept, got %v", got)
	}
	if got := testutil.ToFloat64(e.latencyMs); got != 20 {
		t.Fatalf("latency = %v", got)
	}
}

func TestRecordFailure(t *testing.T) {
	e := New()
	e.RecordFailure()
	e.RecordFailure()
	if got := testutil.ToFloat64(e.sessions.WithLabelValues(StatusFailed)); got != 2 {
		t.Fatalf("failed sessions = %v", got)
	}
	if got := testutil.ToFloat64(e.sessions.WithLabelValues(StatusOK)); got != 0 {
		t.Fatalf("ok sessions = %v", got)
	}
}

func TestHandlerWithoutPprof(t *testing.T) {
	srv := httptest.NewServer(NewServer(New(), logx.Nop()).Handler(false))
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/debug/pprof/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("pprof must be off by default, status = %d", resp.StatusCode)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	e := New()
	e.Publish(&speedtest.Result{Timestamp: time.Now(), UploadMbps: speedtest.Float(42)})
	srv := httptest.NewServer(NewServer(e, logx.Nop()).Handler(false))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"netcheck_upload_mbps 42", `netcheck_sessions_total{status="ok"} 1`} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("scrape missing %q:\n%s", want, body)
		}
	}
}

func TestServerApply(t *testing.T) {
	s := NewServer(New(), logx.Nop())
	ctx := context.Background()
	if err := s.Apply(ctx, ServerConfig{Enabled: true, Addr: "127.0.0.1:0", Pprof: true}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	addr := s.Addr()
	if addr == "" {
		t.Fatalf("expected bound address")
	}
	resp, err := http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	resp, err = http.Get("http://" + addr + "/debug/pprof/")
	if err != nil {
		t.Fatalf("pprof: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pprof status = %d", resp.StatusCode)
	}

	if err := s.Apply(ctx, ServerConfig{}); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if s.Addr() != "" {
		t.Fatalf("expected stopped server")
	}
}
