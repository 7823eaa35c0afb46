package speedtest

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestJitterConsecutiveDelta(t *testing.T) {
	if got := Jitter([]float64{10, 12, 11}); got != 1.5 {
		t.Fatalf("expected 1.5, got %v", got)
	}
	if got := Jitter([]float64{42}); got != 0 {
		t.Fatalf("single sample: expected 0, got %v", got)
	}
	if got := Jitter(nil); got != 0 {
		t.Fatalf("no samples: expected 0, got %v", got)
	}
}

func TestReduceLatency(t *testing.T) {
	ms := time.Millisecond
	samples := []Sample{
		{Total: 10 * ms, TTFB: 8 * ms},
		{Total: 12 * ms, TTFB: 9 * ms},
		{Total: 11 * ms, TTFB: 7 * ms},
	}
	got := ReduceLatency(samples)
	if got.Latency != 11 || got.Jitter != 1.5 || got.TTFB != 8 || got.Samples != 3 {
		t.Fatalf("unexpected stats: %+v", got)
	}
	if got.TTFB > got.Latency {
		t.Fatalf("ttfb %v exceeds latency %v", got.TTFB, got.Latency)
	}
}

// Total failure reports zeros rather than absent values.
func TestReduceLatencyNoSamples(t *testing.T) {
	got := ReduceLatency(nil)
	if got != (LatencyStats{}) {
		t.Fatalf("expected zero stats, got %+v", got)
	}
}

func TestMbps(t *testing.T) {
	got, ok := Mbps(1_000_000, time.Second)
	if !ok || got != 8 {
		t.Fatalf("expected 8 Mbps, got %v (ok=%v)", got, ok)
	}
	if _, ok := Mbps(1_000_000, 0); ok {
		t.Fatalf("zero duration must be rejected")
	}
	if _, ok := Mbps(1_000_000, -time.Second); ok {
		t.Fatalf("negative duration must be rejected")
	}
}

func TestMaxThroughput(t *testing.T) {
	got, err := MaxThroughput([]float64{12.3, 88.456, 40})
	if err != nil {
		t.Fatalf("MaxThroughput: %v", err)
	}
	if math.Abs(got-88.46) > 1e-9 {
		t.Fatalf("expected 88.46, got %v", got)
	}
	if _, err := MaxThroughput(nil); !errors.Is(err, ErrAllSamplesFailed) {
		t.Fatalf("expected ErrAllSamplesFailed, got %v", err)
	}
}

func TestSizeLabel(t *testing.T) {
	cases := map[int64]string{100_000: "100KB", 1_000_000: "1MB", 25_000_000: "25MB"}
	for n, want := range cases {
		if got := sizeLabel(n); got != want {
			t.Errorf("sizeLabel(%d) = %q, want %q", n, got, want)
		}
	}
}
