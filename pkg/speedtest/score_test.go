package speedtest

import "testing"

func TestScoreSaturates(t *testing.T) {
	got, ok := Score(Float(250), Float(80), Float(4), Float(1))
	if !ok || got != 100 {
		t.Fatalf("expected 100, got %d (ok=%v)", got, ok)
	}
}

func TestScoreWeights(t *testing.T) {
	cases := []struct {
		name             string
		dl, ul, lat, jit *float64
		want             int
	}{
		{name: "download only", dl: Float(100), want: 40},
		{name: "upload only", ul: Float(50), want: 20},
		{name: "latency only", lat: Float(10), want: 25},
		{name: "jitter only", jit: Float(5), want: 15},
		{name: "half download", dl: Float(50), want: 20},
		{name: "latency midpoint", lat: Float(105), want: 12}, // 12.5 rounds to even
		{name: "jitter worst", jit: Float(50), want: 0},
		{name: "zero latency is not perfect", lat: Float(0), jit: Float(0), want: 0},
		{name: "mixed", dl: Float(80), ul: Float(25), lat: Float(30), jit: Float(5), want: 32 + 10 + 22 + 15},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Score(tc.dl, tc.ul, tc.lat, tc.jit)
			if !ok {
				t.Fatalf("expected ok")
			}
			if got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestScoreAllAbsent(t *testing.T) {
	if _, ok := Score(nil, nil, nil, nil); ok {
		t.Fatalf("expected ok=false when nothing was measured")
	}
}

// Monotonicity holds for positive inputs only. A measured 0 latency or
// jitter means the phase failed and contributes nothing; see
// TestScoreZeroLatencyIsFailure.
func TestScoreMonotonic(t *testing.T) {
	prev := -1
	for _, dl := range []float64{1, 10, 25, 50, 75, 99, 100, 150} {
		got, _ := Score(Float(dl), Float(20), Float(40), Float(10))
		if got < prev {
			t.Fatalf("score decreased as download rose to %v: %d < %d", dl, got, prev)
		}
		prev = got
	}

	prev = 101
	for _, lat := range []float64{1, 10, 20, 60, 120, 199, 200, 500} {
		got, _ := Score(Float(50), Float(20), Float(lat), Float(10))
		if got > prev {
			t.Fatalf("score increased as latency rose to %v: %d > %d", lat, got, prev)
		}
		prev = got
	}

	prev = 101
	for _, jit := range []float64{0.5, 5, 10, 25, 49, 50, 80} {
		got, _ := Score(Float(50), Float(20), Float(30), Float(jit))
		if got > prev {
			t.Fatalf("score increased as jitter rose to %v: %d > %d", jit, got, prev)
		}
		prev = got
	}
}

func TestVerdict(t *testing.T) {
	cases := map[int]string{100: "Excellent", 90: "Excellent", 89: "Good", 70: "Good", 50: "Fair", 30: "Poor", 29: "Bad", 0: "Bad"}
	for score, want := range cases {
		if got := Verdict(score); got != want {
			t.Errorf("Verdict(%d) = %q, want %q", score, got, want)
		}
	}
}

func TestScoreZeroLatencyIsFailure(t *testing.T) {
	failed, _ := Score(Float(50), Float(20), Float(0), Float(0))
	fast, _ := Score(Float(50), Float(20), Float(0.01), Float(0.01))
	if failed >= fast {
		t.Fatalf("expected failed latency phase to score below a fast one: %d >= %d", failed, fast)
	}
	absent, _ := Score(Float(50), Float(20), nil, nil)
	if failed != absent {
		t.Fatalf("expected zero latency and jitter to score like absent ones: %d != %d", failed, absent)
	}
}
