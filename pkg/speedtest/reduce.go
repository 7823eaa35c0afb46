package speedtest

import (
	"errors"
	"math"
	"strconv"
	"time"
)

// ErrAllSamplesFailed is returned by reducers when a phase produced nothing.
var ErrAllSamplesFailed = errors.New("all samples failed")

// LatencyStats is the reduction of a latency phase, in milliseconds.
type LatencyStats struct {
	Latency float64
	Jitter  float64
	TTFB    float64
	Samples int
}

// ReduceLatency turns round-trip samples into latency, jitter and TTFB.
// With no samples all three are zero.
func ReduceLatency(samples []Sample) LatencyStats {
	if len(samples) == 0 {
		return LatencyStats{}
	}
	rtts := make([]float64, 0, len(samples))
	ttfbs := make([]float64, 0, len(samples))
	for _, s := range samples {
		rtts = append(rtts, millis(s.Total))
		ttfbs = append(ttfbs, millis(s.TTFB))
	}
	return LatencyStats{
		Latency: round2(mean(rtts)),
		Jitter:  round2(Jitter(rtts)),
		TTFB:    round2(mean(ttfbs)),
		Samples: len(samples),
	}
}

// Jitter is the mean absolute difference between consecutive samples.
// Fewer than two samples yield zero.
func Jitter(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(samples); i++ {
		sum += math.Abs(samples[i] - samples[i-1])
	}
	return sum / float64(len(samples)-1)
}

// Mbps converts a transfer into megabits per second.
// ok is false for non-positive durations.
func Mbps(bytes int64, d time.Duration) (float64, bool) {
	secs := d.Seconds()
	if secs <= 0 || bytes < 0 {
		return 0, false
	}
	return float64(bytes) * 8 / (secs * 1e6), true
}

// MaxThroughput returns the highest per-size throughput, or
// ErrAllSamplesFailed when there is none.
func MaxThroughput(speeds []float64) (float64, error) {
	if len(speeds) == 0 {
		return 0, ErrAllSamplesFailed
	}
	best := speeds[0]
	for _, v := range speeds[1:] {
		if v > best {
			best = v
		}
	}
	return round2(best), nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// sizeLabel renders payload sizes the way progress details show them.
func sizeLabel(n int64) string {
	if n >= 1_000_000 {
		return strconv.FormatInt(n/1_000_000, 10) + "MB"
	}
	return strconv.FormatInt(n/1_000, 10) + "KB"
}
