package speedtest

import "math"

// Score weights; they sum to 1.
const (
	weightDownload = 0.40
	weightUpload   = 0.20
	weightLatency  = 0.25
	weightJitter   = 0.15
)

// Score computes the 0-100 connection quality score.
//
// Absent inputs contribute nothing and the remaining weights are not
// re-normalized. A zero input also contributes nothing: zero is what a phase
// reports when every sample failed, and a failed latency phase must not
// score as a perfect one. ok is false when all four inputs are absent.
func Score(downloadMbps, uploadMbps, latencyMs, jitterMs *float64) (score int, ok bool) {
	if downloadMbps == nil && uploadMbps == nil && latencyMs == nil && jitterMs == nil {
		return 0, false
	}

	var total float64
	if v, ok := positive(downloadMbps); ok {
		total += math.Min(100, v/100*100) * weightDownload
	}
	if v, ok := positive(uploadMbps); ok {
		total += math.Min(100, v/50*100) * weightUpload
	}
	if v, ok := positive(latencyMs); ok {
		total += linearScore(v, 10, 200) * weightLatency
	}
	if v, ok := positive(jitterMs); ok {
		total += linearScore(v, 5, 50) * weightJitter
	}
	return int(math.RoundToEven(total)), true
}

// ScoreResult scores a result's four inputs.
func ScoreResult(r Result) (int, bool) {
	return Score(r.DownloadMbps, r.UploadMbps, r.LatencyMs, r.JitterMs)
}

// linearScore is 100 at or below best, 0 at or above worst, linear between.
func linearScore(v, best, worst float64) float64 {
	switch {
	case v <= best:
		return 100
	case v >= worst:
		return 0
	default:
		return 100 - (v-best)/(worst-best)*100
	}
}

func positive(p *float64) (float64, bool) {
	if p == nil || *p <= 0 || math.IsNaN(*p) {
		return 0, false
	}
	return *p, true
}

// Verdict is a one-word rating for a score.
func Verdict(score int) string {
	switch {
	case score >= 90:
		return "Excellent"
	case score >= 70:
		return "Good"
	case score >= 50:
		return "Fair"
	case score >= 30:
		return "Poor"
	default:
		return "Bad"
	}
}
