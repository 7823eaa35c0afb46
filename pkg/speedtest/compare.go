package speedtest

// Comparison describes how one metric moved between two results.
type Comparison struct {
	Metric        string  `json:"metric"`
	Name          string  `json:"name"`
	Unit          string  `json:"unit"`
	Current       float64 `json:"current"`
	Previous      float64 `json:"previous"`
	Difference    float64 `json:"difference"`
	PercentChange float64 `json:"percent_change"`
	IsImprovement bool    `json:"is_improvement"`
}

// MetricSpec names a comparable metric and how to read it from a Result.
type MetricSpec struct {
	Key            string
	Name           string
	Unit           string
	HigherIsBetter bool
	Get            func(Result) *float64
}

// ComparedMetrics lists the metrics used by Compare and Aggregate, in display order.
var ComparedMetrics = []MetricSpec{
	{Key: "download_mbps", Name: "Download", Unit: "Mbps", HigherIsBetter: true, Get: func(r Result) *float64 { return r.DownloadMbps }},
	{Key: "upload_mbps", Name: "Upload", Unit: "Mbps", HigherIsBetter: true, Get: func(r Result) *float64 { return r.UploadMbps }},
	{Key: "latency_ms", Name: "Latency", Unit: "ms", HigherIsBetter: false, Get: func(r Result) *float64 { return r.LatencyMs }},
	{Key: "jitter_ms", Name: "Jitter", Unit: "ms", HigherIsBetter: false, Get: func(r Result) *float64 { return r.JitterMs }},
}

// Compare reports per-metric changes from previous to current.
//
// A metric is skipped when either value is absent or the previous value is
// exactly zero (no percent change can be computed).
func Compare(current, previous Result) map[string]Comparison {
	out := make(map[string]Comparison, len(ComparedMetrics))
	for _, m := range ComparedMetrics {
		cur, prev := m.Get(current), m.Get(previous)
		if cur == nil || prev == nil || *prev == 0 {
			continue
		}
		diff := *cur - *prev
		improved := diff < 0
		if m.HigherIsBetter {
			improved = diff > 0
		}
		out[m.Key] = Comparison{
			Metric:        m.Key,
			Name:          m.Name,
			Unit:          m.Unit,
			Current:       *cur,
			Previous:      *prev,
			Difference:    diff,
			PercentChange: diff / *prev * 100,
			IsImprovement: improved,
		}
	}
	return out
}

// Ordered returns comparisons in ComparedMetrics order.
func Ordered(cmp map[string]Comparison) []Comparison {
	out := make([]Comparison, 0, len(cmp))
	for _, m := range ComparedMetrics {
		if c, ok := cmp[m.Key]; ok {
			out = append(out, c)
		}
	}
	return out
}
