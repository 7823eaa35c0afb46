package speedtest

import "time"

// MetricStats is avg/min/max of one metric over a history, rounded to 2 decimals.
type MetricStats struct {
	Count int     `json:"count"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Stats summarizes a history.
//
// Metrics holds an entry only for metrics present in at least one result.
type Stats struct {
	TotalTests int                    `json:"total_tests"`
	FirstTest  time.Time              `json:"first_test"`
	LastTest   time.Time              `json:"last_test"`
	Metrics    map[string]MetricStats `json:"metrics"`
}

// Aggregate computes statistics over history. It returns nil for an empty
// history. First/last follow log order, not timestamp order.
func Aggregate(history []Result) *Stats {
	if len(history) == 0 {
		return nil
	}
	stats := &Stats{
		TotalTests: len(history),
		FirstTest:  history[0].Timestamp,
		LastTest:   history[len(history)-1].Timestamp,
		Metrics:    map[string]MetricStats{},
	}

	for _, m := range ComparedMetrics {
		var ms MetricStats
		var sum float64
		for _, r := range history {
			v := m.Get(r)
			if v == nil {
				continue
			}
			if ms.Count == 0 || *v < ms.Min {
				ms.Min = *v
			}
			if ms.Count == 0 || *v > ms.Max {
				ms.Max = *v
			}
			sum += *v
			ms.Count++
		}
		if ms.Count == 0 {
			continue
		}
		ms.Avg = round2(sum / float64(ms.Count))
		ms.Min = round2(ms.Min)
		ms.Max = round2(ms.Max)
		stats.Metrics[m.Key] = ms
	}
	return stats
}
