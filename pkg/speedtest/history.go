package speedtest

import "time"

// DefaultHistoryMaxRecords bounds the result log when nothing else is configured.
const DefaultHistoryMaxRecords = 100

// AppendBounded appends r and keeps only the newest maxSize entries.
//
// Eviction is FIFO by append order, not by timestamp; callers append in time
// order. The returned slice never aliases the input, so views handed out
// earlier stay valid. maxSize <= 0 uses DefaultHistoryMaxRecords.
func AppendBounded(history []Result, r Result, maxSize int) []Result {
	return KeepNewest(history, r, maxSize)
}

// KeepNewest is AppendBounded for any record type, so stores that wrap
// results in their own envelope bound them the same way.
func KeepNewest[T any](items []T, v T, maxSize int) []T {
	if maxSize <= 0 {
		maxSize = DefaultHistoryMaxRecords
	}
	n := len(items) + 1
	start := 0
	if n > maxSize {
		start = n - maxSize
	}
	out := make([]T, 0, n-start)
	if start < len(items) {
		out = append(out, items[start:]...)
	}
	return append(out, v)
}

// Latest returns the most recently appended result.
func Latest(history []Result) (Result, bool) {
	if len(history) == 0 {
		return Result{}, false
	}
	return history[len(history)-1], true
}

// Since returns results with a timestamp at or after t, in log order.
func Since(history []Result, t time.Time) []Result {
	out := make([]Result, 0, len(history))
	for _, r := range history {
		if !r.Timestamp.Before(t) {
			out = append(out, r)
		}
	}
	return out
}

// LastN returns the newest n results, oldest first.
func LastN(history []Result, n int) []Result {
	if n <= 0 || len(history) == 0 {
		return []Result{}
	}
	if n > len(history) {
		n = len(history)
	}
	out := make([]Result, n)
	copy(out, history[len(history)-n:])
	return out
}
