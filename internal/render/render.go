// Package render prints results, comparisons and history as terminal tables.
package render

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"netcheck/pkg/speedtest"
)

// NA is printed for values that were never measured.
const NA = "N/A"

const timeLayout = "2006-01-02 15:04:05"

// Renderer writes tables to out.
type Renderer struct {
	out io.Writer
}

func New(out io.Writer) *Renderer { return &Renderer{out: out} }

// Value formats an optional metric: "N/A" when absent, two decimals otherwise.
// A measured zero prints as 0.00.
func Value(p *float64, unit string) string {
	if p == nil {
		return NA
	}
	s := strconv.FormatFloat(*p, 'f', 2, 64)
	if unit != "" {
		s += " " + unit
	}
	return s
}

func text(p *string) string {
	if p == nil || *p == "" {
		return NA
	}
	return *p
}

func score(p *int) string {
	if p == nil {
		return NA
	}
	return fmt.Sprintf("%d/100 (%s)", *p, speedtest.Verdict(*p))
}

func (r *Renderer) table(header []string, rows [][]string) error {
	t := tablewriter.NewTable(r.out, tablewriter.WithHeader(header))
	for _, row := range rows {
		if err := t.Append(row); err != nil {
			return err
		}
	}
	return t.Render()
}

// Result prints every field of a result.
func (r *Renderer) Result(res speedtest.Result) error {
	fmt.Fprintf(r.out, "\nTest results (%s)\n", res.Timestamp.Local().Format(timeLayout))
	return r.table([]string{"Metric", "Value"}, [][]string{
		{"Download", Value(res.DownloadMbps, "Mbps")},
		{"Upload", Value(res.UploadMbps, "Mbps")},
		{"Latency", Value(res.LatencyMs, "ms")},
		{"Jitter", Value(res.JitterMs, "ms")},
		{"Loaded latency", Value(res.LoadedLatencyMs, "ms")},
		{"TTFB", Value(res.TTFBMs, "ms")},
		{"DNS lookup", Value(res.DNSMs, "ms")},
		{"Quality score", score(res.QualityScore)},
		{"Server", text(res.ServerLocation)},
		{"Server IP", text(res.ServerIP)},
		{"Client IP", text(res.ClientIP)},
		{"ISP", text(res.ISP)},
	})
}

// Comparison prints current values next to the previous run.
func (r *Renderer) Comparison(cur speedtest.Result, cmps []speedtest.Comparison) error {
	if err := r.Result(cur); err != nil {
		return err
	}
	if len(cmps) == 0 {
		return nil
	}
	fmt.Fprintln(r.out, "\nCompared with previous test")
	rows := make([][]string, 0, len(cmps))
	for _, c := range cmps {
		rows = append(rows, []string{
			c.Name,
			strconv.FormatFloat(c.Current, 'f', 2, 64) + " " + c.Unit,
			strconv.FormatFloat(c.Previous, 'f', 2, 64) + " " + c.Unit,
			changeLabel(c),
		})
	}
	return r.table([]string{"Metric", "Current", "Previous", "Change"}, rows)
}

func changeLabel(c speedtest.Comparison) string {
	mark := "="
	switch {
	case c.Difference == 0:
	case c.IsImprovement:
		mark = "better"
	default:
		mark = "worse"
	}
	return fmt.Sprintf("%+.2f (%+.1f%%) %s", c.Difference, c.PercentChange, mark)
}

// History prints results oldest first.
func (r *Renderer) History(hist []speedtest.Result) error {
	if len(hist) == 0 {
		_, err := fmt.Fprintln(r.out, "No test history.")
		return err
	}
	rows := make([][]string, 0, len(hist))
	for _, h := range hist {
		q := NA
		if h.QualityScore != nil {
			q = strconv.Itoa(*h.QualityScore)
		}
		rows = append(rows, []string{
			h.Timestamp.Local().Format(timeLayout),
			Value(h.DownloadMbps, ""),
			Value(h.UploadMbps, ""),
			Value(h.LatencyMs, ""),
			Value(h.JitterMs, ""),
			q,
			text(h.ServerLocation),
		})
	}
	return r.table([]string{"Time", "Down (Mbps)", "Up (Mbps)", "Latency (ms)", "Jitter (ms)", "Score", "Server"}, rows)
}

// Stats prints history statistics. nil means there is no history.
func (r *Renderer) Stats(st *speedtest.Stats) error {
	if st == nil {
		_, err := fmt.Fprintln(r.out, "No test history.")
		return err
	}
	fmt.Fprintf(r.out, "\n%d tests from %s to %s\n", st.TotalTests,
		st.FirstTest.Local().Format(timeLayout), st.LastTest.Local().Format(timeLayout))

	rows := make([][]string, 0, len(speedtest.ComparedMetrics))
	for _, m := range speedtest.ComparedMetrics {
		ms, ok := st.Metrics[m.Key]
		if !ok {
			continue
		}
		rows = append(rows, []string{
			m.Name + " (" + m.Unit + ")",
			strconv.FormatFloat(ms.Avg, 'f', 2, 64),
			strconv.FormatFloat(ms.Min, 'f', 2, 64),
			strconv.FormatFloat(ms.Max, 'f', 2, 64),
			strconv.Itoa(ms.Count),
		})
	}
	return r.table([]string{"Metric", "Avg", "Min", "Max", "Samples"}, rows)
}

// qualityAdvice describes what a verdict means in practice.
var qualityAdvice = map[string]string{
	"Excellent": "Your connection is top-tier.",
	"Good":      "Your connection handles most tasks well.",
	"Fair":      "You may experience some issues with video calls or gaming.",
	"Poor":      "Consider troubleshooting your connection.",
	"Bad":       "Your connection needs attention.",
}

// Quality prints the score, its verdict and its inputs.
func (r *Renderer) Quality(res speedtest.Result) error {
	fmt.Fprintf(r.out, "\nConnection quality: %s\n", score(res.QualityScore))
	if res.QualityScore != nil {
		fmt.Fprintf(r.out, "%s\n", qualityAdvice[speedtest.Verdict(*res.QualityScore)])
	}
	return r.table([]string{"Input", "Value"}, [][]string{
		{"Download", Value(res.DownloadMbps, "Mbps")},
		{"Upload", Value(res.UploadMbps, "Mbps")},
		{"Latency", Value(res.LatencyMs, "ms")},
		{"Jitter", Value(res.JitterMs, "ms")},
	})
}

// Line prints a single labelled metric.
func (r *Renderer) Line(label string, p *float64, unit string) error {
	_, err := fmt.Fprintf(r.out, "%s: %s\n", label, Value(p, unit))
	return err
}

// DNSAdvice rates a DNS lookup time in milliseconds.
func DNSAdvice(ms float64) string {
	switch {
	case ms < 20:
		return "Excellent DNS response time."
	case ms < 50:
		return "Good DNS response time."
	case ms < 100:
		return "DNS is a bit slow. Consider a faster resolver such as 1.1.1.1 or 8.8.8.8."
	default:
		return "DNS is slow. Try switching to 1.1.1.1 or 8.8.8.8."
	}
}

// DNS prints the lookup time and a rating. A failed lookup is reported as 0.
func (r *Renderer) DNS(res speedtest.Result) error {
	if err := r.Line("DNS lookup", res.DNSMs, "ms"); err != nil {
		return err
	}
	if res.DNSMs == nil || *res.DNSMs == 0 {
		_, err := fmt.Fprintln(r.out, "DNS lookup failed.")
		return err
	}
	_, err := fmt.Fprintln(r.out, DNSAdvice(*res.DNSMs))
	return err
}

// Elapsed prints how long a session took.
func (r *Renderer) Elapsed(d time.Duration) {
	fmt.Fprintf(r.out, "\nCompleted in %s\n", d.Round(10*time.Millisecond))
}
