package render

import (
	"context"
	"fmt"
	"io"

	"netcheck/internal/progress"
	"netcheck/pkg/speedtest"
)

var phaseTitles = map[speedtest.Phase]string{
	speedtest.PhaseDNS:      "Resolving DNS",
	speedtest.PhaseInfo:     "Fetching server info",
	speedtest.PhaseLatency:  "Measuring latency",
	speedtest.PhaseDownload: "Testing download",
	speedtest.PhaseUpload:   "Testing upload",
}

// PrintProgress writes one line per progress update until ch closes or ctx
// is done. Repeated updates with the same fraction are collapsed.
func PrintProgress(ctx context.Context, w io.Writer, ch <-chan progress.Event) {
	var (
		lastPhase speedtest.Phase
		lastPct   = -1
	)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			pct := int(ev.Fraction * 100)
			if ev.Phase == lastPhase && pct == lastPct {
				continue
			}
			lastPhase, lastPct = ev.Phase, pct
			fmt.Fprintln(w, ProgressLine(ev.ProgressEvent))
		}
	}
}

// ProgressLine formats a single event, e.g. "Testing download 50% (1MB)".
func ProgressLine(ev speedtest.ProgressEvent) string {
	title, ok := phaseTitles[ev.Phase]
	if !ok {
		title = string(ev.Phase)
	}
	line := fmt.Sprintf("%s %3d%%", title, int(ev.Fraction*100))
	if ev.Detail != "" {
		line += " (" + ev.Detail + ")"
	}
	return line
}
