package speedtest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Result is a single measurement session.
//
// Optional values are pointers: nil means "not measured this session", which
// is different from a measured zero (a phase that ran and failed).
//
// IMPORTANT: JSON tags are kept stable because results are persisted to the
// history file. Changing tags can break existing history.
type Result struct {
	Timestamp       time.Time `json:"timestamp"`
	DownloadMbps    *float64  `json:"download_mbps"`
	UploadMbps      *float64  `json:"upload_mbps"`
	LatencyMs       *float64  `json:"latency_ms"`
	JitterMs        *float64  `json:"jitter_ms"`
	LoadedLatencyMs *float64  `json:"loaded_latency_ms"`
	TTFBMs          *float64  `json:"ttfb_ms"`
	DNSMs           *float64  `json:"dns_ms"`
	QualityScore    *int      `json:"quality_score"`
	ServerLocation  *string   `json:"server_location"`
	ServerIP        *string   `json:"server_ip"`
	ClientIP        *string   `json:"client_ip"`
	ISP             *string   `json:"isp"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }

// Value dereferences an optional float; ok is false when it is absent.
func Value(p *float64) (v float64, ok bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

// timestampLayouts are accepted on read. Older history files store naive
// local timestamps without a zone.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses an ISO-8601 timestamp with or without a zone.
// Zone-less values are interpreted in the local zone.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if strings.Contains(layout, "Z07") {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// UnmarshalJSON tolerates missing optional fields (they stay nil) and
// zone-less timestamps.
func (r *Result) UnmarshalJSON(b []byte) error {
	type plain Result
	var aux struct {
		plain
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if aux.Timestamp == "" {
		return fmt.Errorf("result: missing timestamp")
	}
	ts, err := ParseTimestamp(aux.Timestamp)
	if err != nil {
		return fmt.Errorf("result: %w", err)
	}
	*r = Result(aux.plain)
	r.Timestamp = ts
	return nil
}

// Phase names a measurement phase in progress events.
type Phase string

const (
	PhaseDNS      Phase = "dns"
	PhaseInfo     Phase = "info"
	PhaseLatency  Phase = "latency"
	PhaseDownload Phase = "download"
	PhaseUpload   Phase = "upload"
)

// Mode selects which phases a session runs.
type Mode string

const (
	ModeFull     Mode = "full"
	ModeLatency  Mode = "latency"
	ModeDownload Mode = "download"
	ModeUpload   Mode = "upload"
	ModeDNS      Mode = "dns"
)

// ParseMode accepts the mode names used on the command line.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "speed", "quality", "":
		return ModeFull, nil
	case "latency", "jitter", "ttfb":
		return ModeLatency, nil
	case "download":
		return ModeDownload, nil
	case "upload":
		return ModeUpload, nil
	case "dns":
		return ModeDNS, nil
	default:
		return "", fmt.Errorf("unknown test mode %q", s)
	}
}

// ProgressEvent is a single progress update.
// Fraction is in [0,1] and is monotonic within a phase.
type ProgressEvent struct {
	Phase    Phase
	Fraction float64
	Detail   string
}

// ProgressSink receives progress events. Implementations must not block the
// caller; see internal/progress for a non-blocking fanout.
type ProgressSink interface {
	Progress(ev ProgressEvent)
}

type nopSink struct{}

func (nopSink) Progress(ProgressEvent) {}

// ServerInfo is what the endpoint tells us about the session.
type ServerInfo struct {
	Location string
	ClientIP string
	ServerIP string
}

const unknown = "Unknown"
