package speedtest

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestResultJSONRoundTrip(t *testing.T) {
	in := Result{
		Timestamp:      time.Date(2024, 5, 6, 7, 8, 9, 123000000, time.UTC),
		DownloadMbps:   Float(93.41),
		UploadMbps:     Float(0),
		LatencyMs:      Float(12.5),
		QualityScore:   Int(77),
		ServerLocation: String("AMS"),
	}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Result
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Timestamp.Equal(in.Timestamp) {
		t.Fatalf("timestamp changed: %v != %v", out.Timestamp, in.Timestamp)
	}
	out.Timestamp = in.Timestamp
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch:\n in=%+v\nout=%+v", in, out)
	}
	if out.JitterMs != nil || out.ISP != nil {
		t.Fatalf("absent fields must stay absent")
	}
	if out.UploadMbps == nil || *out.UploadMbps != 0 {
		t.Fatalf("measured zero must survive as zero")
	}
}

func TestResultUnmarshalLegacy(t *testing.T) {
	raw := `{"timestamp":"2024-01-02T03:04:05.678901","download_mbps":50.5,"latency_ms":null}`
	var r Result
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := time.Date(2024, 1, 2, 3, 4, 5, 678901000, time.Local)
	if !r.Timestamp.Equal(want) {
		t.Fatalf("expected %v, got %v", want, r.Timestamp)
	}
	if r.DownloadMbps == nil || *r.DownloadMbps != 50.5 {
		t.Fatalf("unexpected download: %v", r.DownloadMbps)
	}
	if r.LatencyMs != nil || r.UploadMbps != nil {
		t.Fatalf("expected missing and null fields to be absent")
	}
}

func TestResultUnmarshalRejectsBadTimestamp(t *testing.T) {
	for _, raw := range []string{`{}`, `{"timestamp":"yesterday"}`} {
		var r Result
		if err := json.Unmarshal([]byte(raw), &r); err == nil {
			t.Fatalf("expected error for %s", raw)
		}
	}
}

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"":         ModeFull,
		"speed":    ModeFull,
		"Quality":  ModeFull,
		"jitter":   ModeLatency,
		"ttfb":     ModeLatency,
		"download": ModeDownload,
		"upload":   ModeUpload,
		"dns":      ModeDNS,
	}
	for in, want := range cases {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseMode("ping"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestParseTrace(t *testing.T) {
	body := "fl=123\nh=1.1.1.1\nip=203.0.113.7\nts=1700000000.1\ncolo=FRA\nnoequals\nuag=a=b\n"
	got, err := ParseTrace(strings.NewReader(body))
	if err != nil {
		t.Fatalf("ParseTrace: %v", err)
	}
	if got["ip"] != "203.0.113.7" || got["colo"] != "FRA" || got["uag"] != "a=b" {
		t.Fatalf("unexpected trace: %+v", got)
	}
	if _, ok := got["noequals"]; ok {
		t.Fatalf("lines without '=' must be ignored")
	}
}
