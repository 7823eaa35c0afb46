package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug").With(String("mode", "full"))

	v := 12.5
	log.Info("phase done", Float64("fraction", 1), OptFloat64("latency_ms", &v), OptFloat64("jitter_ms", nil), Err(errors.New("boom")))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if m["mode"] != "full" {
		t.Fatalf("mode=%v", m["mode"])
	}
	if m["latency_ms"] != 12.5 {
		t.Fatalf("latency_ms=%v", m["latency_ms"])
	}
	if _, ok := m["jitter_ms"]; ok {
		t.Fatalf("absent optional field was logged")
	}
	if m["message"] != "phase done" {
		t.Fatalf("message=%v", m["message"])
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info written at warn level: %q", buf.String())
	}
	if log.Enabled(LevelInfo) {
		t.Fatalf("info should not be enabled")
	}
	log.Warn("shown")
	if buf.Len() == 0 {
		t.Fatalf("warn not written")
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatalf("zero logger should report IsZero")
	}
	l.Error("nothing happens")
	Nop().Info("nothing happens")
}

func TestParseLevel(t *testing.T) {
	if lvl, ok := ParseLevel("Warning"); !ok || lvl != LevelWarn {
		t.Fatalf("ParseLevel(Warning) = %v, %v", lvl, ok)
	}
	if _, ok := ParseLevel("loud"); ok {
		t.Fatalf("ParseLevel(loud) should fail")
	}
}
