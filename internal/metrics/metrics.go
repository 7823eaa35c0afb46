// Package metrics exposes the most recent measurement session as Prometheus
// gauges.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"netcheck/pkg/speedtest"
)

const namespace = "netcheck"

// Session outcomes used as the status label of netcheck_sessions_total.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Exporter holds the collectors on its own registry so tests and repeated
// watch runs never collide with the global default registry.
type Exporter struct {
	reg *prometheus.Registry

	downloadMbps  prometheus.Gauge
	uploadMbps    prometheus.Gauge
	latencyMs     prometheus.Gauge
	jitterMs      prometheus.Gauge
	loadedLatency prometheus.Gauge
	ttfbMs        prometheus.Gauge
	dnsMs         prometheus.Gauge
	qualityScore  prometheus.Gauge
	lastSession   prometheus.Gauge
	sessions      *prometheus.CounterVec
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
}

// New builds an exporter with all collectors registered.
func New() *Exporter {
	e := &Exporter{
		reg:           prometheus.NewRegistry(),
		downloadMbps:  gauge("download_mbps", "Download throughput of the last session in Mbps"),
		uploadMbps:    gauge("upload_mbps", "Upload throughput of the last session in Mbps"),
		latencyMs:     gauge("latency_ms", "Mean idle latency of the last session in milliseconds"),
		jitterMs:      gauge("jitter_ms", "Jitter of the last session in milliseconds"),
		loadedLatency: gauge("loaded_latency_ms", "Mean latency right after large downloads in the last session, in milliseconds"),
		ttfbMs:        gauge("ttfb_ms", "Mean time to first byte of the last session in milliseconds"),
		dnsMs:         gauge("dns_ms", "DNS resolution time of the last session in milliseconds"),
		qualityScore:  gauge("quality_score", "Connection quality score (0-100) of the last session"),
		lastSession:   gauge("last_session_timestamp_seconds", "Unix time of the last completed session"),
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Measurement sessions by outcome",
			},
			[]string{"status"},
		),
	}
	e.reg.MustRegister(
		e.downloadMbps,
		e.uploadMbps,
		e.latencyMs,
		e.jitterMs,
		e.loadedLatency,
		e.ttfbMs,
		e.dnsMs,
		e.qualityScore,
		e.lastSession,
		e.sessions,
	)
	// Both outcomes exist from the first scrape.
	e.sessions.WithLabelValues(StatusOK)
	e.sessions.WithLabelValues(StatusFailed)
	return e
}

// Registry returns the registry backing the exporter.
func (e *Exporter) Registry() *prometheus.Registry { return e.reg }

// Publish records a completed session. Metrics the session did not measure
// keep their previous value.
func (e *Exporter) Publish(r *speedtest.Result) {
	if r == nil {
		return
	}
	set(e.downloadMbps, r.DownloadMbps)
	set(e.uploadMbps, r.UploadMbps)
	set(e.latencyMs, r.LatencyMs)
	set(e.jitterMs, r.JitterMs)
	set(e.loadedLatency, r.LoadedLatencyMs)
	set(e.ttfbMs, r.TTFBMs)
	set(e.dnsMs, r.DNSMs)
	if r.QualityScore != nil {
		e.qualityScore.Set(float64(*r.QualityScore))
	}
	e.lastSession.Set(float64(r.Timestamp.Unix()))
	e.sessions.WithLabelValues(StatusOK).Inc()
}

// RecordFailure counts a session that returned an error.
func (e *Exporter) RecordFailure() {
	e.sessions.WithLabelValues(StatusFailed).Inc()
}

func set(g prometheus.Gauge, v *float64) {
	if v != nil {
		g.Set(*v)
	}
}
