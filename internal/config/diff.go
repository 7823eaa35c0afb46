package config

import (
	"reflect"
	"strings"

	"netcheck/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and a few
// safe fields describing the new values, for the reload log line.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Endpoint, newCfg.Endpoint) {
		changed = append(changed, "endpoint")
		attrs = append(attrs,
			logx.String("endpoint.base_url", strings.TrimSpace(newCfg.Endpoint.BaseURL)),
			logx.Bool("endpoint.http3", newCfg.Endpoint.HTTP3),
		)
	}
	if !reflect.DeepEqual(oldCfg.Latency, newCfg.Latency) {
		changed = append(changed, "latency")
		attrs = append(attrs, logx.Int("latency.samples", newCfg.Latency.Samples))
	}
	if !reflect.DeepEqual(oldCfg.Download, newCfg.Download) {
		changed = append(changed, "download")
		attrs = append(attrs, logx.Int("download.sizes", len(newCfg.Download.Sizes)))
	}
	if !reflect.DeepEqual(oldCfg.Upload, newCfg.Upload) {
		changed = append(changed, "upload")
		attrs = append(attrs, logx.Int("upload.sizes", len(newCfg.Upload.Sizes)))
	}
	if oldCfg.Timeouts != newCfg.Timeouts {
		changed = append(changed, "timeouts")
	}
	if oldCfg.History != newCfg.History {
		changed = append(changed, "history")
		attrs = append(attrs, logx.String("history.driver", newCfg.History.Driver))
	}
	if oldCfg.Schedule != newCfg.Schedule {
		changed = append(changed, "schedule")
		attrs = append(attrs,
			logx.String("schedule.spec", newCfg.Schedule.Spec),
			logx.String("schedule.min_gap", newCfg.Schedule.MinGap),
		)
	}
	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		attrs = append(attrs, logx.Bool("metrics.enabled", newCfg.Metrics.Enabled))
	}
	return changed, attrs
}
