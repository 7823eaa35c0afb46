package config

// Config is the netcheck configuration file.
//
// All durations are Go duration strings (e.g. "50ms", "10s", "30m"). Omitted
// fields keep the values from Default().
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Endpoint EndpointConfig `json:"endpoint"`
	Latency  LatencyConfig  `json:"latency"`
	Download TransferConfig `json:"download"`
	Upload   TransferConfig `json:"upload"`
	Timeouts TimeoutsConfig `json:"timeouts"`
	History  HistoryConfig  `json:"history"`
	Schedule ScheduleConfig `json:"schedule"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// EndpointConfig describes the measurement endpoint.
//
// Example:
//
//	"endpoint": { "base_url": "https://speed.cloudflare.com", "http3": true }
type EndpointConfig struct {
	BaseURL  string `json:"base_url"`
	DownPath string `json:"down_path,omitempty"`
	UpPath   string `json:"up_path,omitempty"`
	TraceURL string `json:"trace_url,omitempty"`

	// DNSHost defaults to the host of base_url.
	DNSHost string `json:"dns_host,omitempty"`
	// DNSServers bypasses the system resolver ("1.1.1.1" or "1.1.1.1:53").
	DNSServers []string `json:"dns_servers,omitempty"`

	HTTP3              bool `json:"http3,omitempty"`
	DisableHTTP2       bool `json:"disable_http2,omitempty"`
	InsecureSkipVerify bool `json:"insecure_skip_verify,omitempty"`

	// ISPLookup asks speedtest.net for the ISP name during the info phase.
	ISPLookup bool `json:"isp_lookup,omitempty"`
}

type LatencyConfig struct {
	Samples int    `json:"samples"`
	Delay   string `json:"delay"`
}

// TransferConfig is a payload ladder in bytes, smallest first.
type TransferConfig struct {
	Sizes []int64 `json:"sizes"`
}

type TimeoutsConfig struct {
	Connect  string `json:"connect"`
	Latency  string `json:"latency"`
	Transfer string `json:"transfer"`
}

// HistoryConfig controls the result log.
//
// Example:
//
//	"history": { "driver": "sqlite", "path": "/var/lib/netcheck/history.db" }
type HistoryConfig struct {
	Driver     string `json:"driver"`
	Path       string `json:"path,omitempty"`
	MaxRecords int    `json:"max_records"`
	// BusyTimeout applies to the sqlite driver.
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// ScheduleConfig drives watch mode.
type ScheduleConfig struct {
	// Spec is a cron expression ("*/30 * * * *"), a descriptor ("@every 30m",
	// "@hourly"), a bare Go duration ("30m") or an HH:MM interval ("00:30").
	Spec string `json:"spec"`
	// MinGap is the minimum time between the start of two sessions.
	MinGap   string `json:"min_gap"`
	Timezone string `json:"timezone,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint served in watch mode.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	// Pprof also serves /debug/pprof/ on the metrics listener.
	Pprof bool `json:"pprof,omitempty"`
}
