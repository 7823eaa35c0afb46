package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"netcheck/pkg/logx"
	"netcheck/pkg/speedtest"
)

const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	// DriverNone disables persistence.
	DriverNone = "none"

	appDir = "netcheck"

	defaultMetricsAddr = "127.0.0.1:9469"
)

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Logging: LoggingConfig{Level: "warn", Console: true},
		Endpoint: EndpointConfig{
			BaseURL:  speedtest.DefaultBaseURL,
			DownPath: speedtest.DefaultDownPath,
			UpPath:   speedtest.DefaultUpPath,
			TraceURL: speedtest.DefaultTraceURL,
		},
		Latency:  LatencyConfig{Samples: speedtest.DefaultLatencySamples, Delay: "50ms"},
		Download: TransferConfig{Sizes: append([]int64(nil), speedtest.DefaultDownloadSizes...)},
		Upload:   TransferConfig{Sizes: append([]int64(nil), speedtest.DefaultUploadSizes...)},
		Timeouts: TimeoutsConfig{Connect: "10s", Latency: "30s", Transfer: "60s"},
		History:  HistoryConfig{Driver: DriverFile, MaxRecords: speedtest.DefaultHistoryMaxRecords},
		Schedule: ScheduleConfig{Spec: "@every 30m", MinGap: "5m"},
		Metrics:  MetricsConfig{Addr: defaultMetricsAddr},
	}
}

// DefaultPath is where the CLI looks for a config file when --config is not given.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "netcheck.yaml"
	}
	return filepath.Join(dir, appDir, "config.yaml")
}

// DefaultHistoryPath returns the history location for a driver.
func DefaultHistoryPath(driver string) string {
	name := "history.json"
	if driver == DriverSQLite {
		name = "history.db"
	}
	return filepath.Join(userDataDir(), appDir, name)
}

// userDataDir follows the XDG layout on unix and the roaming config dir elsewhere.
func userDataDir() string {
	switch runtime.GOOS {
	case "windows", "darwin", "ios":
		if d, err := os.UserConfigDir(); err == nil {
			return d
		}
	default:
		if d := os.Getenv("XDG_DATA_HOME"); d != "" {
			return d
		}
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, ".local", "share")
		}
	}
	return "."
}

// applyDefaults fills zero values that survive decoding (e.g. an explicit
// "sizes": [] or "max_records": 0).
func (c *Config) applyDefaults() {
	def := Default()
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = def.Logging.Level
	}
	if strings.TrimSpace(c.Endpoint.BaseURL) == "" {
		c.Endpoint.BaseURL = def.Endpoint.BaseURL
	}
	if c.Latency.Samples <= 0 {
		c.Latency.Samples = def.Latency.Samples
	}
	if len(c.Download.Sizes) == 0 {
		c.Download.Sizes = def.Download.Sizes
	}
	if len(c.Upload.Sizes) == 0 {
		c.Upload.Sizes = def.Upload.Sizes
	}
	c.History.Driver = strings.ToLower(strings.TrimSpace(c.History.Driver))
	if c.History.Driver == "" {
		c.History.Driver = DriverFile
	}
	if c.History.MaxRecords <= 0 {
		c.History.MaxRecords = def.History.MaxRecords
	}
	if strings.TrimSpace(c.History.Path) == "" && c.History.Driver != DriverNone {
		c.History.Path = DefaultHistoryPath(c.History.Driver)
	}
	if strings.TrimSpace(c.Schedule.Spec) == "" {
		c.Schedule.Spec = def.Schedule.Spec
	}
	if strings.TrimSpace(c.Metrics.Addr) == "" {
		c.Metrics.Addr = def.Metrics.Addr
	}
}

// Validate checks values that decoding cannot.
func (c *Config) Validate() error {
	var errs []error
	if _, ok := logx.ParseLevel(c.Logging.Level); !ok {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	if u, err := url.Parse(c.Endpoint.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("endpoint.base_url: must be an absolute http(s) URL, got %q", c.Endpoint.BaseURL))
	}
	if c.Endpoint.HTTP3 && c.Endpoint.DisableHTTP2 {
		errs = append(errs, errors.New("endpoint: http3 and disable_http2 are mutually exclusive"))
	}
	for _, sz := range c.Download.Sizes {
		if sz <= 0 {
			errs = append(errs, fmt.Errorf("download.sizes: size must be > 0, got %d", sz))
		}
	}
	for _, sz := range c.Upload.Sizes {
		if sz <= 0 {
			errs = append(errs, fmt.Errorf("upload.sizes: size must be > 0, got %d", sz))
		}
	}
	switch c.History.Driver {
	case DriverFile, DriverSQLite, DriverNone:
	default:
		errs = append(errs, fmt.Errorf("history.driver: unknown driver %q", c.History.Driver))
	}
	if _, err := c.RunConfig(); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("schedule.min_gap", c.Schedule.MinGap); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("history.busy_timeout", c.History.BusyTimeout); err != nil {
		errs = append(errs, err)
	}
	if tz := strings.TrimSpace(c.Schedule.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("schedule.timezone: %w", err))
		}
	}
	return errors.Join(errs...)
}

// RunConfig converts the measurement sections into a runner configuration.
func (c *Config) RunConfig() (speedtest.RunConfig, error) {
	// An explicit "0s" delay is honored; only an empty value falls back.
	delay := speedtest.DefaultSampleDelay
	if strings.TrimSpace(c.Latency.Delay) != "" {
		d, err := ParseDurationField("latency.delay", c.Latency.Delay)
		if err != nil {
			return speedtest.RunConfig{}, err
		}
		delay = d
	}
	connect, err := ParseDurationOrDefault("timeouts.connect", c.Timeouts.Connect, 10*time.Second)
	if err != nil {
		return speedtest.RunConfig{}, err
	}
	latency, err := ParseDurationOrDefault("timeouts.latency", c.Timeouts.Latency, speedtest.DefaultLatencyTimeout)
	if err != nil {
		return speedtest.RunConfig{}, err
	}
	transfer, err := ParseDurationOrDefault("timeouts.transfer", c.Timeouts.Transfer, speedtest.DefaultTransferTimeout)
	if err != nil {
		return speedtest.RunConfig{}, err
	}

	ep := c.Endpoint
	return speedtest.RunConfig{
		Endpoint: speedtest.Endpoint{
			BaseURL:    ep.BaseURL,
			DownPath:   ep.DownPath,
			UpPath:     ep.UpPath,
			TraceURL:   ep.TraceURL,
			DNSHost:    ep.DNSHost,
			DNSServers: append([]string(nil), ep.DNSServers...),
		},
		Client: speedtest.ClientConfig{
			ConnectTimeout:     connect,
			HTTP3:              ep.HTTP3,
			DisableHTTP2:       ep.DisableHTTP2,
			InsecureSkipVerify: ep.InsecureSkipVerify,
		},
		LatencySamples:  c.Latency.Samples,
		SampleDelay:     delay,
		DownloadSizes:   append([]int64(nil), c.Download.Sizes...),
		UploadSizes:     append([]int64(nil), c.Upload.Sizes...),
		LatencyTimeout:  latency,
		TransferTimeout: transfer,
		ISPLookup:       ep.ISPLookup,
	}, nil
}

// LogConfig converts the logging section.
func (c *Config) LogConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File:    logx.FileConfig{Enabled: c.Logging.File.Enabled, Path: c.Logging.File.Path},
	}
}
