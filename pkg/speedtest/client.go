package speedtest

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
)

// Endpoint describes the measurement endpoint. Defaults follow the public
// speed.cloudflare.com layout.
type Endpoint struct {
	BaseURL  string
	DownPath string
	UpPath   string
	TraceURL string
	// DNSHost is the name resolved by the DNS probe. Defaults to the host of BaseURL.
	DNSHost string
	// DNSServers optionally overrides the system resolver ("ip" or "ip:port").
	DNSServers []string
}

const (
	DefaultBaseURL  = "https://speed.cloudflare.com"
	DefaultDownPath = "/__down"
	DefaultUpPath   = "/__up"
	DefaultTraceURL = "https://1.1.1.1/cdn-cgi/trace"
)

func (e Endpoint) withDefaults() Endpoint {
	if strings.TrimSpace(e.BaseURL) == "" {
		e.BaseURL = DefaultBaseURL
	}
	e.BaseURL = strings.TrimRight(e.BaseURL, "/")
	if e.DownPath == "" {
		e.DownPath = DefaultDownPath
	}
	if e.UpPath == "" {
		e.UpPath = DefaultUpPath
	}
	if e.TraceURL == "" {
		e.TraceURL = DefaultTraceURL
	}
	if e.DNSHost == "" {
		if u, err := url.Parse(e.BaseURL); err == nil {
			e.DNSHost = u.Hostname()
		}
	}
	return e
}

func (e Endpoint) downURL(bytes int64) string {
	return fmt.Sprintf("%s%s?bytes=%d", e.BaseURL, e.DownPath, bytes)
}

func (e Endpoint) upURL() string {
	return e.BaseURL + e.UpPath
}

// ClientConfig controls the HTTP client used for probing.
type ClientConfig struct {
	// ConnectTimeout bounds connection establishment (dial + TLS).
	ConnectTimeout time.Duration
	// HTTP3 switches the transport to QUIC.
	HTTP3 bool
	// DisableHTTP2 forces HTTP/1.1 on the TCP transport.
	DisableHTTP2 bool
	// InsecureSkipVerify disables certificate checks (test endpoints only).
	InsecureSkipVerify bool
}

type idleConnCloser interface{ CloseIdleConnections() }

// newHTTPClient builds a dedicated client per session so connections can be
// dropped once the session ends. Per-request deadlines come from the caller's
// context, not from http.Client.Timeout.
func newHTTPClient(cfg ClientConfig) (*http.Client, idleConnCloser, error) {
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}

	tlsCfg := &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify} //nolint:gosec // opt-in for test endpoints

	if cfg.HTTP3 {
		tr := &http3.Transport{
			TLSClientConfig: tlsCfg,
			QUICConfig:      &quic.Config{HandshakeIdleTimeout: connectTimeout},
		}
		return &http.Client{Transport: tr}, tr, nil
	}

	d := &net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           d.DialContext,
		TLSClientConfig:       tlsCfg,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       10 * time.Second,
		TLSHandshakeTimeout:   connectTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     !cfg.DisableHTTP2,
		// Payload bodies are random-ish bytes; asking for gzip would skew throughput.
		DisableCompression: true,
	}
	if cfg.DisableHTTP2 {
		tr.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	}
	return &http.Client{Transport: tr}, tr, nil
}
