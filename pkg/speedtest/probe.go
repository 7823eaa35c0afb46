package speedtest

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"strings"
	"sync/atomic"
	"time"
)

// Prober issues single-shot probes against an Endpoint.
//
// Every method returns an error on failure; callers decide whether that is a
// dropped sample or a placeholder value. Nothing here retries.
type Prober struct {
	ep       Endpoint
	client   *http.Client
	resolver *net.Resolver
}

// NewProber wires a prober to an HTTP client. A nil client uses http.DefaultClient.
func NewProber(ep Endpoint, client *http.Client) *Prober {
	if client == nil {
		client = http.DefaultClient
	}
	ep = ep.withDefaults()
	return &Prober{ep: ep, client: client, resolver: newResolver(ep.DNSServers)}
}

// Endpoint returns the effective endpoint (defaults applied).
func (p *Prober) Endpoint() Endpoint { return p.ep }

// newResolver returns the system resolver, or a pure-Go resolver that
// round-robins over explicit servers.
func newResolver(servers []string) *net.Resolver {
	list := make([]string, 0, len(servers))
	for _, s := range servers {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(s, "53")
		}
		list = append(list, s)
	}
	if len(list) == 0 {
		return net.DefaultResolver
	}
	var next uint32
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			idx := atomic.AddUint32(&next, 1)
			d := net.Dialer{Timeout: 2 * time.Second}
			return d.DialContext(ctx, "udp", list[int(idx)%len(list)])
		},
	}
}

// ResolveDNS times a lookup of the endpoint's DNS host, in milliseconds.
func (p *Prober) ResolveDNS(ctx context.Context) (float64, error) {
	host := p.ep.DNSHost
	if host == "" {
		return 0, fmt.Errorf("dns: no host configured")
	}
	start := time.Now()
	addrs, err := p.resolver.LookupIPAddr(ctx, host)
	elapsed := time.Since(start)
	if err != nil {
		return 0, fmt.Errorf("dns: lookup %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return 0, fmt.Errorf("dns: no addresses for %s", host)
	}
	return millis(elapsed), nil
}

// Sample is one timed request.
type Sample struct {
	// Total is request start to body fully read.
	Total time.Duration
	// TTFB is request start to first response byte.
	TTFB  time.Duration
	Bytes int64
}

// RoundTrip requests n response bytes and drains the body.
func (p *Prober) RoundTrip(ctx context.Context, n int64) (Sample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.ep.downURL(n), nil)
	if err != nil {
		return Sample{}, err
	}
	setNoCache(req)

	var start time.Time
	var ttfb time.Duration
	trace := &httptrace.ClientTrace{
		GotFirstResponseByte: func() { ttfb = time.Since(start) },
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	start = time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return Sample{}, err
	}
	defer resp.Body.Close()

	read, err := io.Copy(io.Discard, resp.Body)
	total := time.Since(start)
	if err != nil {
		return Sample{}, fmt.Errorf("read body: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return Sample{}, err
	}
	// Transports that don't report the first byte (or report it late) still
	// keep ttfb <= total.
	if ttfb <= 0 || ttfb > total {
		ttfb = total
	}
	return Sample{Total: total, TTFB: ttfb, Bytes: read}, nil
}

// TimedDownload is RoundTrip used for throughput: it returns the elapsed time
// and the number of bytes actually received.
func (p *Prober) TimedDownload(ctx context.Context, n int64) (time.Duration, int64, error) {
	s, err := p.RoundTrip(ctx, n)
	if err != nil {
		return 0, 0, err
	}
	return s.Total, s.Bytes, nil
}

// TimedUpload posts n bytes and returns the time until the response arrived.
func (p *Prober) TimedUpload(ctx context.Context, n int64) (time.Duration, error) {
	payload := bytes.Repeat([]byte{'x'}, int(n))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.ep.upURL(), bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.ContentLength = n
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Cache-Control", "no-cache")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	elapsed := time.Since(start)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return 0, err
	}
	return elapsed, nil
}

// FetchServerInfo learns the serving location and the client's public IP.
// It never fails: anything it cannot learn is reported as "Unknown".
func (p *Prober) FetchServerInfo(ctx context.Context) ServerInfo {
	info := ServerInfo{Location: unknown, ClientIP: unknown, ServerIP: unknown}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.ep.downURL(0), nil)
	if err != nil {
		return info
	}
	setNoCache(req)
	trace := &httptrace.ClientTrace{
		GotConn: func(ci httptrace.GotConnInfo) {
			if ci.Conn == nil {
				return
			}
			if host, _, err := net.SplitHostPort(ci.Conn.RemoteAddr().String()); err == nil {
				info.ServerIP = host
			}
		},
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))
	resp, err := p.client.Do(req)
	if err != nil {
		return ServerInfo{Location: unknown, ClientIP: unknown, ServerIP: unknown}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	if ray := resp.Header.Get("cf-ray"); strings.Contains(ray, "-") {
		if loc := ray[strings.LastIndex(ray, "-")+1:]; loc != "" {
			info.Location = loc
		}
	}

	trace2, err := p.fetchTrace(ctx)
	if err != nil {
		return ServerInfo{Location: unknown, ClientIP: unknown, ServerIP: info.ServerIP}
	}
	if ip := trace2["ip"]; ip != "" {
		info.ClientIP = ip
	}
	if colo := trace2["colo"]; colo != "" {
		info.Location = colo
	}
	return info
}

func (p *Prober) fetchTrace(ctx context.Context) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.ep.TraceURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return ParseTrace(io.LimitReader(resp.Body, 64<<10))
}

// ParseTrace reads key=value lines. Lines without '=' are ignored; the value
// keeps everything after the first '='.
func ParseTrace(r io.Reader) (map[string]string, error) {
	out := map[string]string{}
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out, s.Err()
}

func setNoCache(req *http.Request) {
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Cache-Control", "no-cache")
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}

func millis(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}
