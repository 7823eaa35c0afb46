package speedtest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"netcheck/pkg/logx"
)

// RunConfig controls how a session is executed.
type RunConfig struct {
	Endpoint Endpoint
	Client   ClientConfig

	// LatencySamples is the number of zero-byte round trips in the latency phase.
	LatencySamples int
	// SampleDelay is the pause between latency samples.
	SampleDelay time.Duration

	// DownloadSizes and UploadSizes are the payload ladders, in bytes.
	DownloadSizes []int64
	UploadSizes   []int64

	// LatencyTimeout bounds a single dns/info/latency request.
	LatencyTimeout time.Duration
	// TransferTimeout bounds a single download or upload.
	TransferTimeout time.Duration

	// ISPLookup enables the speedtest.net user-info lookup during the info phase.
	ISPLookup bool
}

// Defaults used when a RunConfig field is zero.
var (
	DefaultDownloadSizes = []int64{100_000, 1_000_000, 10_000_000, 25_000_000}
	DefaultUploadSizes   = []int64{100_000, 1_000_000, 10_000_000}
)

const (
	DefaultLatencySamples  = 20
	DefaultSampleDelay     = 50 * time.Millisecond
	DefaultLatencyTimeout  = 30 * time.Second
	DefaultTransferTimeout = 60 * time.Second

	// loadedLatencyMinBytes is the smallest download followed by a loaded-latency probe.
	loadedLatencyMinBytes = 1_000_000
)

func (c RunConfig) withDefaults() RunConfig {
	if c.LatencySamples <= 0 {
		c.LatencySamples = DefaultLatencySamples
	}
	if c.SampleDelay < 0 {
		c.SampleDelay = 0
	}
	if len(c.DownloadSizes) == 0 {
		c.DownloadSizes = DefaultDownloadSizes
	}
	if len(c.UploadSizes) == 0 {
		c.UploadSizes = DefaultUploadSizes
	}
	if c.LatencyTimeout <= 0 {
		c.LatencyTimeout = DefaultLatencyTimeout
	}
	if c.TransferTimeout <= 0 {
		c.TransferTimeout = DefaultTransferTimeout
	}
	c.Endpoint = c.Endpoint.withDefaults()
	return c
}

// ISPLookupFunc returns the ISP name and public IP of the caller.
type ISPLookupFunc func(ctx context.Context) (isp, ip string, err error)

// Runner executes measurement sessions. A Runner is safe to reuse but runs
// one session per Run call; sessions are not meant to overlap.
type Runner struct {
	cfg  RunConfig
	sink ProgressSink
	log  logx.Logger
	isp  ISPLookupFunc
	now  func() time.Time

	// newClient is swapped in tests.
	newClient func(ClientConfig) (*http.Client, idleConnCloser, error)
}

// Option customizes a Runner.
type Option func(*Runner)

// WithProgress sets the progress sink. It must not block.
func WithProgress(s ProgressSink) Option {
	return func(r *Runner) {
		if s != nil {
			r.sink = s
		}
	}
}

// WithLogger sets the logger for dropped samples and failed phases.
func WithLogger(l logx.Logger) Option { return func(r *Runner) { r.log = l } }

// WithISPLookup replaces the default speedtest.net lookup.
func WithISPLookup(fn ISPLookupFunc) Option { return func(r *Runner) { r.isp = fn } }

// WithClock overrides the session timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRunner constructs a Runner.
func NewRunner(cfg RunConfig, opts ...Option) *Runner {
	r := &Runner{
		cfg:       cfg.withDefaults(),
		sink:      nopSink{},
		log:       logx.Nop(),
		now:       time.Now,
		newClient: newHTTPClient,
	}
	for _, o := range opts {
		o(r)
	}
	if r.isp == nil {
		r.isp = LookupISP
	}
	return r
}

// Config returns the effective configuration.
func (r *Runner) Config() RunConfig { return r.cfg }

// Run executes one session in the given mode.
//
// Phase failures never abort the session: a phase whose samples all fail
// reports 0 for its metrics. Run only returns an error when the session cannot
// start (client construction) or ctx is cancelled.
func (r *Runner) Run(ctx context.Context, mode Mode) (*Result, error) {
	if ctx == nil {
		return nil, fmt.Errorf("nil context")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	phases, err := phasesFor(mode)
	if err != nil {
		return nil, err
	}

	hc, closer, err := r.newClient(r.cfg.Client)
	if err != nil {
		return nil, fmt.Errorf("build http client: %w", err)
	}
	defer func() {
		if closer == nil {
			return
		}
		closer.CloseIdleConnections()
		if c, ok := closer.(io.Closer); ok {
			_ = c.Close()
		}
	}()

	s := &session{
		Runner: r,
		probe:  NewProber(r.cfg.Endpoint, hc),
		res:    Result{Timestamp: r.now()},
		log:    r.log.With(logx.String("mode", string(mode))),
	}
	start := time.Now()
	for _, ph := range phases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.run(ctx, ph); err != nil {
			return nil, err
		}
	}
	if mode == ModeFull {
		if score, ok := ScoreResult(s.res); ok {
			s.res.QualityScore = Int(score)
		}
	}

	s.log.Debug("session finished",
		logx.Duration("elapsed", time.Since(start)),
		logx.OptFloat64("download_mbps", s.res.DownloadMbps),
		logx.OptFloat64("upload_mbps", s.res.UploadMbps),
		logx.OptFloat64("latency_ms", s.res.LatencyMs),
	)
	res := s.res
	return &res, nil
}

func phasesFor(mode Mode) ([]Phase, error) {
	switch mode {
	case ModeFull:
		return []Phase{PhaseDNS, PhaseInfo, PhaseLatency, PhaseDownload, PhaseUpload}, nil
	case ModeLatency:
		return []Phase{PhaseDNS, PhaseInfo, PhaseLatency}, nil
	case ModeDownload:
		return []Phase{PhaseInfo, PhaseDownload}, nil
	case ModeUpload:
		return []Phase{PhaseInfo, PhaseUpload}, nil
	case ModeDNS:
		return []Phase{PhaseDNS}, nil
	default:
		return nil, fmt.Errorf("unknown test mode %q", mode)
	}
}

// session holds the in-progress record. It is owned by a single Run call.
type session struct {
	*Runner
	probe *Prober
	res   Result
	log   logx.Logger
}

func (s *session) emit(ph Phase, fraction float64, detail string) {
	s.sink.Progress(ProgressEvent{Phase: ph, Fraction: fraction, Detail: detail})
}

func (s *session) run(ctx context.Context, ph Phase) error {
	switch ph {
	case PhaseDNS:
		return s.runDNS(ctx)
	case PhaseInfo:
		return s.runInfo(ctx)
	case PhaseLatency:
		return s.runLatency(ctx)
	case PhaseDownload:
		return s.runDownload(ctx)
	case PhaseUpload:
		return s.runUpload(ctx)
	}
	return nil
}

func (s *session) runDNS(ctx context.Context) error {
	s.emit(PhaseDNS, 0, s.probe.Endpoint().DNSHost)
	dctx, cancel := context.WithTimeout(ctx, s.cfg.LatencyTimeout)
	ms, err := s.probe.ResolveDNS(dctx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn("dns probe failed", logx.Err(err))
		ms = 0
	}
	s.res.DNSMs = Float(round2(ms))
	s.emit(PhaseDNS, 1, "")
	return nil
}

func (s *session) runInfo(ctx context.Context) error {
	s.emit(PhaseInfo, 0, "")
	ictx, cancel := context.WithTimeout(ctx, s.cfg.LatencyTimeout)
	info := s.probe.FetchServerInfo(ictx)
	cancel()
	if err := ctx.Err(); err != nil {
		return err
	}

	if s.cfg.ISPLookup {
		lctx, cancel := context.WithTimeout(ctx, s.cfg.LatencyTimeout)
		isp, ip, err := s.isp(lctx)
		cancel()
		switch {
		case err != nil:
			s.log.Debug("isp lookup failed", logx.Err(err))
		default:
			if isp != "" {
				s.res.ISP = String(isp)
			}
			if info.ClientIP == unknown && ip != "" {
				info.ClientIP = ip
			}
		}
	}

	s.res.ServerLocation = String(info.Location)
	s.res.ServerIP = String(info.ServerIP)
	s.res.ClientIP = String(info.ClientIP)
	s.emit(PhaseInfo, 1, info.Location)
	return nil
}

func (s *session) runLatency(ctx context.Context) error {
	n := s.cfg.LatencySamples
	s.emit(PhaseLatency, 0, "")
	samples := make([]Sample, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if smp, err := s.roundTrip(ctx, 0); err != nil {
			s.log.Debug("latency sample dropped", logx.Int("sample", i), logx.Err(err))
		} else {
			samples = append(samples, smp)
		}
		s.emit(PhaseLatency, float64(i+1)/float64(n), "")
		if i < n-1 {
			if err := sleepCtx(ctx, s.cfg.SampleDelay); err != nil {
				return err
			}
		}
	}

	st := ReduceLatency(samples)
	if st.Samples == 0 {
		s.log.Warn("latency phase failed: no successful samples", logx.Int("attempted", n))
	}
	s.res.LatencyMs = Float(st.Latency)
	s.res.JitterMs = Float(st.Jitter)
	s.res.TTFBMs = Float(st.TTFB)
	s.emit(PhaseLatency, 1, "")
	return nil
}

func (s *session) runDownload(ctx context.Context) error {
	sizes := s.cfg.DownloadSizes
	s.emit(PhaseDownload, 0, "")
	speeds := make([]float64, 0, len(sizes))
	loaded := make([]float64, 0, len(sizes))
	for i, size := range sizes {
		if err := ctx.Err(); err != nil {
			return err
		}
		label := sizeLabel(size)
		tctx, cancel := context.WithTimeout(ctx, s.cfg.TransferTimeout)
		d, got, err := s.probe.TimedDownload(tctx, size)
		cancel()
		transferred := false
		if err != nil {
			s.log.Debug("download sample dropped", logx.String("size", label), logx.Err(err))
		} else if mbps, ok := Mbps(got, d); ok {
			speeds = append(speeds, mbps)
			transferred = true
			s.log.Debug("download sample", logx.String("size", label), logx.Float64("mbps", mbps))
		}

		// A failed transfer never loaded the link.
		if transferred && size >= loadedLatencyMinBytes {
			if err := ctx.Err(); err != nil {
				return err
			}
			if smp, err := s.roundTrip(ctx, 0); err != nil {
				s.log.Debug("loaded latency sample dropped", logx.String("size", label), logx.Err(err))
			} else {
				loaded = append(loaded, millis(smp.Total))
			}
		}
		s.emit(PhaseDownload, float64(i+1)/float64(len(sizes)), label)
	}

	best, err := MaxThroughput(speeds)
	if err != nil {
		s.log.Warn("download phase failed", logx.Err(err))
	}
	s.res.DownloadMbps = Float(best)
	s.res.LoadedLatencyMs = Float(round2(mean(loaded)))
	s.emit(PhaseDownload, 1, "")
	return nil
}

func (s *session) runUpload(ctx context.Context) error {
	sizes := s.cfg.UploadSizes
	s.emit(PhaseUpload, 0, "")
	speeds := make([]float64, 0, len(sizes))
	for i, size := range sizes {
		if err := ctx.Err(); err != nil {
			return err
		}
		label := sizeLabel(size)
		tctx, cancel := context.WithTimeout(ctx, s.cfg.TransferTimeout)
		d, err := s.probe.TimedUpload(tctx, size)
		cancel()
		if err != nil {
			s.log.Debug("upload sample dropped", logx.String("size", label), logx.Err(err))
		} else if mbps, ok := Mbps(size, d); ok {
			speeds = append(speeds, mbps)
			s.log.Debug("upload sample", logx.String("size", label), logx.Float64("mbps", mbps))
		}
		s.emit(PhaseUpload, float64(i+1)/float64(len(sizes)), label)
	}

	best, err := MaxThroughput(speeds)
	if err != nil {
		s.log.Warn("upload phase failed", logx.Err(err))
	}
	s.res.UploadMbps = Float(best)
	s.emit(PhaseUpload, 1, "")
	return nil
}

func (s *session) roundTrip(ctx context.Context, n int64) (Sample, error) {
	rctx, cancel := context.WithTimeout(ctx, s.cfg.LatencyTimeout)
	defer cancel()
	return s.probe.RoundTrip(rctx, n)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
