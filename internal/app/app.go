// Package app wires configuration, logging, persistence and the measurement
// runner into the netcheck commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"netcheck/internal/config"
	"netcheck/internal/progress"
	"netcheck/internal/render"
	"netcheck/internal/storage"
	"netcheck/pkg/logx"
	"netcheck/pkg/speedtest"
)

// Options configure an App.
type Options struct {
	ConfigPath string
	// LogLevel overrides logging.level, including across reloads.
	LogLevel string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Quiet disables progress lines on stderr.
	Quiet bool
}

type App struct {
	cfgm *config.ConfigManager

	// mu guards cfg and store, which watch mode swaps on reload.
	mu    sync.RWMutex
	cfg   *config.Config
	store storage.Store

	log           logx.Logger
	logs          *logx.Service
	levelOverride string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	quiet  bool

	// extra runner options; tests use it to stub the ISP lookup
	runnerOpts []speedtest.Option
}

// New loads the config, starts logging and opens the history store.
func New(opts Options) (*App, error) {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.LogLevel != "" {
		if _, ok := logx.ParseLevel(opts.LogLevel); !ok {
			return nil, fmt.Errorf("unknown log level %q", opts.LogLevel)
		}
	}

	cfgm := config.NewConfigManager(opts.ConfigPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgm:          cfgm,
		cfg:           cfg,
		levelOverride: opts.LogLevel,
		stdin:         opts.Stdin,
		stdout:        opts.Stdout,
		stderr:        opts.Stderr,
		quiet:         opts.Quiet,
	}

	logSvc, log := logx.NewService(a.logConfig(cfg))
	a.logs = logSvc
	a.log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	store, err := a.openStore(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	a.store = store
	return a, nil
}

func (a *App) logConfig(cfg *config.Config) logx.Config {
	lc := cfg.LogConfig()
	if a.levelOverride != "" {
		lc.Level = a.levelOverride
	}
	return lc
}

func (a *App) openStore(cfg *config.Config) (storage.Store, error) {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := storage.Open(sc, a.log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	a.log.Debug("history store opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	return st, nil
}

// Close releases the store and log sinks.
func (a *App) Close() error {
	a.mu.Lock()
	st := a.store
	a.store = nil
	a.mu.Unlock()

	var errs []error
	if st != nil {
		errs = append(errs, st.Close())
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
	}
	return errors.Join(errs...)
}

// Config returns the active configuration.
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

func (a *App) history() storage.Store {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.store
}

// measure runs one session, printing progress to stderr unless quiet.
func (a *App) measure(ctx context.Context, mode speedtest.Mode) (*speedtest.Result, error) {
	cfg := a.Config()
	rc, err := cfg.RunConfig()
	if err != nil {
		return nil, err
	}

	bus := progress.New()
	opts := []speedtest.Option{
		speedtest.WithProgress(bus),
		speedtest.WithLogger(a.log.With(logx.String("comp", "speedtest"))),
	}
	opts = append(opts, a.runnerOpts...)

	if !a.quiet {
		ch, unsubscribe := bus.Subscribe(64)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			render.PrintProgress(ctx, a.stderr, ch)
		}()
		defer func() {
			unsubscribe()
			wg.Wait()
		}()
	}

	start := time.Now()
	res, err := speedtest.NewRunner(rc, opts...).Run(ctx, mode)
	if err != nil {
		return nil, err
	}
	a.log.Info("session finished",
		logx.String("mode", string(mode)),
		logx.Duration("took", time.Since(start)),
		logx.OptFloat64("download_mbps", res.DownloadMbps),
		logx.OptFloat64("upload_mbps", res.UploadMbps),
		logx.OptFloat64("latency_ms", res.LatencyMs),
		logx.OptFloat64("jitter_ms", res.JitterMs),
	)
	if dropped := bus.Dropped(); dropped > 0 {
		a.log.Debug("progress events dropped", logx.Int64("dropped", int64(dropped)))
	}
	return res, nil
}

// save appends r to the history. Write failures are reported but never
// discard the measured result.
func (a *App) save(ctx context.Context, r speedtest.Result) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.store == nil {
		return false
	}
	err := a.store.Append(ctx, r)
	switch {
	case err == nil:
		return true
	case errors.Is(err, storage.ErrDisabled):
		a.log.Debug("history disabled; result not saved")
	default:
		a.log.Warn("failed to save result", logx.Err(err))
		fmt.Fprintf(a.stderr, "Warning: result not saved: %v\n", err)
	}
	return false
}
