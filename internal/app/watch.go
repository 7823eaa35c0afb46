package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"netcheck/internal/config"
	"netcheck/internal/metrics"
	"netcheck/internal/scheduler"
	"netcheck/internal/storage"
	"netcheck/pkg/logx"
	"netcheck/pkg/speedtest"
)

func scheduleOptions(cfg *config.Config) (scheduler.Options, error) {
	gap, err := config.ParseDurationField("schedule.min_gap", cfg.Schedule.MinGap)
	if err != nil {
		return scheduler.Options{}, err
	}
	loc := time.Local
	if tz := strings.TrimSpace(cfg.Schedule.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return scheduler.Options{}, fmt.Errorf("schedule.timezone: %w", err)
		}
		loc = l
	}
	return scheduler.Options{Spec: cfg.Schedule.Spec, MinGap: gap, Location: loc}, nil
}

func serverConfig(cfg *config.Config) metrics.ServerConfig {
	m := cfg.Metrics
	return metrics.ServerConfig{Enabled: m.Enabled, Addr: m.Addr, Pprof: m.Pprof}
}

// validateSchedule rejects configs whose schedule the scheduler cannot run.
func validateSchedule(_ context.Context, cfg *config.Config) error {
	spec, err := scheduler.ParseSchedule(cfg.Schedule.Spec)
	if err != nil {
		return fmt.Errorf("schedule.spec: %w", err)
	}
	if _, err := spec.Schedule(); err != nil {
		return fmt.Errorf("schedule.spec: %w", err)
	}
	return nil
}

// Watch runs full sessions on the configured schedule until ctx is done.
// The first session starts immediately. Config file changes are applied to
// the following sessions.
func (a *App) Watch(ctx context.Context) error {
	cfg := a.Config()
	if err := validateSchedule(ctx, cfg); err != nil {
		return err
	}
	opts, err := scheduleOptions(cfg)
	if err != nil {
		return err
	}
	a.quiet = true

	exp := metrics.New()
	msrv := metrics.NewServer(exp, a.log)
	if err := msrv.Apply(ctx, serverConfig(cfg)); err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	defer msrv.Stop(context.Background())

	sched := scheduler.New(func(ctx context.Context) error {
		return a.watchSession(ctx, exp)
	}, a.log)
	if err := sched.Start(ctx, opts); err != nil {
		return err
	}
	defer sched.Stop()

	a.cfgm.SetValidator(validateSchedule)
	updates := a.cfgm.Subscribe(1)
	defer a.cfgm.Unsubscribe(updates)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := a.cfgm.Watch(ctx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()
	go func() {
		defer wg.Done()
		sched.Trigger()
	}()
	defer wg.Wait()

	a.log.Info("watch started",
		logx.String("schedule", cfg.Schedule.Spec),
		logx.Time("next", sched.Next()),
		logx.String("config", a.cfgm.Path()),
	)
	notifySystemd(a.log, daemon.SdNotifyReady)

	for {
		select {
		case <-ctx.Done():
			notifySystemd(a.log, daemon.SdNotifyStopping)
			c := sched.Counters()
			a.log.Info("watch stopping",
				logx.Int64("runs", c.Runs),
				logx.Int64("failures", c.Failures),
				logx.Int64("skipped_busy", c.SkippedBusy),
				logx.Int64("skipped_min_gap", c.SkippedMinGap),
			)
			return nil
		case next, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			a.applyConfig(ctx, next, sched, msrv)
		}
	}
}

func (a *App) watchSession(ctx context.Context, exp *metrics.Exporter) error {
	res, err := a.measure(ctx, speedtest.ModeFull)
	if err != nil {
		exp.RecordFailure()
		return err
	}
	exp.Publish(res)
	a.save(ctx, *res)
	return nil
}

// applyConfig moves the running watch onto a reloaded config. Each part is
// applied independently so one bad section does not block the others.
func (a *App) applyConfig(ctx context.Context, cfg *config.Config, sched *scheduler.Scheduler, msrv *metrics.Server) {
	if a.logs != nil {
		a.logs.Apply(a.logConfig(cfg))
	}

	a.mu.Lock()
	old := a.cfg
	a.cfg = cfg
	var stale storage.Store
	if old == nil || old.History != cfg.History {
		st, err := a.openStore(cfg)
		if err != nil {
			a.log.Warn("history reopen failed; keeping previous store", logx.Err(err))
		} else {
			stale = a.store
			a.store = st
		}
	}
	a.mu.Unlock()
	if stale != nil {
		if err := stale.Close(); err != nil {
			a.log.Warn("closing previous history store failed", logx.Err(err))
		}
	}

	if opts, err := scheduleOptions(cfg); err != nil {
		a.log.Warn("schedule not applied", logx.Err(err))
	} else if err := sched.Apply(opts); err != nil {
		a.log.Warn("schedule not applied", logx.Err(err))
	}

	if err := msrv.Apply(ctx, serverConfig(cfg)); err != nil {
		a.log.Warn("metrics listener not applied", logx.Err(err))
	}
}

func notifySystemd(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("systemd notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("systemd notified", logx.String("state", state))
	}
}
