// Package scheduler runs measurement sessions on a cron or interval schedule.
//
// At most one session runs at a time: a tick that fires while the previous
// session is still running is skipped, as is a tick that would start a
// session sooner than the configured minimum gap after the last one.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"netcheck/pkg/logx"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Options configure the schedule. A nil Location means time.Local.
type Options struct {
	Spec     string
	MinGap   time.Duration
	Location *time.Location
}

// Counters is a snapshot of scheduler activity.
type Counters struct {
	Runs          int64
	Failures      int64
	SkippedBusy   int64
	SkippedMinGap int64
}

type Scheduler struct {
	job Job
	log logx.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	loc     *time.Location
	entry   cron.EntryID
	spec    ParsedSpec
	ctx     context.Context
	started bool
	limiter *rate.Limiter

	running atomic.Bool
	wg      sync.WaitGroup

	runs          atomic.Int64
	failures      atomic.Int64
	skippedBusy   atomic.Int64
	skippedMinGap atomic.Int64
}

func New(job Job, log logx.Logger) *Scheduler {
	return &Scheduler{
		job:     job,
		log:     log.With(logx.String("comp", "scheduler")),
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
}

func gapLimit(gap time.Duration) rate.Limit {
	if gap <= 0 {
		return rate.Inf
	}
	return rate.Every(gap)
}

// Start installs the schedule and starts firing. Jobs receive ctx.
func (s *Scheduler) Start(ctx context.Context, opts Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}
	s.ctx = ctx
	if err := s.applyLocked(opts); err != nil {
		s.ctx = nil
		return err
	}
	s.started = true
	s.cron.Start()
	return nil
}

// Apply replaces the schedule of a running scheduler.
func (s *Scheduler) Apply(opts Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return fmt.Errorf("scheduler not started")
	}
	return s.applyLocked(opts)
}

func (s *Scheduler) applyLocked(opts Options) error {
	spec, err := ParseSchedule(opts.Spec)
	if err != nil {
		return err
	}
	sched, err := spec.Schedule()
	if err != nil {
		return err
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	// The cron location is fixed at construction, so a timezone change
	// needs a new instance.
	if s.cron != nil && s.loc.String() != loc.String() {
		<-s.cron.Stop().Done()
		s.cron = nil
		s.entry = 0
	}
	fresh := s.cron == nil
	if fresh {
		s.cron = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))
		s.loc = loc
	}
	if s.entry != 0 {
		s.cron.Remove(s.entry)
	}
	s.entry = s.cron.Schedule(sched, cron.FuncJob(s.tick))
	s.spec = spec
	s.limiter.SetLimit(gapLimit(opts.MinGap))
	if fresh && s.started {
		s.cron.Start()
	}

	s.log.Info("schedule applied",
		logx.String("spec", spec.String()),
		logx.String("kind", spec.Kind.String()),
		logx.Duration("min_gap", opts.MinGap),
		logx.String("tz", loc.String()),
	)
	return nil
}

// Next returns the next planned fire time, or zero when stopped.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil || s.entry == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// Trigger runs the job now, subject to the same overlap and min-gap rules as
// scheduled ticks. It reports whether a session ran.
func (s *Scheduler) Trigger() bool {
	return s.run()
}

func (s *Scheduler) tick() { s.run() }

func (s *Scheduler) run() bool {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return false
	}

	if !s.running.CompareAndSwap(false, true) {
		s.skippedBusy.Add(1)
		s.log.Warn("previous session still running; tick skipped")
		return false
	}
	defer s.running.Store(false)

	if !s.limiter.Allow() {
		s.skippedMinGap.Add(1)
		s.log.Info("tick inside minimum gap; skipped")
		return false
	}

	s.wg.Add(1)
	defer s.wg.Done()

	start := time.Now()
	s.runs.Add(1)
	if err := s.job(ctx); err != nil {
		s.failures.Add(1)
		s.log.Warn("scheduled session failed", logx.Err(err), logx.Duration("took", time.Since(start)))
		return true
	}
	s.log.Debug("scheduled session finished", logx.Duration("took", time.Since(start)))
	return true
}

// Stop halts the schedule and waits for a running session to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.entry = 0
	s.started = false
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
	s.wg.Wait()
}

// Counters returns activity counters.
func (s *Scheduler) Counters() Counters {
	return Counters{
		Runs:          s.runs.Load(),
		Failures:      s.failures.Load(),
		SkippedBusy:   s.skippedBusy.Load(),
		SkippedMinGap: s.skippedMinGap.Load(),
	}
}
