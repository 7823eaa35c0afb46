package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"netcheck/internal/export"
	"netcheck/internal/render"
	"netcheck/pkg/logx"
	"netcheck/pkg/speedtest"
)

// ErrAborted is returned when the user declines a confirmation prompt.
var ErrAborted = errors.New("aborted")

// DefaultHistoryCount is how many results `history` shows without -n.
const DefaultHistoryCount = 10

// SpeedOptions control the full speed test command.
type SpeedOptions struct {
	NoSave    bool
	NoCompare bool
}

// Speed runs a full session, compares it with the previous result and saves it.
func (a *App) Speed(ctx context.Context, opts SpeedOptions) error {
	start := time.Now()
	res, err := a.measure(ctx, speedtest.ModeFull)
	if err != nil {
		return err
	}

	// Read the previous result before saving the new one.
	var prev *speedtest.Result
	if !opts.NoCompare {
		p, ok, err := a.history().Latest(ctx)
		switch {
		case err != nil:
			a.log.Warn("failed to read previous result", logx.Err(err))
		case ok:
			prev = &p
		}
	}
	if !opts.NoSave && a.save(ctx, *res) {
		fmt.Fprintln(a.stderr, "Result saved to history")
	}

	r := render.New(a.stdout)
	if prev != nil {
		if cmps := speedtest.Ordered(speedtest.Compare(*res, *prev)); len(cmps) > 0 {
			if err := r.Comparison(*res, cmps); err != nil {
				return err
			}
			r.Elapsed(time.Since(start))
			return nil
		}
	}
	if err := r.Result(*res); err != nil {
		return err
	}
	r.Elapsed(time.Since(start))
	return nil
}

// Measure runs a reduced session (download, upload or latency), saves it
// unless noSave, and prints the result.
func (a *App) Measure(ctx context.Context, mode speedtest.Mode, noSave bool) error {
	res, err := a.measure(ctx, mode)
	if err != nil {
		return err
	}
	if !noSave {
		a.save(ctx, *res)
	}
	return render.New(a.stdout).Result(*res)
}

// Quality runs a full session, saves it and prints the score first.
func (a *App) Quality(ctx context.Context) error {
	res, err := a.measure(ctx, speedtest.ModeFull)
	if err != nil {
		return err
	}
	a.save(ctx, *res)
	r := render.New(a.stdout)
	if err := r.Quality(*res); err != nil {
		return err
	}
	return r.Result(*res)
}

// DNS measures the lookup time only. Nothing is saved.
func (a *App) DNS(ctx context.Context) error {
	res, err := a.measure(ctx, speedtest.ModeDNS)
	if err != nil {
		return err
	}
	return render.New(a.stdout).DNS(*res)
}

// TTFB runs the latency phase and prints the time to first byte. Nothing is saved.
func (a *App) TTFB(ctx context.Context) error {
	res, err := a.measure(ctx, speedtest.ModeLatency)
	if err != nil {
		return err
	}
	return render.New(a.stdout).Line("Time to first byte", res.TTFBMs, "ms")
}

// History prints the last n results, oldest first.
func (a *App) History(ctx context.Context, n int) error {
	if n <= 0 {
		n = DefaultHistoryCount
	}
	hist, err := a.history().Load(ctx)
	if err != nil {
		return err
	}
	return render.New(a.stdout).History(speedtest.LastN(hist, n))
}

// Stats prints aggregate statistics over the whole history.
func (a *App) Stats(ctx context.Context) error {
	hist, err := a.history().Load(ctx)
	if err != nil {
		return err
	}
	return render.New(a.stdout).Stats(speedtest.Aggregate(hist))
}

// ClearHistory deletes every stored result. Without yes the user is asked
// to confirm on stdin.
func (a *App) ClearHistory(ctx context.Context, yes bool) error {
	if !yes {
		fmt.Fprint(a.stderr, "Are you sure you want to clear all history? [y/N]: ")
		line, _ := bufio.NewReader(a.stdin).ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
		default:
			return ErrAborted
		}
	}
	if err := a.history().Clear(ctx); err != nil {
		return err
	}
	a.log.Info("history cleared")
	_, err := fmt.Fprintln(a.stdout, "History cleared.")
	return err
}

// Export writes the whole history to a Parquet file.
func (a *App) Export(ctx context.Context, out string) error {
	if strings.TrimSpace(out) == "" {
		return errors.New("--out is required")
	}
	hist, err := a.history().Load(ctx)
	if err != nil {
		return err
	}
	if err := export.WriteParquet(out, hist); err != nil {
		return err
	}
	a.log.Info("history exported", logx.String("path", out), logx.Int("records", len(hist)))
	_, err = fmt.Fprintf(a.stdout, "Exported %d results to %s\n", len(hist), out)
	return err
}
