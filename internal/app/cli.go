package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"netcheck/internal/config"
	"netcheck/pkg/speedtest"
)

// Version is set at build time with -ldflags "-X netcheck/internal/app.Version=...".
var Version = "dev"

type runFunc func(ctx context.Context, a *App) error

type command struct {
	summary string
	// flags registers the command's flags and returns the action to run
	// once they are parsed.
	flags func(fs *flag.FlagSet) runFunc
}

func measureCommand(name, summary string) command {
	return command{
		summary: summary,
		flags: func(fs *flag.FlagSet) runFunc {
			noSave := fs.Bool("no-save", false, "don't save the result to history")
			return func(ctx context.Context, a *App) error {
				mode, err := speedtest.ParseMode(name)
				if err != nil {
					return err
				}
				return a.Measure(ctx, mode, *noSave)
			}
		},
	}
}

var commands = map[string]command{
	"speed": {
		summary: "Full speed test (download, upload, latency, jitter)",
		flags: func(fs *flag.FlagSet) runFunc {
			var o SpeedOptions
			fs.BoolVar(&o.NoSave, "no-save", false, "don't save the result to history")
			fs.BoolVar(&o.NoCompare, "no-compare", false, "don't compare with the previous result")
			return func(ctx context.Context, a *App) error { return a.Speed(ctx, o) }
		},
	},
	"download": measureCommand("download", "Download speed only"),
	"upload":   measureCommand("upload", "Upload speed only"),
	"latency":  measureCommand("latency", "Latency and jitter only"),
	"jitter":   measureCommand("jitter", "Jitter (alias for latency)"),
	"dns": {
		summary: "DNS lookup time",
		flags: func(*flag.FlagSet) runFunc {
			return func(ctx context.Context, a *App) error { return a.DNS(ctx) }
		},
	},
	"ttfb": {
		summary: "Time to first byte",
		flags: func(*flag.FlagSet) runFunc {
			return func(ctx context.Context, a *App) error { return a.TTFB(ctx) }
		},
	},
	"quality": {
		summary: "Connection quality score",
		flags: func(*flag.FlagSet) runFunc {
			return func(ctx context.Context, a *App) error { return a.Quality(ctx) }
		},
	},
	"history": {
		summary: "Show past results",
		flags: func(fs *flag.FlagSet) runFunc {
			n := fs.Int("n", DefaultHistoryCount, "number of results to show")
			return func(ctx context.Context, a *App) error { return a.History(ctx, *n) }
		},
	},
	"stats": {
		summary: "Statistics over the stored history",
		flags: func(*flag.FlagSet) runFunc {
			return func(ctx context.Context, a *App) error { return a.Stats(ctx) }
		},
	},
	"clear-history": {
		summary: "Delete all stored results",
		flags: func(fs *flag.FlagSet) runFunc {
			yes := fs.Bool("yes", false, "don't ask for confirmation")
			return func(ctx context.Context, a *App) error { return a.ClearHistory(ctx, *yes) }
		},
	},
	"export": {
		summary: "Write the history to a Parquet file",
		flags: func(fs *flag.FlagSet) runFunc {
			out := fs.String("out", "netcheck-history.parquet", "output file")
			return func(ctx context.Context, a *App) error { return a.Export(ctx, *out) }
		},
	},
	"watch": {
		summary: "Run full tests on the configured schedule",
		flags: func(*flag.FlagSet) runFunc {
			return func(ctx context.Context, a *App) error { return a.Watch(ctx) }
		},
	},
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `netcheck - internet connection quality tester

Usage:
  netcheck [--config <path>] [--log-level <level>] <command> [flags]

Commands:
`)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-14s %s\n", name, commands[name].summary)
	}
	fmt.Fprint(w, `
Run 'netcheck <command> -h' for command flags.
`)
}

// Main runs the command line and returns the process exit code.
func Main(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("netcheck", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { printUsage(stderr) }
	cfgPath := global.String("config", config.DefaultPath(), "path to config file (JSON or YAML)")
	level := global.String("log-level", "", "override logging.level (trace, debug, info, warn, error)")
	quiet := global.Bool("quiet", false, "don't print progress")
	version := global.Bool("version", false, "print version and exit")
	if err := global.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *version {
		fmt.Fprintln(stdout, "netcheck", Version)
		return 0
	}

	rest := global.Args()
	if len(rest) == 0 {
		printUsage(stdout)
		return 0
	}
	name := strings.ToLower(rest[0])
	if name == "help" {
		printUsage(stdout)
		return 0
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", rest[0])
		printUsage(stderr)
		return 2
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	run := cmd.flags(fs)
	if err := fs.Parse(rest[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	a, err := New(Options{
		ConfigPath: *cfgPath,
		LogLevel:   *level,
		Stdin:      stdin,
		Stdout:     stdout,
		Stderr:     stderr,
		Quiet:      *quiet,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer a.Close()

	if err := run(ctx, a); err != nil {
		if errors.Is(err, ErrAborted) {
			fmt.Fprintln(stderr, "Aborted.")
		} else {
			fmt.Fprintf(stderr, "Error: %s failed: %v\n", name, err)
		}
		return 1
	}
	return 0
}
