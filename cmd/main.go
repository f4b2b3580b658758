package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	goFlags "github.com/jessevdk/go-flags"
	"github.com/krysearch/privacyfilters/filterlist"
	"github.com/krysearch/privacyfilters/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Exit codes.
const (
	exitSuccess = 0
	exitFailure = 1
	exitBlocked = 2
)

// Options are the command-line options.
type Options struct {
	// ConfigPath is the path to the configuration file.
	ConfigPath string `short:"c" long:"config" description:"Path to the YAML configuration file. If not set, the defaults are used."`

	// LogOutput is the path to the log file.
	LogOutput string `short:"o" long:"output" description:"Path to the log file. If not set, it writes to stderr."`

	// FilterLists are the paths to the additional filter lists.
	FilterLists []string `short:"f" long:"filter" description:"Path to an additional filter list. Can be specified multiple times."`

	// Check are the candidates to check.
	Check []string `long:"check" description:"Load the lists, print whether the URL or hostname is blocked, and exit. Can be specified multiple times."`

	// Verbose enables the debug logging.
	Verbose bool `short:"v" long:"verbose" description:"Verbose output (optional)." optional:"yes" optional-value:"true"`
}

func main() {
	var opts Options
	parser := goFlags.NewParser(&opts, goFlags.Default)

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*goFlags.Error); ok && flagsErr.Type == goFlags.ErrHelp {
			os.Exit(exitSuccess)
		}

		os.Exit(exitFailure)
	}

	os.Exit(run(&opts))
}

// run runs the daemon or the check and returns the exit code.
func run(opts *Options) (code int) {
	conf, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading configuration: %s\n", err)

		return exitFailure
	}

	l, closeLog := newLogger(conf.Log)
	defer closeLog()

	ctx := context.Background()
	if len(opts.Check) > 0 {
		return runCheck(ctx, l, conf, opts.Check, os.Stdout)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = runDaemon(ctx, l, conf)
	if err != nil {
		l.ErrorContext(ctx, "running", slogutil.KeyError, err)

		return exitFailure
	}

	return exitSuccess
}

// loadConfig loads the configuration file and applies the command-line
// options.
func loadConfig(opts *Options) (conf *config.Config, err error) {
	if opts.ConfigPath != "" {
		conf, err = config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
	} else {
		conf = config.Default()
	}

	if opts.Verbose {
		conf.Log.Verbose = true
	}

	if opts.LogOutput != "" {
		conf.Log.File = opts.LogOutput
	}

	if len(opts.FilterLists) > 0 {
		conf.Lists = append(conf.Sources(), fileSources(opts.FilterLists)...)
	}

	return conf, conf.Validate()
}

// fileSources returns the sources for the filter list files.
func fileSources(paths []string) (srcs []*filterlist.Source) {
	for _, p := range paths {
		srcs = append(srcs, &filterlist.Source{
			ID:   "file:" + filepath.Clean(p),
			Path: p,
		})
	}

	return srcs
}

// newLogger returns the logger configured by c and the function that closes
// the log file.
func newLogger(c *config.LogConfig) (l *slog.Logger, closeLog func()) {
	lvl := slog.LevelInfo
	if c.Verbose {
		lvl = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	closeLog = func() {}
	if c.File != "" {
		lj := &lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    c.MaxSize,
			MaxBackups: c.MaxBackups,
		}

		w = lj
		closeLog = func() {
			err := lj.Close()
			if err != nil {
				fmt.Fprintf(os.Stderr, "closing log file: %s\n", err)
			}
		}
	}

	l = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		AddSource: c.Verbose,
		Level:     lvl,
	}))

	return l, closeLog
}

// runCheck loads the lists once and writes a line for each of the candidates
// to w.  It returns [exitBlocked] if any candidate is blocked.
func runCheck(
	ctx context.Context,
	l *slog.Logger,
	conf *config.Config,
	candidates []string,
	w io.Writer,
) (code int) {
	engine := newEngine(l, conf, nil)

	err := engine.Refresh(ctx)
	if err != nil {
		l.ErrorContext(ctx, "loading lists", slogutil.KeyError, err)

		return exitFailure
	}

	code = exitSuccess
	for _, c := range candidates {
		r, ok := engine.Match(ctx, c)
		if !ok {
			_, err = fmt.Fprintf(w, "allowed\t%s\n", c)
		} else {
			code = exitBlocked
			_, err = fmt.Fprintf(w, "blocked\t%s\t%s\t%s\n", c, r.ListID(), r.Text())
		}

		if err != nil {
			l.ErrorContext(ctx, "writing result", slogutil.KeyError, err)

			return exitFailure
		}
	}

	return code
}

// shutdownAll shuts down the services in the reverse order.
func shutdownAll(ctx context.Context, svcs []namedService) (err error) {
	var errs []error
	for i := len(svcs) - 1; i >= 0; i-- {
		s := svcs[i]
		if shutdownErr := s.svc.Shutdown(ctx); shutdownErr != nil {
			errs = append(errs, fmt.Errorf("shutting down %s: %w", s.name, shutdownErr))
		}
	}

	return errors.Join(errs...)
}
