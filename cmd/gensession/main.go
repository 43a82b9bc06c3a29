package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/odvcencio/gensession/pkg/config"
	"github.com/odvcencio/gensession/pkg/session"
)

// Version information - set via ldflags during build
var (
	version   = "1.0.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

type options struct {
	configPath  string
	folder      string
	mode        session.Mode
	message     string
	accept      bool
	reject      []string
	verbose     bool
	metricsFile string
	showVersion bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCodeForError(err))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 && args[0] == "references" {
		return runReferences(ctx, args[1:], stdout)
	}

	opts, err := parseOptions(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return withExitCode(err, exitUsage)
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "gensession %s (commit %s, built %s)\n", version, commit, buildDate)
		return nil
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, opts, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.runSend(ctx, opts, stdout)
}

func parseOptions(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("gensession", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to a config.yaml (defaults to ~/.gensession and ./.gensession)")
	fs.StringVar(&opts.folder, "folder", ".", "Workspace folder; the enclosing git worktree is used when there is one")
	mode := fs.String("mode", "create", "Documentation mode: create, update or edit")
	fs.BoolVar(&opts.accept, "accept", false, "Apply the generated changes to the workspace")
	reject := fs.String("reject", "", "Comma-separated generated paths to reject before applying")
	fs.BoolVar(&opts.verbose, "verbose", false, "Print session events and UI notifications to stderr")
	fs.StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")
	fs.BoolVar(&opts.showVersion, "version", false, "Print version information")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: gensession [flags] <message>")
		fmt.Fprintln(stderr, "       gensession references [-config path] [-n count]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.showVersion {
		return opts, nil
	}

	m, err := parseMode(*mode)
	if err != nil {
		return options{}, err
	}
	opts.mode = m
	opts.message = strings.TrimSpace(strings.Join(fs.Args(), " "))
	if opts.message == "" {
		return options{}, fmt.Errorf("a message is required, e.g. gensession \"write a README for this project\"")
	}
	for _, p := range strings.Split(*reject, ",") {
		if p = strings.TrimSpace(p); p != "" {
			opts.reject = append(opts.reject, p)
		}
	}
	return opts, nil
}

func parseMode(raw string) (session.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "create":
		return session.ModeCreate, nil
	case "update":
		return session.ModeUpdate, nil
	case "edit":
		return session.ModeEdit, nil
	default:
		return session.ModeNone, fmt.Errorf("invalid mode %q (valid: create, update, edit)", raw)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}
