package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/odvcencio/gensession/pkg/backend"
	"github.com/odvcencio/gensession/pkg/bus"
	"github.com/odvcencio/gensession/pkg/config"
	"github.com/odvcencio/gensession/pkg/logging"
	"github.com/odvcencio/gensession/pkg/messenger"
	"github.com/odvcencio/gensession/pkg/session"
	"github.com/odvcencio/gensession/pkg/storage"
	"github.com/odvcencio/gensession/pkg/telemetry"
	"github.com/odvcencio/gensession/pkg/tracing"
	"github.com/odvcencio/gensession/pkg/workspace"
)

// app holds every collaborator of one CLI run.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	store     *storage.Store
	bus       bus.MessageBus
	messenger *messenger.BusMessenger
	hub       *telemetry.Hub
	tracer    *tracing.Provider
	session   *session.Session

	metricsFile string
	stopWatch   context.CancelFunc
	watchers    sync.WaitGroup
}

func newApp(ctx context.Context, cfg *config.Config, opts options, stderr io.Writer) (a *app, err error) {
	folder, err := workspace.DetectRoot(opts.folder)
	if err != nil {
		return nil, withExitCode(fmt.Errorf("resolve workspace folder: %w", err), exitUsage)
	}
	tabID := session.GenerateTabID(folder.Name)

	a = &app{cfg: cfg, metricsFile: opts.metricsFile}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.logger, err = logging.NewLogger(cfg.Logging.Dir, tabID)
	if err != nil {
		return nil, fmt.Errorf("initialize logging: %w", err)
	}
	a.logger.SetMinLevel(logging.ParseLevel(cfg.Logging.Level))

	if cfg.Tracing.Enabled {
		a.tracer, err = tracing.NewProvider("gensession", version, stderr)
		if err != nil {
			return nil, fmt.Errorf("initialize tracing: %w", err)
		}
	}

	a.store, err = storage.New(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("initialize storage: %w", err)
	}

	switch cfg.Messenger.Driver {
	case config.DriverNATS:
		busCfg := bus.DefaultConfig()
		busCfg.URL = cfg.Messenger.NATSURL
		a.bus, err = bus.NewNATSBus(busCfg)
		if err != nil {
			return nil, fmt.Errorf("connect messenger: %w", err)
		}
	default:
		a.bus = bus.NewMemoryBus()
	}
	a.messenger = messenger.NewBusMessenger(a.bus, cfg.Messenger.SubjectPrefix, a.logger)
	a.hub = telemetry.NewHub()

	retry := backend.DefaultRetryConfig()
	retry.MaxRetries = cfg.Backend.MaxRetries
	client := backend.NewHTTPClient(cfg.Backend.BaseURL, backend.Options{
		Token:     cfg.Backend.Token,
		Timeout:   cfg.Backend.Timeout,
		RateLimit: cfg.Backend.RateLimit,
		Burst:     cfg.Backend.Burst,
		Retry:     &retry,
		Logger:    a.logger,
	})

	reporter := telemetry.NewReporter(client, telemetry.StaticClientInfo{
		IDECategory: cfg.Telemetry.IDECategory,
		Product:     cfg.Telemetry.Product,
		ClientID:    cfg.Telemetry.ClientID,
		IDEVersion:  cfg.Telemetry.IDEVersion,
	},
		telemetry.WithLogger(a.logger),
		telemetry.WithHub(a.hub, tabID),
		telemetry.WithOptOut(cfg.Telemetry.OptOut),
	)

	fs := workspace.NewOS()
	a.session, err = session.New(session.Config{
		TabID:     tabID,
		Client:    client,
		Workspace: fs,
		Staging:   workspace.NewMemory(),
		Collector: fs,
		Folder:    folder,
		Collect: workspace.CollectOptions{
			MaxBytes: cfg.Workspace.MaxUploadBytes,
			Exclude:  cfg.Workspace.Exclude,
		},
		Messenger:       a.messenger,
		References:      a.store,
		Reporter:        reporter,
		Hub:             a.hub,
		Logger:          a.logger,
		Uploads:         a.store,
		Conversations:   a.store,
		MaxRetries:      cfg.Session.MaxRetries,
		NoRetries:       cfg.Session.MaxRetries == 0,
		PollInterval:    cfg.Backend.PollInterval,
		MaxPollAttempts: cfg.Backend.MaxPollAttempts,
	})
	if err != nil {
		return nil, err
	}

	if opts.verbose {
		if err := a.watch(ctx, tabID, stderr); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// watch prints every notification for the tab, including forwarded hub
// events.
func (a *app) watch(ctx context.Context, tabID string, w io.Writer) error {
	watchCtx, cancel := context.WithCancel(ctx)
	a.stopWatch = cancel

	var mu sync.Mutex
	_, err := messenger.Listen(watchCtx, a.bus, a.cfg.Messenger.SubjectPrefix, tabID, func(n messenger.Notification) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "[%s] %s %s\n", n.SentAt.Format(time.TimeOnly), n.Kind, n.Payload)
	})
	if err != nil {
		return fmt.Errorf("watch notifications: %w", err)
	}

	a.watchers.Add(1)
	go func() {
		defer a.watchers.Done()
		a.messenger.ForwardEvents(watchCtx, a.hub, tabID)
	}()
	return nil
}

func (a *app) runSend(ctx context.Context, opts options, stdout io.Writer) error {
	sess := a.session
	stop := context.AfterFunc(ctx, sess.Cancel)
	defer stop()

	interaction, err := sess.Send(ctx, opts.message, opts.mode, "")
	if err != nil {
		return err
	}

	answer := messenger.Answer{Type: messenger.AnswerText, Message: interaction.Content, CanRetry: interaction.CanRetry}
	if interaction.Failed {
		answer.Type = messenger.AnswerError
	}
	if err := a.messenger.SendAnswer(ctx, sess.TabID(), answer); err != nil {
		a.logger.Warn(logging.CategorySession, "notify_failed", "failed to send answer", map[string]any{"error": err.Error()})
	}

	fmt.Fprintln(stdout, interaction.Content)
	if interaction.Failed {
		return fmt.Errorf("generation failed: %w", interaction.Err)
	}

	kind := opts.mode.InteractionType()
	generated, err := sess.CountGeneratedContent(kind)
	if err != nil {
		return err
	}
	sess.SendDocGenerationTelemetryEvent(ctx, telemetry.GenerationEvent{
		NumberOfAddedChars: generated.TotalAddedChars,
		NumberOfAddedLines: generated.TotalAddedLines,
		NumberOfAddedFiles: generated.TotalAddedFiles,
		Interaction:        kind,
	})

	for _, p := range opts.reject {
		if !sess.SetFileRejected(p, true) && !sess.SetDeletedFileRejected(p, true) {
			fmt.Fprintf(stdout, "warning: %s is not part of this change set\n", p)
		}
	}
	if err := printChanges(stdout, sess); err != nil {
		return err
	}

	if !opts.accept {
		fmt.Fprintln(stdout, "Run again with -accept to apply these changes.")
		return nil
	}
	return a.accept(ctx, kind, stdout)
}

func (a *app) accept(ctx context.Context, kind telemetry.InteractionType, stdout io.Writer) error {
	sess := a.session
	added, err := sess.CountAddedContent(kind)
	if err != nil {
		return err
	}
	if err := sess.InsertChanges(ctx); err != nil {
		return err
	}
	sess.MarkChangesApplied()

	decision := telemetry.DecisionAccept
	if added.TotalAddedFiles == 0 {
		decision = telemetry.DecisionReject
	}
	sess.SendDocAcceptanceTelemetryEvent(ctx, telemetry.AcceptanceEvent{
		NumberOfAddedChars: added.TotalAddedChars,
		NumberOfAddedLines: added.TotalAddedLines,
		NumberOfAddedFiles: added.TotalAddedFiles,
		Decision:           decision,
		Interaction:        kind,
	})
	fmt.Fprintf(stdout, "Applied %d file(s), %d line(s) added.\n", added.TotalAddedFiles, added.TotalAddedLines)
	return nil
}

func printChanges(w io.Writer, sess *session.Session) error {
	state, err := sess.State()
	if err != nil {
		return err
	}
	art := state.Artifacts()
	for _, f := range art.FilePaths {
		stats, err := sess.ComputeFilePathDiff(f, nil)
		if err != nil {
			return err
		}
		marker := "+"
		if f.Rejected {
			marker = "x"
		}
		fmt.Fprintf(w, "  %s %s (+%d/-%d lines)\n", marker, f.RelativePath, stats.LinesAdded, stats.LinesRemoved)
	}
	for _, d := range art.DeletedFiles {
		marker := "-"
		if d.Rejected {
			marker = "x"
		}
		fmt.Fprintf(w, "  %s %s (delete)\n", marker, d.RelativePath)
	}
	return nil
}

// Close releases everything in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	if a.stopWatch != nil {
		a.stopWatch()
		a.watchers.Wait()
	}
	if a.metricsFile != "" {
		if err := prometheus.WriteToTextfile(a.metricsFile, prometheus.DefaultGatherer); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	a.hub.Close()
	if a.bus != nil {
		errs = append(errs, a.bus.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, a.tracer.Shutdown(ctx))
		cancel()
	}
	errs = append(errs, a.logger.Close())
	return errors.Join(errs...)
}

func runReferences(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("references", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to a config.yaml")
	limit := fs.Int("n", 20, "Number of entries to show")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return withExitCode(err, exitUsage)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	store, err := storage.New(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	defer store.Close()

	entries, err := store.ReferenceEntries(ctx, *limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(stdout, "No references recorded.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintln(stdout, e.Text)
	}
	return nil
}
