package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/entrhq/pilot/pkg/browser"
	"github.com/entrhq/pilot/pkg/config"
	"github.com/entrhq/pilot/pkg/counter"
	"github.com/entrhq/pilot/pkg/executor"
	"github.com/entrhq/pilot/pkg/locator"
	"github.com/entrhq/pilot/pkg/logging"
	"github.com/entrhq/pilot/pkg/record"
	"github.com/entrhq/pilot/pkg/tracing"
	"github.com/entrhq/pilot/pkg/workflow"
)

// app holds everything a command needs after the configuration is loaded. close
// releases resources in reverse order of acquisition.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	reporter *Reporter
	tracer   trace.Tracer

	closers []func() error
}

// newApp loads the configuration named by the global flags and applies flag
// overrides.
func newApp(ctx context.Context, command *cli.Command, out io.Writer) (*app, error) {
	cfg, err := config.Load(command.String("config"))
	if err != nil {
		return nil, err
	}
	if v := command.String("verbosity"); v != "" {
		cfg.Logging.Verbosity = v
	}
	if v := command.String("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if cfg.Logging.Directory != "" {
		logging.SetDirectory(cfg.Logging.Directory)
	}
	logging.SetDefaultLevel(level)

	// On error NewLogger has already fallen back to stderr and said so.
	logger, _ := logging.NewLogger("pilot")

	a := &app{
		cfg:      cfg,
		logger:   logger,
		reporter: NewReporter(out, ParseVerbosity(cfg.Logging.Verbosity)),
	}
	a.onClose(logger.Close)
	if path := logger.LogPath(); path != "" {
		a.reporter.Debugf("log file %s", path)
	}

	tracer, shutdown, err := tracing.Setup(ctx, cfg.TraceConfig())
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracer = tracer
	a.onClose(func() error { return shutdown(context.Background()) })
	return a, nil
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warnf("cleanup failed: %v", err)
		}
	}
	a.closers = nil
}

// openPage starts a browser session and navigates to url.
func (a *app) openPage(ctx context.Context, url string) (browser.Page, error) {
	manager := browser.NewSessionManager(
		browser.WithEngine(browser.Engine(a.cfg.Browser.Engine)),
		browser.WithMaxSessions(a.cfg.Browser.MaxSessions),
		browser.WithSkipInstall(a.cfg.Browser.SkipInstall),
		browser.WithManagerLogger(a.logger.With("browser")),
	)
	if err := manager.Initialize(); err != nil {
		return nil, err
	}
	a.onClose(manager.Shutdown)

	session, err := manager.StartSession("pilot", a.cfg.SessionOptions())
	if err != nil {
		return nil, err
	}
	page := session.Page()
	if url != "" {
		a.reporter.Verbosef("Navigating to %s", url)
		if err := page.Navigate(ctx, url); err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", url, err)
		}
	}
	return page, nil
}

// openCounters opens the configured counter store. The PostgreSQL store is also
// returned so it can double as an execution record sink.
func (a *app) openCounters(ctx context.Context) (counter.Store, *counter.Postgres, error) {
	c := a.cfg.Counters
	switch c.Backend {
	case config.BackendMemory:
		return counter.NewMemory(nil), nil, nil
	case config.BackendFile:
		return counter.NewFile(c.File), nil, nil
	case config.BackendRedis:
		store, err := counter.NewRedis(ctx, counter.RedisOptions{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
			Prefix:   c.Redis.Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		a.onClose(store.Close)
		return store, nil, nil
	case config.BackendPostgres:
		store, err := counter.NewPostgres(ctx, c.Postgres, a.logger.With("counter"))
		if err != nil {
			return nil, nil, err
		}
		a.onClose(store.Close)
		return store, store, nil
	}
	return nil, nil, fmt.Errorf("unknown counter backend %q", c.Backend)
}

// openStats opens the strategy statistics store.
func (a *app) openStats() (locator.StatsStore, error) {
	if a.cfg.Stats.File == "" {
		return locator.NewMemoryStats(), nil
	}
	return locator.OpenFileStats(a.cfg.Stats.File)
}

// recordSink combines the configured execution record sinks, or returns nil when
// none is enabled.
func (a *app) recordSink(pg *counter.Postgres) record.Sink {
	var sinks []record.Sink
	if a.cfg.Artifacts.Enabled {
		sinks = append(sinks, record.NewArtifactWriter(a.cfg.Artifacts.OutputDir, a.cfg.Artifacts.PDF))
	}
	if a.cfg.Artifacts.Database && pg != nil {
		sinks = append(sinks, pg)
	}
	switch len(sinks) {
	case 0:
		return nil
	case 1:
		return sinks[0]
	}
	return record.Multi(sinks...)
}

// loadWorkflow reads a definition file and builds the named workflow with its
// locators. An empty name selects the only workflow of the file.
func loadWorkflow(path, name string) (*workflow.Workflow, locator.Set, error) {
	def, err := workflow.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if name == "" {
		names := def.WorkflowNames()
		if len(names) != 1 {
			return nil, nil, fmt.Errorf("%s defines %d workflows; choose one with --workflow", path, len(names))
		}
		name = names[0]
	}
	wf, err := def.Workflow(name)
	if err != nil {
		return nil, nil, err
	}
	return wf, def.LocatorSet(), nil
}

// newExecutor wires an executor for page from the configuration.
func (a *app) newExecutor(ctx context.Context, page browser.Page, locators locator.Set) (*executor.Executor, error) {
	counters, pg, err := a.openCounters(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := a.openStats()
	if err != nil {
		return nil, err
	}
	for _, loc := range locators {
		locator.ApplyStats(loc, stats.Stats(loc.Name))
	}

	resolver := locator.NewResolver(
		locator.WithStats(stats),
		locator.WithLogger(a.logger.With("locator")),
		locator.WithPollInterval(a.cfg.Execution.PollInterval),
		locator.WithDefaultTimeout(a.cfg.Execution.LocatorTimeout),
	)

	opts := []executor.Option{
		executor.WithResolver(resolver),
		executor.WithCounters(counters),
		executor.WithLogger(a.logger.With("executor")),
		executor.WithTracer(a.tracer),
		executor.WithRetryDelay(a.cfg.Execution.RetryDelay),
		executor.WithAllocationSettle(a.cfg.Execution.AllocationSettle),
	}
	if dir := a.cfg.Execution.ScreenshotDir; dir != "" {
		opts = append(opts, executor.WithScreenshotDir(dir))
	}
	if sink := a.recordSink(pg); sink != nil {
		opts = append(opts, executor.WithRecordSink(sink))
	}
	return executor.New(page, locators, opts...), nil
}

// cancelOnSignal cancels exec on the first interrupt and ctx on the second.
func cancelOnSignal(ctx context.Context, exec *executor.Executor, reporter *Reporter) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigChan:
		case <-ctx.Done():
			return
		}
		reporter.Warningf("Interrupt received, stopping after the current step")
		exec.Cancel()

		select {
		case <-sigChan:
			reporter.Warningf("Second interrupt, aborting")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// errRunFailed is returned once the reporter has already described the failure.
var errRunFailed = errors.New("workflow run failed")
