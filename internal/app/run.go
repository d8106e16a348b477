package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"synthprod/internal/config"
	"synthprod/internal/logging"
	"synthprod/internal/pipeline"
)

// Runtime defines runtime inputs required to start the producer.
// Params: ConfigPath points to the TOML configuration file or directory; Reload triggers hot reload.
// Returns: Runtime value used by Run.
type Runtime struct {
	ConfigPath string
	Reload     <-chan struct{}
}

type engineRunner interface {
	Run(context.Context) (pipeline.RunSummary, error)
}

type runDeps struct {
	loadConfig func(string) (*config.Config, error)
	newLogger  func(config.LogConfig) (*slog.Logger, func(), error)
	startDebug func(context.Context, config.DebugConfig, prometheus.Gatherer, *slog.Logger) (func(), error)
	newEngine  func(context.Context, *config.Config, *slog.Logger, prometheus.Registerer) (engineRunner, error)
}

var errProducerExited = errors.New("producer exited without context cancellation")

// Run loads configuration, starts the producer, and swaps it on every Runtime.Reload signal.
// Params: ctx controls lifecycle; rt provides runtime inputs and optional reload trigger channel.
// Returns: error on startup failure, unexpected producer exit, or failed rollback; nil on graceful stop.
func Run(ctx context.Context, rt Runtime) error {
	return runWithDeps(ctx, rt, defaultRunDeps())
}

func defaultRunDeps() runDeps {
	return runDeps{
		loadConfig: config.Load,
		newLogger:  logging.New,
		startDebug: startDebugServer,
		newEngine: func(
			ctx context.Context,
			cfg *config.Config,
			logger *slog.Logger,
			registerer prometheus.Registerer,
		) (engineRunner, error) {
			return pipeline.NewFromConfig(ctx, cfg, logger, registerer)
		},
	}
}

// runWithDeps drives one supervisor until shutdown.
// Params: ctx controls lifecycle; rt runtime inputs; deps injectable constructors.
// Returns: runtime error or nil on graceful stop.
func runWithDeps(ctx context.Context, rt Runtime, deps runDeps) error {
	path := strings.TrimSpace(rt.ConfigPath)
	if path == "" {
		return fmt.Errorf("config path is required")
	}

	cfg, err := deps.loadConfig(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, closeLog, err := deps.newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	sup := &supervisor{path: path, deps: deps}
	sup.current, err = sup.launch(ctx, cfg, logger, closeLog)
	if err != nil {
		closeLog()
		return err
	}

	reload := rt.Reload
	for {
		select {
		case outcome := <-sup.current.exited:
			return sup.finishUnexpected(ctx, outcome)
		case <-ctx.Done():
			current := sup.current
			current.stop("shutdown")
			current.logger.Info("runtime stopped", slog.String("reason", context.Cause(ctx).Error()))
			current.closeLogger()
			return nil
		case _, ok := <-reload:
			if !ok {
				reload = nil
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			if err := sup.reload(ctx); err != nil && sup.current == nil {
				return err
			}
		}
	}
}

// supervisor owns the running producer generation and replaces it on reload.
type supervisor struct {
	path    string
	deps    runDeps
	current *producerRuntime
}

// producerRuntime is one producer generation with its logger, metrics registry, and debug server.
type producerRuntime struct {
	cfg       *config.Config
	logger    *slog.Logger
	closeLog  func()
	cancel    context.CancelFunc
	exited    chan runOutcome
	stopDebug func()

	stopped bool
	outcome runOutcome
}

type runOutcome struct {
	summary pipeline.RunSummary
	err     error
}

// launch starts debug server and engine for cfg; the caller keeps ownership of the logger on failure.
// Params: ctx root lifecycle; cfg validated config; logger/closeLog logger for this generation.
// Returns: running generation or startup error.
func (s *supervisor) launch(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	closeLog func(),
) (*producerRuntime, error) {
	if ctx.Err() != nil {
		return nil, fmt.Errorf("runtime context canceled: %w", ctx.Err())
	}

	registry := newRegistry()
	runCtx, cancel := context.WithCancel(ctx)

	stopDebug, err := s.deps.startDebug(runCtx, cfg.Debug, registry, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start debug server: %w", err)
	}
	engine, err := s.deps.newEngine(runCtx, cfg, logger, registry)
	if err != nil {
		stopDebug()
		cancel()
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	exited := make(chan runOutcome, 1)
	go func() {
		summary, runErr := engine.Run(runCtx)
		exited <- runOutcome{summary: summary, err: runErr}
	}()

	logger.Info(
		"runtime started",
		slog.String("host", cfg.Global.Host),
		slog.String("sink", cfg.Sink.Kind),
		slog.Any("cadence", cadenceOf(cfg)),
		slog.Int("batch_size", cfg.Producer.BatchSize),
		slog.Bool("debug", cfg.Debug.Enabled),
	)
	return &producerRuntime{
		cfg:       cfg,
		logger:    logger,
		closeLog:  closeLog,
		cancel:    cancel,
		exited:    exited,
		stopDebug: stopDebug,
	}, nil
}

// reload replaces the current generation with one built from the config on disk.
// The current producer is drained before the next one starts; a failed start restores the previous config.
// Params: ctx root lifecycle.
// Returns: nil when applied; error when rejected (current stays running) or when rollback failed
// (s.current is nil).
func (s *supervisor) reload(ctx context.Context) error {
	prev := s.current
	prev.logger.Info("config reload requested")

	nextCfg, err := s.deps.loadConfig(s.path)
	if err != nil {
		prev.logger.Error("config reload validation failed", slog.String("error", err.Error()))
		return fmt.Errorf("reload config: %w", err)
	}
	changes := settingChanges(prev.cfg, nextCfg)

	nextLogger, nextCloseLog, err := s.deps.newLogger(nextCfg.Log)
	if err != nil {
		prev.logger.Error("config reload logger init failed", slog.String("error", err.Error()))
		return fmt.Errorf("init reload logger: %w", err)
	}

	prev.stop("reload")
	next, startErr := s.launch(ctx, nextCfg, nextLogger, nextCloseLog)
	if startErr == nil {
		prev.closeLogger()
		s.current = next
		if len(changes) == 0 {
			next.logger.Info("config reload applied, producer settings unchanged")
		} else {
			next.logger.Info("config reload applied", attrArgs(changes)...)
		}
		return nil
	}
	nextCloseLog()

	if ctx.Err() != nil {
		prev.logger.Info("config reload interrupted by shutdown")
		return nil
	}

	prev.logger.Error(
		"config reload apply failed, restoring previous runtime",
		append([]any{slog.String("error", startErr.Error())}, attrArgs(changes)...)...,
	)
	restored, rollbackErr := s.launch(ctx, prev.cfg, prev.logger, prev.closeLog)
	if rollbackErr != nil {
		prev.closeLogger()
		s.current = nil
		return fmt.Errorf("apply reload: %w; rollback failed: %w", startErr, rollbackErr)
	}
	s.current = restored
	restored.logger.Warn("config reload rejected, previous runtime restored", slog.String("error", startErr.Error()))
	return fmt.Errorf("apply reload: %w", startErr)
}

// finishUnexpected handles a producer that returned on its own.
// Params: ctx root lifecycle; outcome producer result.
// Returns: nil when shutdown raced the exit, error otherwise.
func (s *supervisor) finishUnexpected(ctx context.Context, outcome runOutcome) error {
	current := s.current
	current.exited = nil
	current.outcome = outcome

	reason := "exited"
	if ctx.Err() != nil {
		reason = "shutdown"
	}
	current.stop(reason)
	defer current.closeLogger()

	if ctx.Err() != nil {
		current.logger.Info("runtime stopped", slog.String("reason", context.Cause(ctx).Error()))
		return nil
	}

	runErr := outcome.err
	if runErr == nil {
		runErr = errProducerExited
	}
	current.logger.Error("pipeline stopped unexpectedly", slog.String("error", runErr.Error()))
	return fmt.Errorf("run pipeline: %w", runErr)
}

// stop cancels the producer, waits for its final flush, stops the debug server, and logs the drain.
// Repeated calls return the first outcome.
// Params: reason recorded with the drain report.
// Returns: producer outcome.
func (r *producerRuntime) stop(reason string) runOutcome {
	if r.stopped {
		return r.outcome
	}
	r.stopped = true

	if r.cancel != nil {
		r.cancel()
	}
	if r.exited != nil {
		r.outcome = <-r.exited
		r.exited = nil
	}
	if r.stopDebug != nil {
		r.stopDebug()
	}

	logDrain(r.logger, reason, r.outcome.summary)
	return r.outcome
}

func (r *producerRuntime) closeLogger() {
	if r.closeLog != nil {
		r.closeLog()
		r.closeLog = nil
	}
}

// logDrain reports producer totals and the shutdown flush of one generation.
// Params: logger target; reason shutdown|reload|exited; summary producer totals.
// Returns: none.
func logDrain(logger *slog.Logger, reason string, summary pipeline.RunSummary) {
	finalOutcome := "empty"
	if summary.Final.Size > 0 {
		finalOutcome = string(summary.Final.Outcome)
	}
	attrs := []any{
		slog.String("reason", reason),
		slog.Int("generated", summary.Generated),
		slog.Int("delivered", summary.Delivered),
		slog.Int("dropped", summary.Dropped),
		slog.Int("final_records", summary.Final.Size),
		slog.String("final_outcome", finalOutcome),
	}
	if summary.Final.Err != nil {
		attrs = append(attrs, slog.String("final_error", summary.Final.Err.Error()))
	}

	if summary.Dropped > 0 {
		logger.Warn("producer drained", attrs...)
		return
	}
	logger.Info("producer drained", attrs...)
}

// newRegistry creates a per-runtime registry with Go runtime and process collectors.
// Params: none.
// Returns: registry shared by the debug server and engine self-metrics.
func newRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}
