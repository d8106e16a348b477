package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"synthprod/internal/config"
	"synthprod/internal/metrics"
)

// Engine owns one producer and the sink it uploads to.
// Params: producer loop, sink, and logger.
// Returns: pipeline runtime engine.
type Engine struct {
	producer *Producer
	sink     Sink
	logger   *slog.Logger
}

// NewFromConfig builds sink, generator, uploader, and producer from config.
// Params: ctx for host probing; cfg validated runtime config; logger initialized logger;
// registerer receives self-metrics (nil disables registration).
// Returns: engine ready to run or error.
func NewFromConfig(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*Engine, error) {
	sink, err := buildSink(cfg.Sink, logger)
	if err != nil {
		return nil, fmt.Errorf("init sink: %w", err)
	}

	selfMetrics, err := NewSelfMetrics(registerer)
	if err != nil {
		closeSink(sink, logger)
		return nil, err
	}

	uploader, err := NewUploader(UploaderConfig{
		Sink: sink,
		Policy: RetryPolicy{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.InitialDelay.Duration,
			MaxDelay:     cfg.Retry.MaxDelay.Duration,
		},
		Timeout: cfg.Sink.AttemptTimeout(),
		Logger:  logger,
		Metrics: selfMetrics,
	})
	if err != nil {
		closeSink(sink, logger)
		return nil, fmt.Errorf("init uploader: %w", err)
	}

	var cadence time.Duration
	if cfg.Producer.Cadence != nil {
		cadence = cfg.Producer.Cadence.Duration
	}

	producer, err := NewProducer(ProducerConfig{
		Source:    NewGenerator(resolveGeneratorConfig(ctx, cfg, logger)),
		Uploader:  uploader,
		Cadence:   cadence,
		BatchSize: cfg.Producer.BatchSize,
		Logger:    logger,
		Metrics:   selfMetrics,
	})
	if err != nil {
		closeSink(sink, logger)
		return nil, fmt.Errorf("init producer: %w", err)
	}

	logger.Info(
		"pipeline configured",
		slog.String("sink", cfg.Sink.Kind),
		slog.String("host", cfg.Global.Host),
		slog.Int("max_attempts", cfg.Retry.MaxAttempts),
	)

	return &Engine{producer: producer, sink: sink, logger: logger}, nil
}

// Run executes the producer until ctx is canceled, drains the buffered batch, and releases the sink.
// Params: ctx runtime cancellation context.
// Returns: run totals including the shutdown flush, and producer error.
func (e *Engine) Run(ctx context.Context) (RunSummary, error) {
	defer closeSink(e.sink, e.logger)
	err := e.producer.Run(ctx)
	return e.producer.Summary(), err
}

// buildSink creates the configured sink implementation.
// Params: cfg sink section; logger for the log sink.
// Returns: sink or error on unsupported kind/invalid endpoint.
func buildSink(cfg config.SinkConfig, logger *slog.Logger) (Sink, error) {
	switch cfg.Kind {
	case config.SinkHTTP:
		return NewHTTPSink(HTTPSinkConfig{
			URL:         cfg.HTTP.URL,
			Token:       cfg.HTTP.Token,
			Headers:     cfg.HTTP.Headers,
			Encoding:    cfg.HTTP.Encoding,
			Compression: cfg.HTTP.Compression,
			Timeout:     cfg.AttemptTimeout(),
		})
	case config.SinkGRPC:
		return NewGRPCSink(GRPCSinkConfig{
			Addr:  cfg.GRPC.Addr,
			Token: cfg.GRPC.Token,
		})
	case config.SinkLog:
		return NewLogSink(logger), nil
	default:
		return nil, fmt.Errorf("unsupported sink kind %q", cfg.Kind)
	}
}

// resolveGeneratorConfig maps config into generator settings, applying host samples when enabled.
// Params: ctx for host sampling; cfg runtime config; logger reports sampling failures.
// Returns: generator settings; sampling failures keep configured values.
func resolveGeneratorConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) GeneratorConfig {
	genCfg := DefaultGeneratorConfig()
	genCfg.Host = cfg.Global.Host
	genCfg.Tags = cfg.Global.Tags
	genCfg.Seed = cfg.Generator.Seed
	if cfg.Generator.BaseCPU != nil {
		genCfg.BaseCPU = *cfg.Generator.BaseCPU
	}
	if cfg.Generator.BaseLatency != nil {
		genCfg.BaseLatency = *cfg.Generator.BaseLatency
	}
	if cfg.Generator.SpikeProbability != nil {
		genCfg.SpikeProbability = *cfg.Generator.SpikeProbability
	}

	if cfg.Generator.CalibrateFromHost {
		baseline, err := metrics.CPUBaseline(ctx, metrics.DefaultCalibrationWindow)
		if err != nil {
			logger.Warn("cpu calibration failed, keeping configured baseline", slog.String("error", err.Error()))
		} else {
			logger.Info("cpu baseline calibrated from host", slog.Float64("base_cpu", baseline))
			genCfg.BaseCPU = baseline
		}
	}

	if cfg.Generator.HostTags {
		detected, err := metrics.HostTags(ctx)
		if err != nil {
			logger.Warn("host tag lookup failed", slog.String("error", err.Error()))
		} else {
			genCfg.Tags = metrics.MergeTags(genCfg.Tags, detected)
		}
	}

	return genCfg
}
