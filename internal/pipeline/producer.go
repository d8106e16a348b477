package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// FlushOutcome is the loop-level result of one flush.
type FlushOutcome string

const (
	// FlushDelivered means the sink accepted the whole batch.
	FlushDelivered FlushOutcome = "delivered"
	// FlushDropped means the batch was discarded after a terminal upload error.
	FlushDropped FlushOutcome = "dropped"
)

// FlushReport is the observable event emitted for every flush attempt.
// Params: batch size, outcome, completion time, shutdown flag, and terminal error for drops.
// Returns: flush report value.
type FlushReport struct {
	Size    int
	Outcome FlushOutcome
	At      time.Time
	Final   bool
	Err     error
}

// RunSummary totals one producer run.
// Params: points generated, points delivered or dropped, and the shutdown flush report
// (zero Size when nothing was buffered).
// Returns: summary value.
type RunSummary struct {
	Generated int
	Delivered int
	Dropped   int
	Final     FlushReport
}

// ProducerConfig defines the generation/batching/upload loop.
// Params: point source, uploader, cadence, batch size, and optional clock/metrics/reporter.
// Returns: producer configuration.
type ProducerConfig struct {
	Source    PointSource
	Uploader  BatchUploader
	Cadence   time.Duration
	BatchSize int
	Clock     Clock
	Logger    *slog.Logger
	Metrics   *SelfMetrics
	Reporter  func(FlushReport)
}

// Producer pulls points on a fixed cadence, flushes full batches, and drains on shutdown.
type Producer struct {
	cfg     ProducerConfig
	batcher *Batcher
	clock   Clock
	started atomic.Bool

	mu      sync.Mutex
	summary RunSummary
}

// NewProducer validates config and builds a producer.
// Params: cfg loop settings.
// Returns: producer or error when a required collaborator is missing.
func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("point source is required")
	}
	if cfg.Uploader == nil {
		return nil, fmt.Errorf("uploader is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Cadence < 0 {
		return nil, fmt.Errorf("cadence must be >= 0")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	clock := cfg.Clock
	if clock == nil {
		clock = RealClock()
	}

	return &Producer{
		cfg:     cfg,
		batcher: NewBatcher(cfg.BatchSize),
		clock:   clock,
	}, nil
}

// Run produces points until ctx is canceled, then flushes what is buffered.
// Params: ctx cancellation signal; the final flush runs after it fires.
// Returns: nil on graceful stop; error when Run was already called.
func (p *Producer) Run(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return fmt.Errorf("producer already started")
	}

	// In-flight retry sequences must finish even when shutdown arrives mid-backoff.
	uploadCtx := context.WithoutCancel(ctx)

	p.cfg.Logger.Info(
		"producer started",
		slog.Duration("cadence", p.cfg.Cadence),
		slog.Int("batch_size", p.batcher.Size()),
	)

	for ctx.Err() == nil {
		p.batcher.Add(p.cfg.Source.Next())
		p.cfg.Metrics.pointGenerated(p.batcher.Len())
		p.mu.Lock()
		p.summary.Generated++
		p.mu.Unlock()

		if p.batcher.Ready() {
			p.flush(uploadCtx, false)
		}
		if !p.wait(ctx) {
			break
		}
	}

	p.flush(uploadCtx, true)
	p.cfg.Logger.Info("producer stopped")
	return nil
}

// wait suspends for one cadence interval.
// Params: ctx cancellation signal.
// Returns: false when ctx was canceled before or during the wait.
func (p *Producer) wait(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if p.cfg.Cadence <= 0 {
		return true
	}

	select {
	case <-ctx.Done():
		return false
	case <-p.clock.After(p.cfg.Cadence):
		return true
	}
}

// flush drains the batcher and uploads the batch once.
// Params: ctx upload context; final marks the shutdown flush.
// Returns: none; outcome is logged and reported.
func (p *Producer) flush(ctx context.Context, final bool) {
	batch := p.batcher.Drain()
	p.cfg.Metrics.bufferDrained()
	if len(batch) == 0 {
		return
	}
	if final {
		p.cfg.Logger.Info("flushing final batch", slog.Int("records", len(batch)))
	}

	err := p.cfg.Uploader.Upload(ctx, batch)
	report := FlushReport{
		Size:    len(batch),
		Outcome: FlushDelivered,
		At:      p.clock.Now().UTC(),
		Final:   final,
	}
	if err != nil {
		report.Outcome = FlushDropped
		report.Err = err
		p.cfg.Logger.Error(
			"batch dropped",
			slog.Int("records", len(batch)),
			slog.Bool("final", final),
			slog.String("error", err.Error()),
		)
	}

	p.cfg.Metrics.batchFlushed(report.Outcome)
	p.mu.Lock()
	if report.Outcome == FlushDelivered {
		p.summary.Delivered += report.Size
	} else {
		p.summary.Dropped += report.Size
	}
	if final {
		p.summary.Final = report
	}
	p.mu.Unlock()
	if p.cfg.Reporter != nil {
		p.cfg.Reporter(report)
	}
}

// Summary returns totals collected so far; after Run returns it covers the whole run.
// Params: none.
// Returns: run summary snapshot.
func (p *Producer) Summary() RunSummary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.summary
}
