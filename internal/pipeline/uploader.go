package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	attemptResultSuccess   = "success"
	attemptResultTransient = "transient"
	attemptResultFatal     = "fatal"
)

// BatchUploader delivers one drained batch.
// Params: context and batch payload.
// Returns: nil on delivery or terminal *DeliveryError.
type BatchUploader interface {
	Upload(ctx context.Context, batch []MetricPoint) error
}

// UploaderConfig defines resilient upload runtime.
// Params: sink, retry policy, clock, per-attempt timeout, logger, and optional metrics.
// Returns: uploader configuration.
type UploaderConfig struct {
	Sink    Sink
	Policy  RetryPolicy
	Clock   Clock
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *SelfMetrics
}

// Uploader wraps a sink with bounded exponential backoff.
//
// Each Upload call walks Attempting(1) -> Success | Retrying(n+1) | Aborted | Exhausted.
// Backoff waits are not interrupted by ctx; only sink calls observe it.
type Uploader struct {
	sink    Sink
	policy  RetryPolicy
	clock   Clock
	timeout time.Duration
	logger  *slog.Logger
	metrics *SelfMetrics
}

// NewUploader validates config and builds an uploader.
// Params: cfg uploader settings.
// Returns: uploader or error when sink/logger is missing.
func NewUploader(cfg UploaderConfig) (*Uploader, error) {
	if cfg.Sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = RealClock()
	}

	return &Uploader{
		sink:    cfg.Sink,
		policy:  cfg.Policy.normalized(),
		clock:   clock,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}, nil
}

// Upload sends batch as one unit, retrying transient failures.
// Params: ctx passed to sink calls; batch points to deliver.
// Returns: nil on success (or empty batch), *DeliveryError on fatal abort or exhaustion.
func (u *Uploader) Upload(ctx context.Context, batch []MetricPoint) error {
	if len(batch) == 0 {
		return nil
	}

	for attempt := 1; ; attempt++ {
		err := u.sendOnce(ctx, batch)
		if err == nil {
			u.metrics.attemptFinished(attemptResultSuccess, len(batch))
			u.logger.Info(
				"batch uploaded",
				slog.Int("records", len(batch)),
				slog.Int("attempt", attempt),
				slog.String("at", u.clock.Now().UTC().Format(time.RFC3339Nano)),
			)
			return nil
		}

		if ClassifyFailure(err) == FailureFatal {
			u.metrics.attemptFinished(attemptResultFatal, 0)
			return &DeliveryError{Kind: DeliveryFatal, Attempts: attempt, Cause: err}
		}

		u.metrics.attemptFinished(attemptResultTransient, 0)
		if attempt >= u.policy.MaxAttempts {
			return &DeliveryError{Kind: DeliveryRetriesExhausted, Attempts: attempt, Cause: err}
		}

		delay := u.policy.Delay(attempt)
		u.logger.Warn(
			"upload attempt failed, retrying",
			slog.Int("records", len(batch)),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", u.policy.MaxAttempts),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)
		<-u.clock.After(delay)
		u.metrics.backoffWaited(delay)
	}
}

// sendOnce performs one sink call bounded by the per-attempt timeout.
// Params: ctx parent context; batch payload.
// Returns: raw sink error.
func (u *Uploader) sendOnce(ctx context.Context, batch []MetricPoint) error {
	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}
	return u.sink.Send(ctx, batch)
}
