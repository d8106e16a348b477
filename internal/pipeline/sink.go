package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
)

// Sink delivers one batch to the ingestion endpoint.
// Params: context and batch payload.
// Returns: nil on success; Transient/Fatal classified error on failure.
type Sink interface {
	Send(ctx context.Context, batch []MetricPoint) error
}

// LogSink writes batch payloads into debug logs.
// Params: logger used for output.
// Returns: dry-run sink instance.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a dry-run sink.
// Params: logger instance.
// Returns: batch sink implementation.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Send logs one batch as compact JSON.
// Params: ctx checked for enabled level; batch payload to log.
// Returns: fatal error when payload cannot be encoded.
func (s *LogSink) Send(ctx context.Context, batch []MetricPoint) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !s.logger.Enabled(ctx, slog.LevelDebug) {
		return nil
	}

	payload, err := json.Marshal(batch)
	if err != nil {
		return Fatal(fmt.Errorf("marshal batch: %w", err))
	}

	s.logger.Debug(
		"metric batch",
		slog.Int("records", len(batch)),
		slog.String("payload", string(payload)),
	)
	return nil
}

// closeSink releases sink resources when the sink holds any.
// Params: sink implementation; logger reports close failures.
// Returns: none.
func closeSink(sink Sink, logger *slog.Logger) {
	closer, ok := sink.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil && logger != nil {
		logger.Error("close sink failed", slog.String("error", err.Error()))
	}
}
