package app

import (
	"fmt"
	"log/slog"

	"synthprod/internal/config"
)

// settingChanges lists producer settings that differ between two configs.
// Params: prev running config; next candidate config.
// Returns: one "before -> after" attribute per changed setting, in stable order.
func settingChanges(prev, next *config.Config) []slog.Attr {
	var diff settingDiff
	if prev == nil || next == nil {
		return nil
	}

	diff.add("global.host", prev.Global.Host, next.Global.Host)
	diff.add("global.tags", prev.Global.Tags, next.Global.Tags)

	diff.add("producer.cadence", cadenceOf(prev), cadenceOf(next))
	diff.add("producer.batch_size", prev.Producer.BatchSize, next.Producer.BatchSize)

	diff.add("generator.base_cpu", floatSetting(prev.Generator.BaseCPU), floatSetting(next.Generator.BaseCPU))
	diff.add("generator.base_latency", floatSetting(prev.Generator.BaseLatency), floatSetting(next.Generator.BaseLatency))
	diff.add(
		"generator.spike_probability",
		floatSetting(prev.Generator.SpikeProbability),
		floatSetting(next.Generator.SpikeProbability),
	)
	diff.add("generator.seed", prev.Generator.Seed, next.Generator.Seed)

	diff.add("retry.max_attempts", prev.Retry.MaxAttempts, next.Retry.MaxAttempts)
	diff.add("retry.initial_delay", prev.Retry.InitialDelay.Duration, next.Retry.InitialDelay.Duration)
	diff.add("retry.max_delay", prev.Retry.MaxDelay.Duration, next.Retry.MaxDelay.Duration)

	diff.add("sink.kind", prev.Sink.Kind, next.Sink.Kind)
	diff.add("sink.endpoint", sinkEndpoint(prev.Sink), sinkEndpoint(next.Sink))
	diff.add("sink.timeout", prev.Sink.AttemptTimeout(), next.Sink.AttemptTimeout())
	if next.Sink.Kind == config.SinkHTTP {
		diff.add("sink.http.encoding", prev.Sink.HTTP.Encoding, next.Sink.HTTP.Encoding)
		diff.add("sink.http.compression", prev.Sink.HTTP.Compression, next.Sink.HTTP.Compression)
	}
	return diff
}

type settingDiff []slog.Attr

func (d *settingDiff) add(name string, before, after any) {
	was, now := fmt.Sprint(before), fmt.Sprint(after)
	if was == now {
		return
	}
	*d = append(*d, slog.String(name, was+" -> "+now))
}

func cadenceOf(cfg *config.Config) any {
	if cfg.Producer.Cadence == nil {
		return "unset"
	}
	return cfg.Producer.Cadence.Duration
}

func floatSetting(value *float64) any {
	if value == nil {
		return "unset"
	}
	return *value
}

// sinkEndpoint returns the address the sink delivers to; credentials are never included.
func sinkEndpoint(cfg config.SinkConfig) string {
	switch cfg.Kind {
	case config.SinkHTTP:
		return cfg.HTTP.URL
	case config.SinkGRPC:
		return cfg.GRPC.Addr
	default:
		return cfg.Kind
	}
}

// attrArgs converts attributes into slog variadic arguments.
func attrArgs(attrs []slog.Attr) []any {
	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	return args
}
