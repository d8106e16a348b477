package app

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"synthprod/internal/config"
)

func attrMap(attrs []slog.Attr) map[string]string {
	out := make(map[string]string, len(attrs))
	for _, attr := range attrs {
		out[attr.Key] = attr.Value.String()
	}
	return out
}

// TestSettingChanges_IdenticalConfigs verifies no attributes for unchanged settings.
// Params: t test context.
// Returns: none.
func TestSettingChanges_IdenticalConfigs(t *testing.T) {
	if got := settingChanges(producerConfig("host-a", 5), producerConfig("host-a", 5)); len(got) != 0 {
		t.Fatalf("unexpected changes: %v", got)
	}
}

// TestSettingChanges_ListsProducerSettings verifies each changed setting is reported as before -> after.
// Params: t test context.
// Returns: none.
func TestSettingChanges_ListsProducerSettings(t *testing.T) {
	prev := producerConfig("host-a", 5)
	next := producerConfig("host-b", 5)
	next.Producer.Cadence = &config.Duration{Duration: 250 * time.Millisecond}
	spike := 0.5
	next.Generator.SpikeProbability = &spike
	next.Sink = config.SinkConfig{
		Kind:    config.SinkGRPC,
		Timeout: &config.Duration{Duration: time.Second},
		GRPC:    config.GRPCSinkConfig{Addr: "collector:7000", Token: "secret"},
	}

	got := attrMap(settingChanges(prev, next))
	want := map[string]string{
		"global.host":                 "host-a -> host-b",
		"producer.cadence":            "1s -> 250ms",
		"generator.spike_probability": "unset -> 0.5",
		"sink.kind":                   "log -> grpc",
		"sink.endpoint":               "log -> collector:7000",
	}
	if len(got) != len(want) {
		t.Fatalf("changes=%v, want=%v", got, want)
	}
	for key, value := range want {
		if got[key] != value {
			t.Fatalf("%s=%q, want=%q", key, got[key], value)
		}
	}
	for _, value := range got {
		if strings.Contains(value, "secret") {
			t.Fatalf("token must never be reported")
		}
	}
}
