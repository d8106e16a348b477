package pipeline

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestSelfMetrics_ExposedNames verifies the registry exposes namespaced series.
// Params: testing.T for assertions.
// Returns: none.
func TestSelfMetrics_ExposedNames(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewSelfMetrics(registry)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}

	metrics.pointGenerated(1)
	metrics.batchFlushed(FlushDelivered)
	metrics.attemptFinished(attemptResultSuccess, 1)
	metrics.backoffWaited(1500 * time.Millisecond)

	expected := `
# HELP synthprod_upload_backoff_seconds_total Time spent waiting between upload attempts.
# TYPE synthprod_upload_backoff_seconds_total counter
synthprod_upload_backoff_seconds_total 1.5
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "synthprod_upload_backoff_seconds_total"); err != nil {
		t.Fatalf("unexpected backoff metric: %v", err)
	}

	count, err := testutil.GatherAndCount(registry)
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 6 {
		t.Fatalf("series=%d, want=6", count)
	}
}

// TestSelfMetrics_DuplicateRegistrationFails verifies one metrics set per registry.
// Params: testing.T for assertions.
// Returns: none.
func TestSelfMetrics_DuplicateRegistrationFails(t *testing.T) {
	registry := prometheus.NewRegistry()
	if _, err := NewSelfMetrics(registry); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewSelfMetrics(registry); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

// TestSelfMetrics_NilIsSafe verifies components may run without metrics.
// Params: testing.T for assertions.
// Returns: none.
func TestSelfMetrics_NilIsSafe(t *testing.T) {
	var metrics *SelfMetrics
	metrics.pointGenerated(3)
	metrics.bufferDrained()
	metrics.batchFlushed(FlushDropped)
	metrics.attemptFinished(attemptResultFatal, 0)
	metrics.backoffWaited(time.Second)
}
