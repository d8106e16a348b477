package pipeline

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const selfMetricsNamespace = "synthprod"

// SelfMetrics exposes producer health counters to prometheus.
// All methods are nil-safe so components can run without a registry.
type SelfMetrics struct {
	pointsGenerated prometheus.Counter
	pointsBuffered  prometheus.Gauge
	pointsDelivered prometheus.Counter
	batches         *prometheus.CounterVec
	attempts        *prometheus.CounterVec
	backoffSeconds  prometheus.Counter
}

// NewSelfMetrics creates producer collectors and registers them.
// Params: registerer target registry; nil skips registration.
// Returns: metrics set or registration error.
func NewSelfMetrics(registerer prometheus.Registerer) (*SelfMetrics, error) {
	m := &SelfMetrics{
		pointsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: selfMetricsNamespace,
			Name:      "points_generated_total",
			Help:      "Synthetic points produced by the generator.",
		}),
		pointsBuffered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: selfMetricsNamespace,
			Name:      "points_buffered",
			Help:      "Points waiting in the current batch.",
		}),
		pointsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: selfMetricsNamespace,
			Name:      "points_delivered_total",
			Help:      "Points accepted by the sink.",
		}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: selfMetricsNamespace,
			Name:      "batches_total",
			Help:      "Flushed batches by outcome.",
		}, []string{"outcome"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: selfMetricsNamespace,
			Name:      "upload_attempts_total",
			Help:      "Sink invocations by result.",
		}, []string{"result"}),
		backoffSeconds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: selfMetricsNamespace,
			Name:      "upload_backoff_seconds_total",
			Help:      "Time spent waiting between upload attempts.",
		}),
	}

	if registerer == nil {
		return m, nil
	}

	collectors := []prometheus.Collector{
		m.pointsGenerated,
		m.pointsBuffered,
		m.pointsDelivered,
		m.batches,
		m.attempts,
		m.backoffSeconds,
	}
	for _, collector := range collectors {
		if err := registerer.Register(collector); err != nil {
			return nil, fmt.Errorf("register producer metrics: %w", err)
		}
	}
	return m, nil
}

func (m *SelfMetrics) pointGenerated(buffered int) {
	if m == nil {
		return
	}
	m.pointsGenerated.Inc()
	m.pointsBuffered.Set(float64(buffered))
}

func (m *SelfMetrics) bufferDrained() {
	if m == nil {
		return
	}
	m.pointsBuffered.Set(0)
}

func (m *SelfMetrics) batchFlushed(outcome FlushOutcome) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(string(outcome)).Inc()
}

func (m *SelfMetrics) attemptFinished(result string, delivered int) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(result).Inc()
	if delivered > 0 {
		m.pointsDelivered.Add(float64(delivered))
	}
}

func (m *SelfMetrics) backoffWaited(delay time.Duration) {
	if m == nil {
		return
	}
	m.backoffSeconds.Add(delay.Seconds())
}
