package pipeline

import (
	"math"
	"time"
)

// MetricPoint is one synthetic observation.
// Params: creation time, source host, sampled values, and static tags.
// Returns: immutable record value shared read-only after generation.
type MetricPoint struct {
	Timestamp  time.Time         `json:"TimeGenerated"`
	Host       string            `json:"Host"`
	CPUPercent float64           `json:"cpu_percent"`
	LatencyMs  float64           `json:"latency_ms"`
	Tags       map[string]string `json:"tags"`
}

// PointSource produces metric points on demand.
// Params: none.
// Returns: next point; implementations must not fail.
type PointSource interface {
	Next() MetricPoint
}

// round2 rounds value to two decimal places.
// Params: value raw float.
// Returns: rounded float.
func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

// cloneTags copies tag map so points never share mutable state.
// Params: tags source map.
// Returns: independent copy, never nil so rows always carry a tags object.
func cloneTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for key, value := range tags {
		out[key] = value
	}
	return out
}
