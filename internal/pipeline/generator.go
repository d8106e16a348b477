package pipeline

import (
	"math"
	"math/rand/v2"
	"time"
)

const (
	// DefaultHost is the logical source identifier used when none is configured.
	DefaultHost = "synthetic-host-1"
	// DefaultBaseCPU is the default CPU utilization baseline in percent.
	DefaultBaseCPU = 25.0
	// DefaultBaseLatency is the default latency baseline in milliseconds.
	DefaultBaseLatency = 50.0
	// DefaultSpikeProbability is the default per-point incident probability.
	DefaultSpikeProbability = 0.05

	cpuStdDev       = 5.0
	latencyStdDev   = 10.0
	minLatencyMs    = 1.0
	spikeCPUMin     = 30.0
	spikeCPUMax     = 60.0
	spikeLatencyMin = 100.0
	spikeLatencyMax = 400.0
	driftScale      = 10.0
)

// GeneratorConfig defines synthetic point generation parameters.
// Params: host identity, static tags, baselines, spike probability, and optional seed/time source.
// Returns: generator settings.
type GeneratorConfig struct {
	Host             string
	Tags             map[string]string
	BaseCPU          float64
	BaseLatency      float64
	SpikeProbability float64
	// Seed fixes the random stream; zero draws a seed from runtime entropy.
	Seed uint64
	Now  func() time.Time
}

// DefaultGeneratorConfig returns baseline settings matching the stock producer.
// Params: none.
// Returns: generator config with default host, tags, and baselines.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Host: DefaultHost,
		Tags: map[string]string{
			"env":    "dev",
			"source": "synthetic-producer",
		},
		BaseCPU:          DefaultBaseCPU,
		BaseLatency:      DefaultBaseLatency,
		SpikeProbability: DefaultSpikeProbability,
	}
}

// Generator produces noisy CPU/latency samples with occasional spikes.
// It is not safe for concurrent use.
type Generator struct {
	cfg GeneratorConfig
	rng *rand.Rand
	now func() time.Time
}

// NewGenerator builds a generator from config.
// Params: cfg generation parameters.
// Returns: ready generator.
func NewGenerator(cfg GeneratorConfig) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	cfg.Tags = cloneTags(cfg.Tags)

	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now: now,
	}
}

// Next draws one observation.
// Params: none.
// Returns: point with cpu >= 0 and latency >= 1.0, rounded to two decimals.
func (g *Generator) Next() MetricPoint {
	cpu := clampFloor(g.cfg.BaseCPU+g.rng.NormFloat64()*cpuStdDev, 0)
	latency := clampFloor(g.cfg.BaseLatency+g.rng.NormFloat64()*latencyStdDev, minLatencyMs)

	if g.rng.Float64() < g.cfg.SpikeProbability {
		cpu += g.uniform(spikeCPUMin, spikeCPUMax)
		latency += g.uniform(spikeLatencyMin, spikeLatencyMax)
	}

	cpu += g.drift()

	return MetricPoint{
		Timestamp:  g.now().UTC(),
		Host:       g.cfg.Host,
		CPUPercent: round2(cpu),
		LatencyMs:  round2(latency),
		Tags:       cloneTags(g.cfg.Tags),
	}
}

// uniform draws from [low, high).
// Params: low/high interval bounds.
// Returns: random value.
func (g *Generator) uniform(low, high float64) float64 {
	return low + g.rng.Float64()*(high-low)
}

// clampFloor raises value to floor; non-finite values collapse to floor.
func clampFloor(value, floor float64) float64 {
	if !(value >= floor) || math.IsInf(value, 1) {
		return floor
	}
	return value
}

// drift returns bounded positive jitter in [1.875, 9.375].
// Params: none.
// Returns: additive cpu offset.
func (g *Generator) drift() float64 {
	amplitude := 0.5 + 0.5*(g.rng.Float64()-0.5)
	scale := 1 + 0.5*(g.rng.Float64()-0.5)
	return driftScale * amplitude * scale
}
