package pipeline

import "sync"

// DefaultBatchSize is the flush threshold used when none is configured.
const DefaultBatchSize = 20

// Batcher accumulates points in arrival order until the size threshold is reached.
// Add and Drain are mutually exclusive, so a point is never added mid-drain.
type Batcher struct {
	mu     sync.Mutex
	size   int
	points []MetricPoint
}

// NewBatcher creates an empty batcher.
// Params: size flush threshold; values <= 0 are treated as 1.
// Returns: batcher instance.
func NewBatcher(size int) *Batcher {
	if size <= 0 {
		size = 1
	}
	return &Batcher{size: size}
}

// Add appends one point to the current batch.
// Params: point generated observation.
// Returns: none.
func (b *Batcher) Add(point MetricPoint) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.points == nil {
		b.points = make([]MetricPoint, 0, b.size)
	}
	b.points = append(b.points, point)
}

// Ready reports whether buffered count reached the threshold.
// Params: none.
// Returns: true when len >= size.
func (b *Batcher) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.points) >= b.size
}

// Drain removes and returns all buffered points.
// Params: none.
// Returns: points in arrival order; nil when nothing is buffered.
func (b *Batcher) Drain() []MetricPoint {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.points
	b.points = nil
	return out
}

// Len returns the number of buffered points.
func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.points)
}

// Size returns the configured flush threshold.
func (b *Batcher) Size() int {
	return b.size
}
