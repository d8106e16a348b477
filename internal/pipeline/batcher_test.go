package pipeline

import (
	"sync"
	"testing"
)

// TestBatcher_ReadyAtThreshold verifies ready flag flips exactly at size.
// Params: testing.T for assertions.
// Returns: none.
func TestBatcher_ReadyAtThreshold(t *testing.T) {
	batcher := NewBatcher(3)

	for i := 1; i <= 3; i++ {
		if batcher.Ready() {
			t.Fatalf("ready before threshold at len=%d", batcher.Len())
		}
		batcher.Add(MetricPoint{LatencyMs: float64(i)})
	}
	if !batcher.Ready() {
		t.Fatalf("expected ready at len=3")
	}
}

// TestBatcher_DrainKeepsOrderAndEmpties verifies FIFO drain and empty state after drain.
// Params: testing.T for assertions.
// Returns: none.
func TestBatcher_DrainKeepsOrderAndEmpties(t *testing.T) {
	batcher := NewBatcher(10)
	for i := 1; i <= 4; i++ {
		batcher.Add(MetricPoint{LatencyMs: float64(i)})
	}

	batch := batcher.Drain()
	if len(batch) != 4 {
		t.Fatalf("drained=%d, want=4", len(batch))
	}
	for idx, point := range batch {
		if point.LatencyMs != float64(idx+1) {
			t.Fatalf("order broken at %d: %v", idx, point.LatencyMs)
		}
	}
	if batcher.Len() != 0 || batcher.Ready() {
		t.Fatalf("batcher not empty after drain")
	}
	if again := batcher.Drain(); len(again) != 0 {
		t.Fatalf("second drain must be empty, got %d", len(again))
	}

	batcher.Add(MetricPoint{LatencyMs: 5})
	if batch[0].LatencyMs != 1 {
		t.Fatalf("drained slice must not alias new buffer")
	}
}

// TestBatcher_NonPositiveSizeFallsBackToOne verifies size normalization.
// Params: testing.T for assertions.
// Returns: none.
func TestBatcher_NonPositiveSizeFallsBackToOne(t *testing.T) {
	batcher := NewBatcher(0)
	if batcher.Size() != 1 {
		t.Fatalf("size=%d, want=1", batcher.Size())
	}
	batcher.Add(MetricPoint{})
	if !batcher.Ready() {
		t.Fatalf("expected ready after one point")
	}
}

// TestBatcher_ConcurrentAddAndDrainLosesNothing verifies mutual exclusion of add and drain.
// Params: testing.T for assertions.
// Returns: none.
func TestBatcher_ConcurrentAddAndDrainLosesNothing(t *testing.T) {
	const writers = 8
	const perWriter = 500

	batcher := NewBatcher(16)
	var wg sync.WaitGroup
	wg.Add(writers)
	for w := 0; w < writers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				batcher.Add(MetricPoint{})
			}
		}()
	}

	total := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		select {
		case <-done:
			total += len(batcher.Drain())
			if total != writers*perWriter {
				t.Fatalf("drained=%d, want=%d", total, writers*perWriter)
			}
			return
		default:
			total += len(batcher.Drain())
		}
	}
}
