package replay

import (
	"math"
	"testing"
)

func newTestWindow(t *testing.T, affectPastN int, low, high float64, observe func(float64)) (*ShapingWindow, *Store) {
	t.Helper()
	store, err := NewStore(1000, 0)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	w, err := NewShapingWindow(store, affectPastN, low, high, observe)
	if err != nil {
		t.Fatalf("new shaping window: %v", err)
	}
	return w, store
}

func staged(reward float64) StagedTransition {
	return StagedTransition{State: []float64{0}, NextState: []float64{0}, Reward: reward}
}

func TestRewardBackPropagation(t *testing.T) {
	w, _ := newTestWindow(t, 10, -5, 5, nil)

	for _, r := range []float64{0.1, 0.2, 0.3} {
		w.Observe(staged(r))
	}
	w.Observe(staged(10))

	want := []float64{0.1 + 10.0/3, 0.2 + 10.0/2, 0.3 + 10.0/1, 10}
	if w.Len() != len(want) {
		t.Fatalf("expected %d staged records, got %d", len(want), w.Len())
	}
	for i, rec := range w.staged {
		if math.Abs(rec.Reward-want[i]) > 1e-9 {
			t.Fatalf("record %d reward = %v, want %v", i, rec.Reward, want[i])
		}
	}
}

func TestRewardWithinThresholdsDoesNotShape(t *testing.T) {
	w, _ := newTestWindow(t, 10, -5, 5, nil)

	for _, r := range []float64{0.1, 0.2, 0.3} {
		w.Observe(staged(r))
	}
	w.Observe(staged(5)) // boundary: thresholds are exclusive of the outside

	want := []float64{0.1, 0.2, 0.3, 5}
	for i, rec := range w.staged {
		if rec.Reward != want[i] {
			t.Fatalf("record %d reward = %v, want %v", i, rec.Reward, want[i])
		}
	}
}

func TestNegativeRewardShapes(t *testing.T) {
	w, _ := newTestWindow(t, 10, -5, 5, nil)

	w.Observe(staged(1))
	w.Observe(staged(-10))

	if got := w.staged[0].Reward; math.Abs(got-(1-10.0)) > 1e-9 {
		t.Fatalf("expected most recent record shaped to -9, got %v", got)
	}
}

func TestShortWindowStillShapes(t *testing.T) {
	w, _ := newTestWindow(t, 10, -5, 5, nil)

	w.Observe(staged(0.5))
	w.Observe(staged(20))

	if got := w.staged[0].Reward; math.Abs(got-20.5) > 1e-9 {
		t.Fatalf("single staged record got %v, want 20.5", got)
	}
}

func TestWindowEviction(t *testing.T) {
	var flushed []float64
	w, store := newTestWindow(t, 3, -5, 5, func(r float64) {
		flushed = append(flushed, r)
	})

	// Fill to the retention bound of affectPastN+1 records.
	for i := 1; i <= 4; i++ {
		w.Observe(staged(float64(i)))
	}
	if w.Len() != 4 {
		t.Fatalf("expected 4 staged before eviction kicks in, got %d", w.Len())
	}
	if len(flushed) != 0 {
		t.Fatalf("unexpected early flush: %v", flushed)
	}

	// One more observation forces exactly one flush of the oldest.
	w.Observe(staged(5))
	if w.Len() != 4 {
		t.Fatalf("expected window length held at 4, got %d", w.Len())
	}
	if len(flushed) != 1 || flushed[0] != 1 {
		t.Fatalf("expected exactly the oldest record flushed, got %v", flushed)
	}
	if store.Size() != 1 {
		t.Fatalf("flushed record did not reach the store: size %d", store.Size())
	}
}

func TestFlushAllPreservesOrderAndSurfacesRewards(t *testing.T) {
	var flushed []float64
	w, store := newTestWindow(t, 10, -5, 5, func(r float64) {
		flushed = append(flushed, r)
	})

	for _, r := range []float64{1, 2, 3} {
		w.Observe(staged(r))
	}
	w.FlushAll()

	if w.Len() != 0 {
		t.Fatalf("window not drained: %d", w.Len())
	}
	want := []float64{1, 2, 3}
	if len(flushed) != len(want) {
		t.Fatalf("surfaced rewards %v, want %v", flushed, want)
	}
	for i := range want {
		if flushed[i] != want[i] {
			t.Fatalf("surfaced rewards out of order: %v", flushed)
		}
	}
	if store.Size() != 3 {
		t.Fatalf("expected 3 admitted, got %d", store.Size())
	}
}

func TestFlushRespectsAdmissionFilter(t *testing.T) {
	store, err := NewStore(100, 0.5)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	w, err := NewShapingWindow(store, 10, -5, 5, nil)
	if err != nil {
		t.Fatalf("new shaping window: %v", err)
	}

	w.Observe(staged(0.2)) // below admission threshold
	w.Observe(staged(3))   // above
	w.FlushAll()

	if store.Size() != 1 {
		t.Fatalf("expected only the large reward admitted, got size %d", store.Size())
	}
}

func TestNewShapingWindowValidation(t *testing.T) {
	store, err := NewStore(10, 0)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := NewShapingWindow(nil, 1, -1, 1, nil); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := NewShapingWindow(store, -1, -1, 1, nil); err == nil {
		t.Fatal("expected error for negative affect-past count")
	}
	if _, err := NewShapingWindow(store, 1, 2, 1, nil); err == nil {
		t.Fatal("expected error for inverted thresholds")
	}
}
