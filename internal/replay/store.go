package replay

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"perilune/internal/model"
)

var ErrInsufficientData = errors.New("not enough transitions to sample")

// Store is a fixed-capacity ring buffer of immutable transitions. Admission
// is conditional on reward magnitude: steps whose absolute reward does not
// exceed the threshold carry no learning signal and are discarded.
type Store struct {
	entries  []model.Transition
	capacity int
	next     int
	admit    float64
}

func NewStore(capacity int, admitThreshold float64) (*Store, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("replay capacity must be positive, got %d", capacity)
	}
	if admitThreshold < 0 {
		return nil, fmt.Errorf("admission threshold must be non-negative, got %v", admitThreshold)
	}
	return &Store{
		capacity: capacity,
		admit:    admitThreshold,
	}, nil
}

// Push admits the transition if abs(reward) exceeds the admission threshold.
// Once the store is full each accepted push evicts the oldest entry. The
// return value reports whether the transition was admitted.
func (s *Store) Push(t model.Transition) bool {
	if math.Abs(t.Reward) <= s.admit {
		return false
	}
	if len(s.entries) < s.capacity {
		s.entries = append(s.entries, t)
	} else {
		s.entries[s.next] = t
	}
	s.next = (s.next + 1) % s.capacity
	return true
}

// Sample draws k transitions uniformly with replacement. It fails with
// ErrInsufficientData when fewer than k transitions are stored; callers are
// expected to gate on Size first.
func (s *Store) Sample(rng *rand.Rand, k int) ([]model.Transition, error) {
	if k <= 0 {
		return nil, fmt.Errorf("sample size must be positive, got %d", k)
	}
	if len(s.entries) < k {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrInsufficientData, len(s.entries), k)
	}
	batch := make([]model.Transition, k)
	for i := range batch {
		batch[i] = s.entries[rng.Intn(len(s.entries))]
	}
	return batch, nil
}

func (s *Store) Size() int {
	return len(s.entries)
}

func (s *Store) Capacity() int {
	return s.capacity
}
