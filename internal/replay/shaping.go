package replay

import (
	"fmt"

	"perilune/internal/model"
)

// StagedTransition is a transition whose reward may still be adjusted while
// it waits in the shaping window. The staged type is distinct from
// model.Transition so the mutable-until-flushed invariant is visible in the
// types: once a record is forwarded to the store it is never touched again.
type StagedTransition struct {
	State     []float64
	Action    int
	NextState []float64
	Reward    float64
}

// ShapingWindow is a FIFO staging area ahead of the replay store. Large
// rewards are propagated backward over the staged records with harmonically
// diminishing magnitude before those records reach the store's admission
// filter, giving earlier steps credit for terminal-like outcomes.
type ShapingWindow struct {
	store  *Store
	staged []StagedTransition

	affectPastN int
	low, high   float64

	// observe, when set, receives each post-shaping reward as the record
	// leaves the window, ahead of the store's admission filter.
	observe func(reward float64)
}

func NewShapingWindow(store *Store, affectPastN int, low, high float64, observe func(float64)) (*ShapingWindow, error) {
	if store == nil {
		return nil, fmt.Errorf("shaping window requires a replay store")
	}
	if affectPastN < 0 {
		return nil, fmt.Errorf("affect-past count must be non-negative, got %d", affectPastN)
	}
	if low > high {
		return nil, fmt.Errorf("shaping thresholds inverted: low %v > high %v", low, high)
	}
	return &ShapingWindow{
		store:       store,
		affectPastN: affectPastN,
		low:         low,
		high:        high,
		observe:     observe,
	}, nil
}

// Observe stages a newly formed transition. If the window already holds more
// than affectPastN records the oldest is first forced out to the store. A
// reward outside [low, high] is then back-applied to the k records currently
// staged as reward/1, reward/2, ... from most recent to oldest; a window
// shorter than affectPastN still shapes whatever is present.
func (w *ShapingWindow) Observe(t StagedTransition) {
	if len(w.staged) > w.affectPastN {
		w.FlushOldest(1)
	}

	if t.Reward < w.low || t.Reward > w.high {
		for i := 0; i < len(w.staged); i++ {
			w.staged[len(w.staged)-1-i].Reward += t.Reward / float64(i+1)
		}
	}

	w.staged = append(w.staged, t)
}

// FlushOldest pops the n oldest staged records, surfaces their post-shaping
// rewards, and forwards each to the store's conditional admission.
func (w *ShapingWindow) FlushOldest(n int) {
	for i := 0; i < n && len(w.staged) > 0; i++ {
		st := w.staged[0]
		w.staged = w.staged[1:]

		if w.observe != nil {
			w.observe(st.Reward)
		}

		w.store.Push(model.Transition{
			State:     st.State,
			Action:    st.Action,
			NextState: st.NextState,
			Reward:    st.Reward,
		})
	}
}

// FlushAll drains the window. Must be called at episode termination so no
// staged transition is silently dropped.
func (w *ShapingWindow) FlushAll() {
	w.FlushOldest(len(w.staged))
}

func (w *ShapingWindow) Len() int {
	return len(w.staged)
}
