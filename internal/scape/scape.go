package scape

import (
	"context"
	"fmt"
	"strings"
)

// StepResult is one environment transition as seen by the training loop.
// Terminated reports a terminal state of the task itself; Truncated reports
// an externally imposed time bound. The loop treats both as episode end.
type StepResult struct {
	Observation []float64
	Reward      float64
	Terminated  bool
	Truncated   bool
}

// Scape is a simulated control task: reset to an initial observation, then
// step with discrete actions until the episode ends.
type Scape interface {
	Name() string
	ObservationSize() int
	ActionCount() int
	Reset(ctx context.Context) ([]float64, error)
	Step(ctx context.Context, action int) (StepResult, error)
}

// New builds the named scape seeded for reproducible dynamics.
func New(name string, seed int64) (Scape, error) {
	switch strings.TrimSpace(strings.ToLower(name)) {
	case "", "lander-lite":
		return NewLander(seed), nil
	case "cart-pole":
		return NewCartPole(seed), nil
	default:
		return nil, fmt.Errorf("unsupported scape: %s", name)
	}
}

// Names lists the registered scapes.
func Names() []string {
	return []string{"cart-pole", "lander-lite"}
}
