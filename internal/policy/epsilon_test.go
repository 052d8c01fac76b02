package policy

import (
	"math/rand"
	"testing"
)

func TestChooseDecaysOnEveryCall(t *testing.T) {
	g := Greedy{Decay: 0.001, Floor: 0.05}
	rng := rand.New(rand.NewSource(7))

	eps := 1.0
	prev := eps
	for i := 0; i < 2000; i++ {
		_, next := g.Choose(rng, eps)
		if next > prev {
			t.Fatalf("epsilon increased at call %d: %v -> %v", i, prev, next)
		}
		if next < g.Floor {
			t.Fatalf("epsilon %v dropped below floor %v", next, g.Floor)
		}
		prev = next
		eps = next
	}
	if eps != g.Floor {
		t.Fatalf("expected epsilon to reach floor %v after 2000 calls, got %v", g.Floor, eps)
	}
}

func TestChooseDecayIndependentOfOutcome(t *testing.T) {
	g := Greedy{Decay: 0.01, Floor: 0}
	rng := rand.New(rand.NewSource(1))

	// With eps=0 exploration can never fire, yet decay still applies.
	explore, next := g.Choose(rng, 0)
	if explore {
		t.Fatal("exploration fired with epsilon 0")
	}
	if next != 0 {
		t.Fatalf("expected epsilon clamped at floor 0, got %v", next)
	}

	_, next = g.Choose(rng, 0.5)
	if next != 0.49 {
		t.Fatalf("expected 0.49 after one decay, got %v", next)
	}
}

func TestChooseDisabled(t *testing.T) {
	g := Greedy{Disabled: true, Decay: 0.5, Floor: 0}
	rng := rand.New(rand.NewSource(3))

	for i := 0; i < 100; i++ {
		explore, next := g.Choose(rng, 0.9)
		if explore {
			t.Fatal("disabled rule chose exploration")
		}
		if next != 0.9 {
			t.Fatalf("disabled rule mutated epsilon: %v", next)
		}
	}
}

func TestChooseExplorationRateTracksEpsilon(t *testing.T) {
	g := Greedy{Decay: 0, Floor: 0}
	rng := rand.New(rand.NewSource(99))

	hits := 0
	const trials = 20000
	for i := 0; i < trials; i++ {
		explore, _ := g.Choose(rng, 0.3)
		if explore {
			hits++
		}
	}
	rate := float64(hits) / trials
	if rate < 0.27 || rate > 0.33 {
		t.Fatalf("exploration rate %v too far from epsilon 0.3", rate)
	}
}

func TestPerturbScoresRange(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	scores := []float64{100, -100, 0, 42}
	PerturbScores(rng, scores)
	for i, s := range scores {
		if s < -1 || s >= 1 {
			t.Fatalf("score %d out of [-1,1): %v", i, s)
		}
	}
}
