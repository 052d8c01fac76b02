package policy

import "math/rand"

// Greedy is an epsilon-greedy exploration rule with linear decay toward a
// floor. The epsilon value itself is owned by the caller and threaded
// through Choose, so multiple loops can share one rule with independent
// schedules.
type Greedy struct {
	Disabled bool
	Decay    float64
	Floor    float64
}

// Choose draws one exploration decision and returns the decayed epsilon.
// Decay applies on every call, whether or not exploration fires, so Choose
// must be called exactly once per action selection.
func (g Greedy) Choose(rng *rand.Rand, eps float64) (explore bool, next float64) {
	if g.Disabled {
		return false, eps
	}
	explore = rng.Float64() < eps
	next = eps - g.Decay
	if next < g.Floor {
		next = g.Floor
	}
	return explore, next
}

// PerturbScores overwrites action scores in place with uniform noise in
// [-1, 1). Exploration replaces the value estimate ahead of the arg-max
// rather than overriding the final discrete choice.
func PerturbScores(rng *rand.Rand, scores []float64) {
	for i := range scores {
		scores[i] = rng.Float64()*2 - 1
	}
}
