package scape

import (
	"context"
	"fmt"
	"math"
	"math/rand"
)

// CartPoleScape is the classic pole-balancing task: push a cart left or
// right to keep the pole upright. Observation is [x, vx, theta, vTheta];
// every surviving step pays reward 1. The episode terminates when the pole
// tips past ~12 degrees or the cart leaves the track, and truncates after
// 500 steps.
type CartPoleScape struct {
	seed int64
	rng  *rand.Rand

	x, vx, theta, vTheta float64
	steps                int
	active               bool
}

const (
	cartGravity      = 9.8
	cartMass         = 1.0
	poleMass         = 0.1
	poleHalfLength   = 0.5
	cartForce        = 10.0
	cartDT           = 0.02
	cartAngleLimit   = 12 * math.Pi / 180
	cartTrackLimit   = 2.4
	cartMaxSteps     = 500
	cartTotalMass    = cartMass + poleMass
	poleMassLength   = poleMass * poleHalfLength
)

func NewCartPole(seed int64) *CartPoleScape {
	return &CartPoleScape{
		seed: seed,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

func (c *CartPoleScape) Name() string         { return "cart-pole" }
func (c *CartPoleScape) ObservationSize() int { return 4 }
func (c *CartPoleScape) ActionCount() int     { return 2 }

func (c *CartPoleScape) Reset(ctx context.Context) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.x = (c.rng.Float64()*2 - 1) * 0.05
	c.vx = (c.rng.Float64()*2 - 1) * 0.05
	c.theta = (c.rng.Float64()*2 - 1) * 0.05
	c.vTheta = (c.rng.Float64()*2 - 1) * 0.05
	c.steps = 0
	c.active = true
	return c.observation(), nil
}

func (c *CartPoleScape) Step(ctx context.Context, action int) (StepResult, error) {
	if err := ctx.Err(); err != nil {
		return StepResult{}, err
	}
	if !c.active {
		return StepResult{}, fmt.Errorf("step before reset")
	}
	if action < 0 || action >= c.ActionCount() {
		return StepResult{}, fmt.Errorf("action %d out of range [0,%d)", action, c.ActionCount())
	}

	force := cartForce
	if action == 0 {
		force = -cartForce
	}

	cosT := math.Cos(c.theta)
	sinT := math.Sin(c.theta)
	temp := (force + poleMassLength*c.vTheta*c.vTheta*sinT) / cartTotalMass
	thetaAcc := (cartGravity*sinT - cosT*temp) /
		(poleHalfLength * (4.0/3.0 - poleMass*cosT*cosT/cartTotalMass))
	xAcc := temp - poleMassLength*thetaAcc*cosT/cartTotalMass

	c.x += cartDT * c.vx
	c.vx += cartDT * xAcc
	c.theta += cartDT * c.vTheta
	c.vTheta += cartDT * thetaAcc
	c.steps++

	res := StepResult{Observation: c.observation(), Reward: 1}
	switch {
	case math.Abs(c.x) > cartTrackLimit || math.Abs(c.theta) > cartAngleLimit:
		c.active = false
		res.Terminated = true
	case c.steps >= cartMaxSteps:
		c.active = false
		res.Truncated = true
	}
	return res, nil
}

func (c *CartPoleScape) observation() []float64 {
	return []float64{c.x, c.vx, c.theta, c.vTheta}
}
