package scape

import (
	"context"
	"fmt"
	"math"
	"math/rand"
)

// Lander actions.
const (
	LanderNoop = iota
	LanderLeftEngine
	LanderMainEngine
	LanderRightEngine
)

// LanderScape is a simplified 2D powered-descent task: bring the craft down
// onto the pad at the origin with low speed and little tilt. Observation is
// [x, y, vx, vy, angle, angularVelocity]; landing pays +100, crashing or
// drifting out of bounds pays -100, engines burn a small fuel cost, and a
// potential term rewards progress toward a slow, upright touchdown.
type LanderScape struct {
	seed int64
	rng  *rand.Rand

	x, y, vx, vy float64
	angle, vAng  float64
	steps        int
	prevScore    float64
	active       bool
}

const (
	landerDT         = 0.05
	landerGravity    = 1.0
	landerMainThrust = 2.2
	landerSideForce  = 0.12
	landerSideTorque = 0.25
	landerPadHalf    = 0.3
	landerBoundX     = 1.5
	landerCeiling    = 2.0
	landerMaxSteps   = 1000
	landerMainCost   = 0.3
	landerSideCost   = 0.03
)

func NewLander(seed int64) *LanderScape {
	return &LanderScape{
		seed: seed,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

func (l *LanderScape) Name() string         { return "lander-lite" }
func (l *LanderScape) ObservationSize() int { return 6 }
func (l *LanderScape) ActionCount() int     { return 4 }

func (l *LanderScape) Reset(ctx context.Context) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.x = (l.rng.Float64()*2 - 1) * 0.4
	l.y = 1.5
	l.vx = (l.rng.Float64()*2 - 1) * 0.2
	l.vy = 0
	l.angle = (l.rng.Float64()*2 - 1) * 0.1
	l.vAng = 0
	l.steps = 0
	l.prevScore = l.score()
	l.active = true
	return l.observation(), nil
}

func (l *LanderScape) Step(ctx context.Context, action int) (StepResult, error) {
	if err := ctx.Err(); err != nil {
		return StepResult{}, err
	}
	if !l.active {
		return StepResult{}, fmt.Errorf("step before reset")
	}
	if action < 0 || action >= l.ActionCount() {
		return StepResult{}, fmt.Errorf("action %d out of range [0,%d)", action, l.ActionCount())
	}

	ax, ay := 0.0, -landerGravity
	fuel := 0.0
	switch action {
	case LanderMainEngine:
		ax += -landerMainThrust * math.Sin(l.angle)
		ay += landerMainThrust * math.Cos(l.angle)
		fuel = landerMainCost
	case LanderLeftEngine:
		ax += landerSideForce
		l.vAng += landerSideTorque * landerDT
		fuel = landerSideCost
	case LanderRightEngine:
		ax += -landerSideForce
		l.vAng -= landerSideTorque * landerDT
		fuel = landerSideCost
	}

	l.vx += ax * landerDT
	l.vy += ay * landerDT
	l.x += l.vx * landerDT
	l.y += l.vy * landerDT
	l.angle += l.vAng * landerDT
	l.steps++

	score := l.score()
	reward := score - l.prevScore - fuel
	l.prevScore = score

	res := StepResult{Observation: l.observation(), Reward: reward}
	switch {
	case l.y <= 0:
		l.active = false
		res.Terminated = true
		if l.landedSafely() {
			res.Reward += 100
		} else {
			res.Reward -= 100
		}
	case math.Abs(l.x) > landerBoundX || l.y > landerCeiling:
		l.active = false
		res.Terminated = true
		res.Reward -= 100
	case l.steps >= landerMaxSteps:
		l.active = false
		res.Truncated = true
	}
	return res, nil
}

func (l *LanderScape) landedSafely() bool {
	return math.Abs(l.x) <= landerPadHalf &&
		math.Abs(l.vx) <= 0.5 &&
		math.Abs(l.vy) <= 1.0 &&
		math.Abs(l.angle) <= 0.3
}

// score is the potential term: closer, slower, and more upright is better.
func (l *LanderScape) score() float64 {
	dist := math.Hypot(l.x, l.y)
	speed := math.Hypot(l.vx, l.vy)
	return -(10*dist + 5*speed + 5*math.Abs(l.angle))
}

func (l *LanderScape) observation() []float64 {
	return []float64{l.x, l.y, l.vx, l.vy, l.angle, l.vAng}
}
