package train

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"perilune/internal/model"
	"perilune/internal/nn"
	"perilune/internal/replay"
	"perilune/internal/telemetry"
)

// Trainer performs one Double-DQN update per call: the online network
// selects the best next action, the target network evaluates it, and the
// TD loss plus the auxiliary next-state prediction loss drive a single
// optimizer step on the online network only.
type Trainer struct {
	online *nn.Network
	target *nn.Network
	store  *replay.Store
	opt    *nn.SGD

	gamma           float64
	surprisalBias   float64
	surprisalWeight float64

	rec telemetry.Recorder
	rng *rand.Rand
}

type TrainerConfig struct {
	Gamma           float64
	SurprisalBias   float64
	SurprisalWeight float64
}

func NewTrainer(online, target *nn.Network, store *replay.Store, opt *nn.SGD, cfg TrainerConfig, rec telemetry.Recorder, rng *rand.Rand) (*Trainer, error) {
	if online == nil || target == nil {
		return nil, fmt.Errorf("trainer requires online and target networks")
	}
	if store == nil {
		return nil, fmt.Errorf("trainer requires a replay store")
	}
	if opt == nil {
		return nil, fmt.Errorf("trainer requires an optimizer")
	}
	if cfg.Gamma < 0 || cfg.Gamma > 1 {
		return nil, fmt.Errorf("gamma must be in [0,1], got %v", cfg.Gamma)
	}
	if rng == nil {
		return nil, fmt.Errorf("trainer requires an rng")
	}
	if rec == nil {
		rec = telemetry.Discard{}
	}
	return &Trainer{
		online:          online,
		target:          target,
		store:           store,
		opt:             opt,
		gamma:           cfg.Gamma,
		surprisalBias:   cfg.SurprisalBias,
		surprisalWeight: cfg.SurprisalWeight,
		rec:             rec,
		rng:             rng,
	}, nil
}

// Train samples a batch, computes the combined loss and applies one
// optimizer step. Callers gate on store size; sampling an underfilled
// store is reported as an error rather than silently shrinking the batch.
func (t *Trainer) Train(batchSize int) (float64, error) {
	batch, err := t.store.Sample(t.rng, batchSize)
	if err != nil {
		return 0, err
	}

	states, nextStates, actions, rewards, err := t.batchTensors(batch)
	if err != nil {
		return 0, err
	}

	// Forward with the recorded actions so the prediction head is trained
	// against the actions that actually produced the observed next states.
	pass, err := t.online.Forward(states, actions)
	if err != nil {
		return 0, err
	}

	t.recordSurprisal(pass.NextPred, nextStates)

	targets, _, err := t.tdTargets(nextStates, rewards)
	if err != nil {
		return 0, err
	}

	n := len(batch)
	gathered := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		gathered.Set(i, 0, pass.QValues.At(i, actions[i]))
	}

	gradTD := mat.NewDense(n, 1, nil)
	lossTD, err := nn.Huber(gathered, targets, gradTD)
	if err != nil {
		return 0, err
	}

	pr, pc := pass.NextPred.Dims()
	gradPred := mat.NewDense(pr, pc, nil)
	lossPred, err := nn.Huber(pass.NextPred, nextStates, gradPred)
	if err != nil {
		return 0, err
	}

	// Scatter the TD gradient back onto the acted entries of the Q head.
	dQ := mat.NewDense(n, t.online.ActionCount(), nil)
	for i := 0; i < n; i++ {
		dQ.Set(i, actions[i], gradTD.At(i, 0))
	}

	t.online.ZeroGrad()
	pass.Backward(dQ, gradPred)
	t.rec.Record("grad_norm", t.online.GradNorm())
	t.opt.Step(t.online)

	return lossTD + lossPred, nil
}

// tdTargets computes the Double-DQN regression target for a batch: the
// online network picks the arg-max next action, the target network values
// that exact action, and the reward plus discounted value forms the target.
// Neither forward pass here ever has Backward invoked on it, so no gradient
// can flow into this computation.
func (t *Trainer) tdTargets(nextStates *mat.Dense, rewards []float64) (*mat.Dense, []int, error) {
	selection, err := t.online.Forward(nextStates, nil)
	if err != nil {
		return nil, nil, err
	}
	evaluation, err := t.target.Forward(nextStates, nil)
	if err != nil {
		return nil, nil, err
	}

	n := len(rewards)
	targets := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		targets.Set(i, 0, rewards[i]+t.gamma*evaluation.QValues.At(i, selection.Actions[i]))
	}
	return targets, selection.Actions, nil
}

func (t *Trainer) batchTensors(batch []model.Transition) (states, nextStates *mat.Dense, actions []int, rewards []float64, err error) {
	n := len(batch)
	d := t.online.InputDim()
	states = mat.NewDense(n, d, nil)
	nextStates = mat.NewDense(n, d, nil)
	actions = make([]int, n)
	rewards = make([]float64, n)
	for i, tr := range batch {
		if len(tr.State) != d || len(tr.NextState) != d {
			return nil, nil, nil, nil, fmt.Errorf("transition %d state width %d/%d, want %d", i, len(tr.State), len(tr.NextState), d)
		}
		for j := 0; j < d; j++ {
			states.Set(i, j, tr.State[j])
			nextStates.Set(i, j, tr.NextState[j])
		}
		actions[i] = tr.Action
		rewards[i] = tr.Reward
	}
	return states, nextStates, actions, rewards, nil
}

// recordSurprisal surfaces the prediction head's error spread: each
// sample's absolute prediction error relative to the batch mean, summed
// over state dimensions, then biased and scaled. The signal is telemetry
// only; it feeds neither the loss nor the reward.
func (t *Trainer) recordSurprisal(pred, actual *mat.Dense) {
	n, d := pred.Dims()
	total := 0.0
	absDiff := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			diff := pred.At(i, j) - actual.At(i, j)
			if diff < 0 {
				diff = -diff
			}
			absDiff.Set(i, j, diff)
			total += diff
		}
	}
	mean := total / float64(n*d)

	minScaled, maxScaled := 0.0, 0.0
	for i := 0; i < n; i++ {
		rowSum := 0.0
		for j := 0; j < d; j++ {
			rowSum += absDiff.At(i, j) - mean
		}
		scaled := (rowSum + t.surprisalBias) * t.surprisalWeight
		if i == 0 || scaled < minScaled {
			minScaled = scaled
		}
		if i == 0 || scaled > maxScaled {
			maxScaled = scaled
		}
	}
	t.rec.Record("surprisal", (maxScaled-minScaled)*5)
}
