package train

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"perilune/internal/model"
	"perilune/internal/nn"
	"perilune/internal/policy"
	"perilune/internal/replay"
	"perilune/internal/scape"
	"perilune/internal/telemetry"
)

// LoopConfig is the per-run configuration of the episode driver.
type LoopConfig struct {
	ObsStack      int
	BatchSize     int
	TrainInterval int64
	SaveInterval  int64

	LearningEnabled bool
	SavingEnabled   bool

	EpsStart float64

	// MaxNonFiniteLosses bounds how many consecutive non-finite losses are
	// tolerated as warnings before the run is aborted. Zero selects the
	// default of 3.
	MaxNonFiniteLosses int
}

// LoopDeps collects the collaborators the loop drives each step.
type LoopDeps struct {
	Env       scape.Scape
	Online    *nn.Network
	Target    *nn.Network
	Trainer   *Trainer
	Window    *replay.ShapingWindow
	Store     *replay.Store
	Scheduler SyncScheduler
	Greedy    policy.Greedy
	Recorder  telemetry.Recorder
	RNG       *rand.Rand

	// SaveState persists the online network keyed by the global step.
	// Optional; ignored when saving is disabled.
	SaveState func(ctx context.Context, step int64) error
}

// Loop owns all mutable training state: the global step counter, the
// exploration epsilon, and the observation stack. One loop is driven by a
// single goroutine; each environment step strictly precedes its shaping,
// admission, training and synchronization.
type Loop struct {
	cfg  LoopConfig
	deps LoopDeps

	step      int64
	eps       float64
	episode   int
	nonFinite int
	obsStack  [][]float64
}

func NewLoop(deps LoopDeps, cfg LoopConfig) (*Loop, error) {
	if deps.Env == nil {
		return nil, fmt.Errorf("loop requires an environment")
	}
	if deps.Online == nil || deps.Target == nil {
		return nil, fmt.Errorf("loop requires online and target networks")
	}
	if deps.Window == nil || deps.Store == nil {
		return nil, fmt.Errorf("loop requires a shaping window and replay store")
	}
	if deps.RNG == nil {
		return nil, fmt.Errorf("loop requires an rng")
	}
	if cfg.LearningEnabled && deps.Trainer == nil {
		return nil, fmt.Errorf("learning is enabled but no trainer was provided")
	}
	if cfg.ObsStack <= 0 {
		return nil, fmt.Errorf("observation stack size must be positive, got %d", cfg.ObsStack)
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.TrainInterval <= 0 {
		return nil, fmt.Errorf("train interval must be positive, got %d", cfg.TrainInterval)
	}
	if cfg.SavingEnabled && cfg.SaveInterval <= 0 {
		return nil, fmt.Errorf("save interval must be positive, got %d", cfg.SaveInterval)
	}
	if want := deps.Env.ObservationSize() * cfg.ObsStack; deps.Online.InputDim() != want {
		return nil, fmt.Errorf("network input %d does not match %d observations of size %d",
			deps.Online.InputDim(), cfg.ObsStack, deps.Env.ObservationSize())
	}
	if deps.Recorder == nil {
		deps.Recorder = telemetry.Discard{}
	}
	if cfg.MaxNonFiniteLosses == 0 {
		cfg.MaxNonFiniteLosses = 3
	}
	return &Loop{
		cfg:  cfg,
		deps: deps,
		eps:  cfg.EpsStart,
	}, nil
}

func (l *Loop) Step() int64      { return l.step }
func (l *Loop) Epsilon() float64 { return l.eps }

// RunEpisode drives the environment from reset to termination or
// truncation, returning the episode diagnostics.
func (l *Loop) RunEpisode(ctx context.Context) (model.EpisodeDiagnostics, error) {
	l.episode++
	diag := model.EpisodeDiagnostics{Episode: l.episode}

	state, err := l.resetObservations(ctx)
	if err != nil {
		return diag, err
	}

	cumulative := 0.0
	lossSum := 0.0
	lossCount := 0

	for {
		if err := ctx.Err(); err != nil {
			return diag, err
		}

		action, err := l.selectAction(state)
		if err != nil {
			return diag, err
		}

		res, err := l.deps.Env.Step(ctx, action)
		if err != nil {
			return diag, fmt.Errorf("environment step %d: %w", l.step, err)
		}

		l.deps.Recorder.Record("reward", res.Reward)
		cumulative += res.Reward
		l.deps.Recorder.Record("cumulative_reward", cumulative)

		l.pushObservation(res.Observation)
		nextState := l.stackedState()

		l.deps.Window.Observe(replay.StagedTransition{
			State:     state,
			Action:    action,
			NextState: nextState,
			Reward:    res.Reward,
		})

		done := res.Terminated || res.Truncated
		if done {
			l.deps.Window.FlushAll()
		}

		loss, trained, err := l.maybeTrain()
		if err != nil {
			return diag, err
		}
		if trained {
			lossSum += loss
			lossCount++
		}

		if err := l.maybeSave(ctx); err != nil {
			return diag, err
		}

		if err := l.deps.Scheduler.Sync(l.step, l.deps.Online, l.deps.Target); err != nil {
			return diag, fmt.Errorf("target sync at step %d: %w", l.step, err)
		}

		l.step++
		diag.Steps++
		state = nextState

		if done {
			break
		}
	}

	diag.CumulativeReward = cumulative
	diag.Epsilon = l.eps
	if lossCount > 0 {
		diag.MeanLoss = lossSum / float64(lossCount)
	}
	return diag, nil
}

// selectAction scores the current state with the online network and applies
// the exploration rule: when exploration fires the scores are replaced with
// uniform noise ahead of the arg-max, so the perturbation acts on the value
// estimate rather than on the final choice.
func (l *Loop) selectAction(state []float64) (int, error) {
	row := mat.NewDense(1, len(state), append([]float64(nil), state...))
	pass, err := l.deps.Online.Forward(row, nil)
	if err != nil {
		return 0, err
	}

	scores := make([]float64, l.deps.Online.ActionCount())
	for j := range scores {
		scores[j] = pass.QValues.At(0, j)
		l.deps.Recorder.Record(fmt.Sprintf("q_output_%d", j), scores[j])
	}

	explore, next := l.deps.Greedy.Choose(l.deps.RNG, l.eps)
	l.eps = next
	if explore {
		policy.PerturbScores(l.deps.RNG, scores)
	}

	best := 0
	for j := 1; j < len(scores); j++ {
		if scores[j] > scores[best] {
			best = j
		}
	}
	return best, nil
}

func (l *Loop) maybeTrain() (float64, bool, error) {
	if !l.cfg.LearningEnabled {
		return 0, false, nil
	}
	// Not ready yet: skipped silently and retried on the next eligible step.
	if l.deps.Store.Size() <= l.cfg.BatchSize {
		return 0, false, nil
	}
	if l.step%l.cfg.TrainInterval != 0 {
		return 0, false, nil
	}

	loss, err := l.deps.Trainer.Train(l.cfg.BatchSize)
	if err != nil {
		return 0, false, err
	}
	l.deps.Recorder.Record("loss", loss)

	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		l.nonFinite++
		l.deps.Recorder.Record("non_finite_losses", float64(l.nonFinite))
		if l.nonFinite >= l.cfg.MaxNonFiniteLosses {
			return 0, false, fmt.Errorf("non-finite loss recurred %d times at step %d", l.nonFinite, l.step)
		}
	} else {
		l.nonFinite = 0
	}
	return loss, true, nil
}

func (l *Loop) maybeSave(ctx context.Context) error {
	if !l.cfg.SavingEnabled || l.deps.SaveState == nil {
		return nil
	}
	if l.step%l.cfg.SaveInterval != 0 {
		return nil
	}
	if err := l.deps.SaveState(ctx, l.step); err != nil {
		return fmt.Errorf("save checkpoint at step %d: %w", l.step, err)
	}
	return nil
}

// resetObservations starts a fresh episode: the environment is reset and
// the observation stack is re-seeded with copies of the first observation.
func (l *Loop) resetObservations(ctx context.Context) ([]float64, error) {
	obs, err := l.deps.Env.Reset(ctx)
	if err != nil {
		return nil, fmt.Errorf("environment reset: %w", err)
	}
	l.obsStack = l.obsStack[:0]
	for len(l.obsStack) < l.cfg.ObsStack {
		l.obsStack = append(l.obsStack, append([]float64(nil), obs...))
	}
	return l.stackedState(), nil
}

func (l *Loop) pushObservation(obs []float64) {
	l.obsStack = append(l.obsStack, append([]float64(nil), obs...))
	if len(l.obsStack) > l.cfg.ObsStack {
		l.obsStack = l.obsStack[1:]
	}
}

func (l *Loop) stackedState() []float64 {
	state := make([]float64, 0, l.deps.Online.InputDim())
	for _, obs := range l.obsStack {
		state = append(state, obs...)
	}
	return state
}
