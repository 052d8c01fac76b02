package perilune

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"perilune/internal/model"
	"perilune/internal/nn"
	"perilune/internal/policy"
	"perilune/internal/replay"
	"perilune/internal/scape"
	"perilune/internal/stats"
	"perilune/internal/storage"
	"perilune/internal/telemetry"
	"perilune/internal/train"
)

const (
	defaultArtifactsDir = "artifacts"
	defaultDBPath       = "perilune.db"

	telemetrySeriesLimit = 200000
)

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
}

// Client is the embedding surface: it owns the persistence backend and the
// artifacts directory, and runs complete training sessions on demand.
type Client struct {
	store       storage.Store
	initialized bool

	artifactsDir string
	storeKind    string
}

// TrainRequest configures one training run. Zero values select the
// defaults listed per field; the boolean switches are phrased as Disable*
// so a zero request trains normally.
type TrainRequest struct {
	Scape            string // default lander-lite
	Seed             int64
	Epochs           int // default 5000
	EpisodesPerEpoch int // default 1

	ObsStack   int // observations stacked into one state, default 4
	HiddenSize int // default 64

	BatchSize     int     // default 64
	Gamma         float64 // default 0.99
	LearningRate  float64 // default 1.5e-4
	Momentum      float64 // default 0.9
	GradClip      float64 // default 1
	TrainInterval int64   // default 1
	SaveInterval  int64   // default 5000

	Tau              float64 // default 1e-4
	SoftSyncInterval int64   // default 1
	HardSyncInterval int64   // default 10000

	ReplayCapacity    int     // default 1_000_000
	AdmitThreshold    float64 // default 0
	RewardAffectPastN int     // default 10
	ShapingLow        float64 // default -5
	ShapingHigh       float64 // default 5

	EpsilonStart float64 // default 2
	EpsilonDecay float64 // default 0.001
	EpsilonFloor float64 // default 0.05

	SurprisalBias   float64
	SurprisalWeight float64 // default 0.001

	DisableExploration bool
	DisableLearning    bool
	DisableSaving      bool

	// LoadRunID resumes from a stored checkpoint: the latest one for the
	// run, or the exact step when LoadStep is set. A missing checkpoint
	// fails the run rather than silently starting fresh.
	LoadRunID string
	LoadStep  int64
}

type TrainSummary struct {
	RunID             string
	ArtifactsDir      string
	Episodes          []model.EpisodeDiagnostics
	StepsTaken        int64
	FinalEpsilon      float64
	BestEpisodeReward float64
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		artifactsDir: artifactsDir,
		storeKind:    storeKind,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

func applyTrainDefaults(req TrainRequest) TrainRequest {
	if req.Scape == "" {
		req.Scape = "lander-lite"
	}
	if req.Epochs <= 0 {
		req.Epochs = 5000
	}
	if req.EpisodesPerEpoch <= 0 {
		req.EpisodesPerEpoch = 1
	}
	if req.ObsStack <= 0 {
		req.ObsStack = 4
	}
	if req.HiddenSize <= 0 {
		req.HiddenSize = 64
	}
	if req.BatchSize <= 0 {
		req.BatchSize = 64
	}
	if req.Gamma == 0 {
		req.Gamma = 0.99
	}
	if req.LearningRate == 0 {
		req.LearningRate = 1.5e-4
	}
	if req.Momentum == 0 {
		req.Momentum = 0.9
	}
	if req.GradClip == 0 {
		req.GradClip = 1
	}
	if req.TrainInterval <= 0 {
		req.TrainInterval = 1
	}
	if req.SaveInterval <= 0 {
		req.SaveInterval = 5000
	}
	if req.Tau == 0 {
		req.Tau = 1e-4
	}
	if req.SoftSyncInterval == 0 {
		req.SoftSyncInterval = 1
	}
	if req.HardSyncInterval == 0 {
		req.HardSyncInterval = 10000
	}
	if req.ReplayCapacity <= 0 {
		req.ReplayCapacity = 1_000_000
	}
	if req.RewardAffectPastN == 0 {
		req.RewardAffectPastN = 10
	}
	if req.ShapingLow == 0 && req.ShapingHigh == 0 {
		req.ShapingLow = -5
		req.ShapingHigh = 5
	}
	if req.EpsilonStart == 0 {
		req.EpsilonStart = 2
	}
	if req.EpsilonDecay == 0 {
		req.EpsilonDecay = 0.001
	}
	if req.EpsilonFloor == 0 {
		req.EpsilonFloor = 0.05
	}
	if req.SurprisalWeight == 0 {
		req.SurprisalWeight = 0.001
	}
	return req
}

// Train runs Epochs*EpisodesPerEpoch episodes of Double-DQN training,
// persists checkpoints and the run record through the store, and writes the
// run artifacts when finished.
func (c *Client) Train(ctx context.Context, req TrainRequest) (TrainSummary, error) {
	req = applyTrainDefaults(req)

	if err := c.Init(ctx); err != nil {
		return TrainSummary{}, err
	}

	env, err := scape.New(req.Scape, req.Seed)
	if err != nil {
		return TrainSummary{}, err
	}
	req.Scape = env.Name()

	rng := rand.New(rand.NewSource(req.Seed))

	inputDim := env.ObservationSize() * req.ObsStack
	online, err := nn.NewNetwork(inputDim, req.HiddenSize, env.ActionCount(), rng)
	if err != nil {
		return TrainSummary{}, err
	}

	if req.LoadRunID != "" {
		if err := c.loadCheckpointInto(ctx, online, req.LoadRunID, req.LoadStep); err != nil {
			return TrainSummary{}, err
		}
	}
	target := online.Clone()

	replayStore, err := replay.NewStore(req.ReplayCapacity, req.AdmitThreshold)
	if err != nil {
		return TrainSummary{}, err
	}

	recorder := telemetry.NewMemory(telemetrySeriesLimit)

	window, err := replay.NewShapingWindow(replayStore, req.RewardAffectPastN, req.ShapingLow, req.ShapingHigh, func(reward float64) {
		recorder.Record("shaped_reward", reward)
	})
	if err != nil {
		return TrainSummary{}, err
	}

	opt, err := nn.NewSGD(online, req.LearningRate, req.Momentum, req.GradClip)
	if err != nil {
		return TrainSummary{}, err
	}

	trainer, err := train.NewTrainer(online, target, replayStore, opt, train.TrainerConfig{
		Gamma:           req.Gamma,
		SurprisalBias:   req.SurprisalBias,
		SurprisalWeight: req.SurprisalWeight,
	}, recorder, rng)
	if err != nil {
		return TrainSummary{}, err
	}

	runID := uuid.NewString()
	now := time.Now().UTC()

	saveState := func(ctx context.Context, step int64) error {
		return c.store.SaveCheckpoint(ctx, model.Checkpoint{
			VersionedRecord: storage.Stamp(),
			RunID:           runID,
			Scape:           env.Name(),
			Step:            step,
			Layers:          online.State(),
		})
	}

	loop, err := train.NewLoop(train.LoopDeps{
		Env:     env,
		Online:  online,
		Target:  target,
		Trainer: trainer,
		Window:  window,
		Store:   replayStore,
		Scheduler: train.SyncScheduler{
			Tau:          req.Tau,
			SoftInterval: req.SoftSyncInterval,
			HardInterval: req.HardSyncInterval,
		},
		Greedy: policy.Greedy{
			Disabled: req.DisableExploration,
			Decay:    req.EpsilonDecay,
			Floor:    req.EpsilonFloor,
		},
		Recorder:  recorder,
		RNG:       rng,
		SaveState: saveState,
	}, train.LoopConfig{
		ObsStack:        req.ObsStack,
		BatchSize:       req.BatchSize,
		TrainInterval:   req.TrainInterval,
		SaveInterval:    req.SaveInterval,
		LearningEnabled: !req.DisableLearning,
		SavingEnabled:   !req.DisableSaving,
		EpsStart:        req.EpsilonStart,
	})
	if err != nil {
		return TrainSummary{}, err
	}

	totalEpisodes := req.Epochs * req.EpisodesPerEpoch
	episodes := make([]model.EpisodeDiagnostics, 0, totalEpisodes)
	best := 0.0
	for i := 0; i < totalEpisodes; i++ {
		diag, err := loop.RunEpisode(ctx)
		if err != nil {
			return TrainSummary{}, fmt.Errorf("episode %d: %w", i+1, err)
		}
		episodes = append(episodes, diag)
		if i == 0 || diag.CumulativeReward > best {
			best = diag.CumulativeReward
		}
	}

	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		Config:            c.runConfig(runID, req),
		Episodes:          episodes,
		Series:            recorder.Snapshot(),
		StepsTaken:        loop.Step(),
		FinalEpsilon:      loop.Epsilon(),
		BestEpisodeReward: best,
	})
	if err != nil {
		return TrainSummary{}, err
	}

	if err := stats.AppendRunIndex(c.artifactsDir, stats.RunIndexEntry{
		RunID:             runID,
		Scape:             req.Scape,
		Seed:              req.Seed,
		Epochs:            req.Epochs,
		StepsTaken:        loop.Step(),
		BestEpisodeReward: best,
		CreatedAtUTC:      now.Format(time.RFC3339Nano),
	}); err != nil {
		return TrainSummary{}, err
	}

	if err := c.store.SaveRun(ctx, model.RunRecord{
		VersionedRecord:   storage.Stamp(),
		ID:                runID,
		Scape:             req.Scape,
		Seed:              req.Seed,
		Epochs:            req.Epochs,
		StepsTaken:        loop.Step(),
		FinalEpsilon:      loop.Epsilon(),
		BestEpisodeReward: best,
		CreatedAtUTC:      now.Format(time.RFC3339Nano),
	}); err != nil {
		return TrainSummary{}, err
	}

	return TrainSummary{
		RunID:             runID,
		ArtifactsDir:      filepath.Clean(runDir),
		Episodes:          episodes,
		StepsTaken:        loop.Step(),
		FinalEpsilon:      loop.Epsilon(),
		BestEpisodeReward: best,
	}, nil
}

func (c *Client) loadCheckpointInto(ctx context.Context, net *nn.Network, runID string, step int64) error {
	var (
		checkpoint model.Checkpoint
		ok         bool
		err        error
	)
	if step > 0 {
		checkpoint, ok, err = c.store.GetCheckpoint(ctx, runID, step)
	} else {
		checkpoint, ok, err = c.store.LatestCheckpoint(ctx, runID)
	}
	if err != nil {
		return fmt.Errorf("load checkpoint for run %s: %w", runID, err)
	}
	if !ok {
		return fmt.Errorf("no checkpoint found for run %s", runID)
	}
	if err := net.LoadState(checkpoint.Layers); err != nil {
		return fmt.Errorf("restore checkpoint %s@%d: %w", checkpoint.RunID, checkpoint.Step, err)
	}
	return nil
}

func (c *Client) runConfig(runID string, req TrainRequest) stats.RunConfig {
	return stats.RunConfig{
		RunID:             runID,
		Scape:             req.Scape,
		Seed:              req.Seed,
		Epochs:            req.Epochs,
		EpisodesPerEpoch:  req.EpisodesPerEpoch,
		ObsStack:          req.ObsStack,
		HiddenSize:        req.HiddenSize,
		BatchSize:         req.BatchSize,
		Gamma:             req.Gamma,
		LearningRate:      req.LearningRate,
		Momentum:          req.Momentum,
		GradClip:          req.GradClip,
		Tau:               req.Tau,
		SoftSyncInterval:  req.SoftSyncInterval,
		HardSyncInterval:  req.HardSyncInterval,
		TrainInterval:     req.TrainInterval,
		SaveInterval:      req.SaveInterval,
		ReplayCapacity:    req.ReplayCapacity,
		AdmitThreshold:    req.AdmitThreshold,
		RewardAffectPastN: req.RewardAffectPastN,
		ShapingLow:        req.ShapingLow,
		ShapingHigh:       req.ShapingHigh,
		EpsilonStart:      req.EpsilonStart,
		EpsilonDecay:      req.EpsilonDecay,
		EpsilonFloor:      req.EpsilonFloor,
		ExplorationOff:    req.DisableExploration,
		LearningEnabled:   !req.DisableLearning,
		SavingEnabled:     !req.DisableSaving,
		SurprisalBias:     req.SurprisalBias,
		SurprisalWeight:   req.SurprisalWeight,
		LoadRunID:         req.LoadRunID,
		LoadStep:          req.LoadStep,
		StoreKind:         c.storeKind,
	}
}

// Runs lists the persisted run records, oldest first.
func (c *Client) Runs(ctx context.Context) ([]model.RunRecord, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	return c.store.ListRuns(ctx)
}

// Checkpoints lists the stored checkpoints of a run by ascending step.
func (c *Client) Checkpoints(ctx context.Context, runID string) ([]model.CheckpointInfo, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	return c.store.ListCheckpoints(ctx, runID)
}

// Scapes lists the control tasks a run can train against.
func (c *Client) Scapes() []string {
	return scape.Names()
}
