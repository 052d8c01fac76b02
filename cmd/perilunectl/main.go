package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"perilune/internal/stats"
	"perilune/internal/storage"
	periapi "perilune/pkg/perilune"
)

const artifactsDir = "artifacts"

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "train":
		return runTrain(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "checkpoints":
		return runCheckpoints(ctx, args[1:])
	case "scapes":
		return runScapes(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "perilune.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := periapi.New(periapi.Options{StoreKind: *storeKind, DBPath: *dbPath, ArtifactsDir: artifactsDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Init(ctx); err != nil {
		return err
	}

	fmt.Printf("initialized store=%s\n", *storeKind)
	return nil
}

func runTrain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional train config JSON path")
	scapeName := fs.String("scape", "lander-lite", "scape name")
	seed := fs.Int64("seed", 1, "rng seed")
	epochs := fs.Int("epochs", 5000, "training epochs")
	episodesPerEpoch := fs.Int("episodes", 1, "episodes per epoch")
	obsStack := fs.Int("obs-stack", 4, "observations stacked into one network input")
	hiddenSize := fs.Int("hidden", 64, "hidden layer width")
	batchSize := fs.Int("batch", 64, "training batch size")
	gamma := fs.Float64("gamma", 0.99, "reward discount")
	learningRate := fs.Float64("lr", 1.5e-4, "learning rate")
	momentum := fs.Float64("momentum", 0.9, "optimizer momentum")
	gradClip := fs.Float64("grad-clip", 1.0, "per-element gradient clip bound (0 disables)")
	trainInterval := fs.Int64("train-interval", 1, "steps between training updates")
	saveInterval := fs.Int64("save-interval", 5000, "steps between checkpoints")
	tau := fs.Float64("tau", 1e-4, "soft target-sync blend factor")
	softSync := fs.Int64("soft-sync", 1, "soft target-sync interval in steps (0 disables)")
	hardSync := fs.Int64("hard-sync", 10000, "hard target-sync interval in steps (0 disables)")
	replayCapacity := fs.Int("replay-capacity", 1_000_000, "replay store capacity")
	admitThreshold := fs.Float64("admit-threshold", 0.0, "replay admission threshold on absolute reward")
	affectPastN := fs.Int("affect-past", 10, "staged records a large reward is propagated back over")
	shapingLow := fs.Float64("shaping-low", -5.0, "lower reward-shaping threshold")
	shapingHigh := fs.Float64("shaping-high", 5.0, "upper reward-shaping threshold")
	epsStart := fs.Float64("eps-start", 2.0, "initial exploration epsilon")
	epsDecay := fs.Float64("eps-decay", 0.001, "per-step epsilon decay")
	epsFloor := fs.Float64("eps-floor", 0.05, "epsilon floor")
	noExplore := fs.Bool("no-explore", false, "disable exploration")
	noLearn := fs.Bool("no-learn", false, "disable training updates")
	noSave := fs.Bool("no-save", false, "disable checkpointing")
	loadRunID := fs.String("load-run-id", "", "resume network parameters from this run's checkpoint")
	loadStep := fs.Int64("load-step", 0, "exact checkpoint step to resume from (0 selects latest)")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "perilune.db", "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit run summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	var req periapi.TrainRequest
	if *configPath != "" {
		loaded, err := loadTrainRequestFromConfig(*configPath)
		if err != nil {
			return err
		}
		req = loaded
	} else {
		req = periapi.TrainRequest{
			Scape:              *scapeName,
			Seed:               *seed,
			Epochs:             *epochs,
			EpisodesPerEpoch:   *episodesPerEpoch,
			ObsStack:           *obsStack,
			HiddenSize:         *hiddenSize,
			BatchSize:          *batchSize,
			Gamma:              *gamma,
			LearningRate:       *learningRate,
			Momentum:           *momentum,
			GradClip:           *gradClip,
			TrainInterval:      *trainInterval,
			SaveInterval:       *saveInterval,
			Tau:                *tau,
			SoftSyncInterval:   *softSync,
			HardSyncInterval:   *hardSync,
			ReplayCapacity:     *replayCapacity,
			AdmitThreshold:     *admitThreshold,
			RewardAffectPastN:  *affectPastN,
			ShapingLow:         *shapingLow,
			ShapingHigh:        *shapingHigh,
			EpsilonStart:       *epsStart,
			EpsilonDecay:       *epsDecay,
			EpsilonFloor:       *epsFloor,
			DisableExploration: *noExplore,
			DisableLearning:    *noLearn,
			DisableSaving:      *noSave,
			LoadRunID:          *loadRunID,
			LoadStep:           *loadStep,
		}
	}
	if *configPath != "" {
		overrideFromFlags(&req, setFlags, map[string]any{
			"scape":         *scapeName,
			"seed":          *seed,
			"epochs":        *epochs,
			"episodes":      *episodesPerEpoch,
			"obs-stack":     *obsStack,
			"hidden":        *hiddenSize,
			"batch":         *batchSize,
			"gamma":         *gamma,
			"lr":            *learningRate,
			"eps-start":     *epsStart,
			"save-interval": *saveInterval,
			"no-explore":    *noExplore,
			"no-learn":      *noLearn,
			"no-save":       *noSave,
			"load-run-id":   *loadRunID,
			"load-step":     *loadStep,
		})
	}

	client, err := periapi.New(periapi.Options{StoreKind: *storeKind, DBPath: *dbPath, ArtifactsDir: artifactsDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Train(ctx, req)
	if err != nil {
		return err
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	fmt.Printf("run_id=%s episodes=%d steps=%s final_epsilon=%.4f best_episode_reward=%.4f artifacts=%s\n",
		summary.RunID,
		len(summary.Episodes),
		humanize.Comma(summary.StepsTaken),
		summary.FinalEpsilon,
		summary.BestEpisodeReward,
		summary.ArtifactsDir,
	)
	return nil
}

func runRuns(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	entries, err := stats.ListRunIndex(artifactsDir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	if len(entries) > *limit {
		entries = entries[:*limit]
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	for _, e := range entries {
		fmt.Printf("run_id=%s created_at=%s scape=%s seed=%d epochs=%d steps=%s best_episode_reward=%.4f\n",
			e.RunID,
			e.CreatedAtUTC,
			e.Scape,
			e.Seed,
			e.Epochs,
			humanize.Comma(e.StepsTaken),
			e.BestEpisodeReward,
		)
	}
	return nil
}

func runCheckpoints(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("checkpoints", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run whose checkpoints to list")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "perilune.db", "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit checkpoints as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("run-id is required")
	}

	client, err := periapi.New(periapi.Options{StoreKind: *storeKind, DBPath: *dbPath, ArtifactsDir: artifactsDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	infos, err := client.Checkpoints(ctx, *runID)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("no checkpoints found")
		return nil
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	for _, info := range infos {
		fmt.Printf("run_id=%s scape=%s step=%s\n", info.RunID, info.Scape, humanize.Comma(info.Step))
	}
	return nil
}

func runScapes(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("scapes", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := periapi.New(periapi.Options{StoreKind: "memory"})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	for _, name := range client.Scapes() {
		fmt.Println(name)
	}
	return nil
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: perilunectl <init|train|runs|checkpoints|scapes> [flags]", msg)
}
