package perilune

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := New(Options{
		StoreKind:    "memory",
		ArtifactsDir: filepath.Join(t.TempDir(), "artifacts"),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func TestClientTrainEndToEnd(t *testing.T) {
	client := newTestClient(t)

	summary, err := client.Train(context.Background(), TrainRequest{
		Scape:             "cart-pole",
		Seed:              42,
		Epochs:            1,
		EpisodesPerEpoch:  3,
		ObsStack:          2,
		HiddenSize:        16,
		BatchSize:         8,
		ReplayCapacity:    1000,
		RewardAffectPastN: 3,
		ShapingLow:        -0.5,
		ShapingHigh:       0.5,
		EpsilonStart:      1,
		EpsilonDecay:      0.001,
		EpsilonFloor:      0.05,
		SaveInterval:      25,
	})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if summary.RunID == "" {
		t.Fatal("expected run id")
	}
	if len(summary.Episodes) != 3 {
		t.Fatalf("unexpected episode count: %d", len(summary.Episodes))
	}
	if summary.StepsTaken <= 0 {
		t.Fatalf("expected steps taken, got %d", summary.StepsTaken)
	}
	if summary.FinalEpsilon >= 1 {
		t.Fatalf("expected epsilon decay, got %f", summary.FinalEpsilon)
	}
	if summary.BestEpisodeReward <= 0 {
		t.Fatalf("expected positive best reward, got %f", summary.BestEpisodeReward)
	}

	for _, name := range []string{"config.json", "episodes.json", "summary.json"} {
		if _, err := os.Stat(filepath.Join(summary.ArtifactsDir, name)); err != nil {
			t.Fatalf("expected artifact %s: %v", name, err)
		}
	}

	runs, err := client.Runs(context.Background())
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != summary.RunID {
		t.Fatalf("expected run %s in listing: %+v", summary.RunID, runs)
	}
	if runs[0].StepsTaken != summary.StepsTaken {
		t.Fatalf("run record steps mismatch: got=%d want=%d", runs[0].StepsTaken, summary.StepsTaken)
	}

	checkpoints, err := client.Checkpoints(context.Background(), summary.RunID)
	if err != nil {
		t.Fatalf("checkpoints: %v", err)
	}
	if len(checkpoints) == 0 {
		t.Fatal("expected stored checkpoints")
	}
	for _, info := range checkpoints {
		if info.RunID != summary.RunID || info.Scape != "cart-pole" {
			t.Fatalf("unexpected checkpoint info: %+v", info)
		}
	}
}

func TestClientTrainResumesFromCheckpoint(t *testing.T) {
	client := newTestClient(t)

	first, err := client.Train(context.Background(), TrainRequest{
		Scape:            "cart-pole",
		Seed:             7,
		Epochs:           1,
		EpisodesPerEpoch: 2,
		ObsStack:         2,
		HiddenSize:       16,
		BatchSize:        8,
		ReplayCapacity:   500,
		SaveInterval:     25,
	})
	if err != nil {
		t.Fatalf("first train: %v", err)
	}

	second, err := client.Train(context.Background(), TrainRequest{
		Scape:            "cart-pole",
		Seed:             8,
		Epochs:           1,
		EpisodesPerEpoch: 1,
		ObsStack:         2,
		HiddenSize:       16,
		BatchSize:        8,
		ReplayCapacity:   500,
		SaveInterval:     25,
		LoadRunID:        first.RunID,
	})
	if err != nil {
		t.Fatalf("resumed train: %v", err)
	}
	if second.RunID == first.RunID {
		t.Fatal("expected a fresh run id for the resumed run")
	}
}

func TestClientTrainMissingCheckpointFails(t *testing.T) {
	client := newTestClient(t)

	_, err := client.Train(context.Background(), TrainRequest{
		Scape:            "cart-pole",
		Epochs:           1,
		EpisodesPerEpoch: 1,
		LoadRunID:        "no-such-run",
	})
	if err == nil {
		t.Fatal("expected missing checkpoint error")
	}
	if !strings.Contains(err.Error(), "no checkpoint") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClientTrainUnknownScape(t *testing.T) {
	client := newTestClient(t)

	_, err := client.Train(context.Background(), TrainRequest{Scape: "flatland"})
	if err == nil {
		t.Fatal("expected unsupported scape error")
	}
}

func TestClientScapes(t *testing.T) {
	client := newTestClient(t)

	names := client.Scapes()
	if len(names) != 2 {
		t.Fatalf("unexpected scape names: %+v", names)
	}
}
