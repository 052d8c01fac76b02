package stats

import (
	"os"
	"path/filepath"
	"testing"

	"perilune/internal/model"
)

func sampleArtifacts(runID string) RunArtifacts {
	return RunArtifacts{
		Config: RunConfig{
			RunID:        runID,
			Scape:        "lander-lite",
			Seed:         42,
			Epochs:       1,
			BatchSize:    64,
			Gamma:        0.99,
			EpsilonStart: 2,
		},
		Episodes: []model.EpisodeDiagnostics{
			{Episode: 0, Steps: 100, CumulativeReward: -50, MeanLoss: 1.2, Epsilon: 1.9},
			{Episode: 1, Steps: 120, CumulativeReward: 30, MeanLoss: 0.8, Epsilon: 1.8},
		},
		Series: map[string][]float64{
			"loss":   {1.5, 1.2, 0.8},
			"reward": {-1, 0.5, 2},
		},
		StepsTaken:        220,
		FinalEpsilon:      1.8,
		BestEpisodeReward: 30,
	}
}

func TestWriteRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()

	runDir, err := WriteRunArtifacts(baseDir, sampleArtifacts("run-1"))
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	if runDir != filepath.Join(baseDir, "run-1") {
		t.Fatalf("unexpected run dir: %s", runDir)
	}

	for _, name := range []string{"config.json", "episodes.json", "summary.json", "series_loss.csv", "series_reward.csv"} {
		if _, err := os.Stat(filepath.Join(runDir, name)); err != nil {
			t.Fatalf("expected artifact %s: %v", name, err)
		}
	}

	cfg, ok, err := ReadRunConfig(baseDir, "run-1")
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted config")
	}
	if cfg.Scape != "lander-lite" || cfg.BatchSize != 64 {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	summary, ok, err := ReadRunSummary(baseDir, "run-1")
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted summary")
	}
	if summary.Episodes != 2 || summary.BestEpisodeReward != 30 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.MeanEpisodeReward != -10 {
		t.Fatalf("unexpected mean episode reward: %f", summary.MeanEpisodeReward)
	}
}

func TestWriteRunArtifactsRequiresRunID(t *testing.T) {
	artifacts := sampleArtifacts("run-1")
	artifacts.Config.RunID = ""
	if _, err := WriteRunArtifacts(t.TempDir(), artifacts); err == nil {
		t.Fatal("expected missing run id error")
	}
}

func TestSeriesCSVRoundTrip(t *testing.T) {
	baseDir := t.TempDir()

	if _, err := WriteRunArtifacts(baseDir, sampleArtifacts("run-1")); err != nil {
		t.Fatalf("write artifacts: %v", err)
	}

	series, ok, err := ReadSeriesCSV(baseDir, "run-1", "loss")
	if err != nil {
		t.Fatalf("read series: %v", err)
	}
	if !ok {
		t.Fatal("expected loss series")
	}
	if len(series) != 3 || series[0] != 1.5 || series[2] != 0.8 {
		t.Fatalf("unexpected series: %+v", series)
	}

	_, ok, err = ReadSeriesCSV(baseDir, "run-1", "missing")
	if err != nil {
		t.Fatalf("read missing series: %v", err)
	}
	if ok {
		t.Fatal("expected missing series")
	}
}

func TestSeriesFileNameSanitized(t *testing.T) {
	if got := seriesFileName("q_output_0"); got != "series_q_output_0.csv" {
		t.Fatalf("unexpected file name: %s", got)
	}
	if got := seriesFileName("bad/name"); got != "series_bad_name.csv" {
		t.Fatalf("unexpected file name: %s", got)
	}
}

func TestRunIndexAppendAndReplace(t *testing.T) {
	baseDir := t.TempDir()

	entries := []RunIndexEntry{
		{RunID: "run-1", Scape: "lander-lite", CreatedAtUTC: "2024-06-01T00:00:00Z", BestEpisodeReward: 10},
		{RunID: "run-2", Scape: "cart-pole", CreatedAtUTC: "2024-06-02T00:00:00Z", BestEpisodeReward: 20},
	}
	for _, entry := range entries {
		if err := AppendRunIndex(baseDir, entry); err != nil {
			t.Fatalf("append %s: %v", entry.RunID, err)
		}
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	if len(index) != 2 {
		t.Fatalf("unexpected index size: %d", len(index))
	}
	// Newest first.
	if index[0].RunID != "run-2" || index[1].RunID != "run-1" {
		t.Fatalf("unexpected index order: %+v", index)
	}

	updated := entries[0]
	updated.BestEpisodeReward = 99
	if err := AppendRunIndex(baseDir, updated); err != nil {
		t.Fatalf("replace entry: %v", err)
	}

	index, err = ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list index after replace: %v", err)
	}
	if len(index) != 2 {
		t.Fatalf("expected replacement, got %d entries", len(index))
	}
	if index[1].BestEpisodeReward != 99 {
		t.Fatalf("expected updated reward, got %f", index[1].BestEpisodeReward)
	}
}

func TestListRunIndexEmptyDir(t *testing.T) {
	index, err := ListRunIndex(t.TempDir())
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	if len(index) != 0 {
		t.Fatalf("expected empty index, got %d entries", len(index))
	}
}
