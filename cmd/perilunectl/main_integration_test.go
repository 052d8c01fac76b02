package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"perilune/internal/stats"
)

func chdirTemp(t *testing.T) string {
	t.Helper()

	origWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	workdir := t.TempDir()
	if err := os.Chdir(workdir); err != nil {
		t.Fatalf("chdir tempdir: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(origWD)
	})
	return workdir
}

func TestTrainCommandCreatesArtifacts(t *testing.T) {
	chdirTemp(t)

	args := []string{
		"train",
		"--store", "memory",
		"--scape", "cart-pole",
		"--seed", "11",
		"--epochs", "1",
		"--episodes", "2",
		"--obs-stack", "2",
		"--hidden", "16",
		"--batch", "8",
		"--replay-capacity", "500",
		"--save-interval", "50",
	}

	if err := run(context.Background(), args); err != nil {
		t.Fatalf("train command: %v", err)
	}

	entries, err := stats.ListRunIndex(artifactsDir)
	if err != nil {
		t.Fatalf("list run index: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one indexed run, got %d", len(entries))
	}

	runID := entries[0].RunID
	for _, file := range []string{"config.json", "episodes.json", "summary.json"} {
		path := filepath.Join(artifactsDir, runID, file)
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected artifact %s: %v", path, err)
		}
	}

	summary, ok, err := stats.ReadRunSummary(artifactsDir, runID)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if !ok {
		t.Fatal("expected run summary")
	}
	if summary.Episodes != 2 || summary.StepsTaken <= 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestTrainCommandWithConfigFile(t *testing.T) {
	workdir := chdirTemp(t)

	configPath := filepath.Join(workdir, "train.json")
	body := `{"scape": "cart-pole", "epochs": 1, "episodes_per_epoch": 1, "obs_stack": 2, "hidden_size": 16, "batch_size": 8, "replay_capacity": 500, "save_interval": 50}`
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	args := []string{
		"train",
		"--store", "memory",
		"--config", configPath,
		"--seed", "3",
	}
	if err := run(context.Background(), args); err != nil {
		t.Fatalf("train command: %v", err)
	}

	entries, err := stats.ListRunIndex(artifactsDir)
	if err != nil {
		t.Fatalf("list run index: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one indexed run, got %d", len(entries))
	}
	if entries[0].Scape != "cart-pole" || entries[0].Seed != 3 {
		t.Fatalf("unexpected index entry: %+v", entries[0])
	}
}

func TestRunsCommandEmpty(t *testing.T) {
	chdirTemp(t)

	if err := run(context.Background(), []string{"runs"}); err != nil {
		t.Fatalf("runs command: %v", err)
	}
}

func TestScapesCommand(t *testing.T) {
	if err := run(context.Background(), []string{"scapes"}); err != nil {
		t.Fatalf("scapes command: %v", err)
	}
}

func TestRunMissingCommand(t *testing.T) {
	err := run(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "usage") {
		t.Fatalf("expected usage error, got: %v", err)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	err := run(context.Background(), []string{"bogus"})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got: %v", err)
	}
}

func TestCheckpointsCommandRequiresRunID(t *testing.T) {
	err := run(context.Background(), []string{"checkpoints", "--store", "memory"})
	if err == nil || !strings.Contains(err.Error(), "run-id") {
		t.Fatalf("expected run-id error, got: %v", err)
	}
}
