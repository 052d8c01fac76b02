package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "train.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadTrainRequestFromConfig(t *testing.T) {
	path := writeConfig(t, `{
		"scape": "cart-pole",
		"seed": 42,
		"epochs": 3,
		"episodes_per_epoch": 50,
		"obs_stack": 2,
		"hidden_size": 32,
		"batch_size": 16,
		"gamma": 0.95,
		"learning_rate": 0.001,
		"momentum": 0.8,
		"grad_clip": 0.5,
		"train_interval": 4,
		"save_interval": 1000,
		"tau": 0.005,
		"soft_sync_interval": 2,
		"hard_sync_interval": 500,
		"replay_capacity": 10000,
		"admit_threshold": 0.1,
		"reward_affect_past_n": 5,
		"shaping_low": -2,
		"shaping_high": 2,
		"epsilon_start": 1.5,
		"epsilon_decay": 0.002,
		"epsilon_floor": 0.1,
		"exploration_off": false,
		"learning_enabled": true,
		"saving_enabled": false,
		"load_run_id": "run-1",
		"load_step": 1000
	}`)

	req, err := loadTrainRequestFromConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if req.Scape != "cart-pole" || req.Seed != 42 || req.Epochs != 3 {
		t.Fatalf("unexpected run fields: %+v", req)
	}
	if req.EpisodesPerEpoch != 50 || req.ObsStack != 2 || req.HiddenSize != 32 || req.BatchSize != 16 {
		t.Fatalf("unexpected sizing fields: %+v", req)
	}
	if req.Gamma != 0.95 || req.LearningRate != 0.001 || req.Momentum != 0.8 || req.GradClip != 0.5 {
		t.Fatalf("unexpected optimizer fields: %+v", req)
	}
	if req.TrainInterval != 4 || req.SaveInterval != 1000 {
		t.Fatalf("unexpected interval fields: %+v", req)
	}
	if req.Tau != 0.005 || req.SoftSyncInterval != 2 || req.HardSyncInterval != 500 {
		t.Fatalf("unexpected sync fields: %+v", req)
	}
	if req.ReplayCapacity != 10000 || req.AdmitThreshold != 0.1 || req.RewardAffectPastN != 5 {
		t.Fatalf("unexpected replay fields: %+v", req)
	}
	if req.ShapingLow != -2 || req.ShapingHigh != 2 {
		t.Fatalf("unexpected shaping fields: %+v", req)
	}
	if req.EpsilonStart != 1.5 || req.EpsilonDecay != 0.002 || req.EpsilonFloor != 0.1 {
		t.Fatalf("unexpected epsilon fields: %+v", req)
	}
	if req.DisableExploration || req.DisableLearning {
		t.Fatalf("unexpected disabled switches: %+v", req)
	}
	if !req.DisableSaving {
		t.Fatal("expected saving disabled when saving_enabled=false")
	}
	if req.LoadRunID != "run-1" || req.LoadStep != 1000 {
		t.Fatalf("unexpected resume fields: %+v", req)
	}
}

func TestLoadTrainRequestFromConfigPartial(t *testing.T) {
	path := writeConfig(t, `{"scape": "lander-lite", "batch_size": 8}`)

	req, err := loadTrainRequestFromConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if req.Scape != "lander-lite" || req.BatchSize != 8 {
		t.Fatalf("unexpected fields: %+v", req)
	}
	if req.Epochs != 0 || req.Gamma != 0 {
		t.Fatalf("expected unset fields to stay zero: %+v", req)
	}
}

func TestLoadTrainRequestFromConfigBadJSON(t *testing.T) {
	path := writeConfig(t, `{`)
	if _, err := loadTrainRequestFromConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestOverrideFromFlags(t *testing.T) {
	req, err := loadTrainRequestFromConfig(writeConfig(t, `{"scape": "lander-lite", "seed": 1, "batch_size": 64}`))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	overrideFromFlags(&req, map[string]bool{"scape": true, "batch": true}, map[string]any{
		"scape": "cart-pole",
		"batch": 16,
		"seed":  int64(99),
	})

	if req.Scape != "cart-pole" {
		t.Fatalf("expected scape override, got %s", req.Scape)
	}
	if req.BatchSize != 16 {
		t.Fatalf("expected batch override, got %d", req.BatchSize)
	}
	// seed flag was not explicitly set, so the config value stands.
	if req.Seed != 1 {
		t.Fatalf("expected config seed, got %d", req.Seed)
	}
}
