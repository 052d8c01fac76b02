package main

import (
	"encoding/json"
	"os"

	periapi "perilune/pkg/perilune"
)

// loadTrainRequestFromConfig reads a training configuration JSON file using
// the same field names the run artifacts' config.json is written with, so an
// earlier run's snapshot can be replayed directly.
func loadTrainRequestFromConfig(path string) (periapi.TrainRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return periapi.TrainRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return periapi.TrainRequest{}, err
	}

	var req periapi.TrainRequest
	if v, ok := asString(raw["scape"]); ok {
		req.Scape = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asInt(raw["epochs"]); ok {
		req.Epochs = v
	}
	if v, ok := asInt(raw["episodes_per_epoch"]); ok {
		req.EpisodesPerEpoch = v
	}
	if v, ok := asInt(raw["obs_stack"]); ok {
		req.ObsStack = v
	}
	if v, ok := asInt(raw["hidden_size"]); ok {
		req.HiddenSize = v
	}
	if v, ok := asInt(raw["batch_size"]); ok {
		req.BatchSize = v
	}
	if v, ok := asFloat64(raw["gamma"]); ok {
		req.Gamma = v
	}
	if v, ok := asFloat64(raw["learning_rate"]); ok {
		req.LearningRate = v
	}
	if v, ok := asFloat64(raw["momentum"]); ok {
		req.Momentum = v
	}
	if v, ok := asFloat64(raw["grad_clip"]); ok {
		req.GradClip = v
	}
	if v, ok := asInt64(raw["train_interval"]); ok {
		req.TrainInterval = v
	}
	if v, ok := asInt64(raw["save_interval"]); ok {
		req.SaveInterval = v
	}
	if v, ok := asFloat64(raw["tau"]); ok {
		req.Tau = v
	}
	if v, ok := asInt64(raw["soft_sync_interval"]); ok {
		req.SoftSyncInterval = v
	}
	if v, ok := asInt64(raw["hard_sync_interval"]); ok {
		req.HardSyncInterval = v
	}
	if v, ok := asInt(raw["replay_capacity"]); ok {
		req.ReplayCapacity = v
	}
	if v, ok := asFloat64(raw["admit_threshold"]); ok {
		req.AdmitThreshold = v
	}
	if v, ok := asInt(raw["reward_affect_past_n"]); ok {
		req.RewardAffectPastN = v
	}
	if v, ok := asFloat64(raw["shaping_low"]); ok {
		req.ShapingLow = v
	}
	if v, ok := asFloat64(raw["shaping_high"]); ok {
		req.ShapingHigh = v
	}
	if v, ok := asFloat64(raw["epsilon_start"]); ok {
		req.EpsilonStart = v
	}
	if v, ok := asFloat64(raw["epsilon_decay"]); ok {
		req.EpsilonDecay = v
	}
	if v, ok := asFloat64(raw["epsilon_floor"]); ok {
		req.EpsilonFloor = v
	}
	if v, ok := asBool(raw["exploration_off"]); ok {
		req.DisableExploration = v
	}
	if v, ok := asBool(raw["learning_enabled"]); ok {
		req.DisableLearning = !v
	}
	if v, ok := asBool(raw["saving_enabled"]); ok {
		req.DisableSaving = !v
	}
	if v, ok := asFloat64(raw["surprisal_bias"]); ok {
		req.SurprisalBias = v
	}
	if v, ok := asFloat64(raw["surprisal_weight"]); ok {
		req.SurprisalWeight = v
	}
	if v, ok := asString(raw["load_run_id"]); ok {
		req.LoadRunID = v
	}
	if v, ok := asInt64(raw["load_step"]); ok {
		req.LoadStep = v
	}
	return req, nil
}

// overrideFromFlags applies explicitly-set command line flags on top of a
// request loaded from a config file.
func overrideFromFlags(req *periapi.TrainRequest, set map[string]bool, flagValue map[string]any) {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "scape":
			req.Scape = v.(string)
		case "seed":
			req.Seed = v.(int64)
		case "epochs":
			req.Epochs = v.(int)
		case "episodes":
			req.EpisodesPerEpoch = v.(int)
		case "obs-stack":
			req.ObsStack = v.(int)
		case "hidden":
			req.HiddenSize = v.(int)
		case "batch":
			req.BatchSize = v.(int)
		case "gamma":
			req.Gamma = v.(float64)
		case "lr":
			req.LearningRate = v.(float64)
		case "eps-start":
			req.EpsilonStart = v.(float64)
		case "save-interval":
			req.SaveInterval = v.(int64)
		case "no-explore":
			req.DisableExploration = v.(bool)
		case "no-learn":
			req.DisableLearning = v.(bool)
		case "no-save":
			req.DisableSaving = v.(bool)
		case "load-run-id":
			req.LoadRunID = v.(string)
		case "load-step":
			req.LoadStep = v.(int64)
		}
	}
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}
