package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"perilune/internal/model"
)

const runIndexFile = "run_index.json"

// RunConfig is the full training configuration snapshot written alongside a
// run's artifacts so results stay reproducible.
type RunConfig struct {
	RunID             string  `json:"run_id"`
	Scape             string  `json:"scape"`
	Seed              int64   `json:"seed"`
	Epochs            int     `json:"epochs"`
	EpisodesPerEpoch  int     `json:"episodes_per_epoch"`
	ObsStack          int     `json:"obs_stack"`
	HiddenSize        int     `json:"hidden_size"`
	BatchSize         int     `json:"batch_size"`
	Gamma             float64 `json:"gamma"`
	LearningRate      float64 `json:"learning_rate"`
	Momentum          float64 `json:"momentum"`
	GradClip          float64 `json:"grad_clip"`
	Tau               float64 `json:"tau"`
	SoftSyncInterval  int64   `json:"soft_sync_interval"`
	HardSyncInterval  int64   `json:"hard_sync_interval"`
	TrainInterval     int64   `json:"train_interval"`
	SaveInterval      int64   `json:"save_interval"`
	ReplayCapacity    int     `json:"replay_capacity"`
	AdmitThreshold    float64 `json:"admit_threshold"`
	RewardAffectPastN int     `json:"reward_affect_past_n"`
	ShapingLow        float64 `json:"shaping_low"`
	ShapingHigh       float64 `json:"shaping_high"`
	EpsilonStart      float64 `json:"epsilon_start"`
	EpsilonDecay      float64 `json:"epsilon_decay"`
	EpsilonFloor      float64 `json:"epsilon_floor"`
	ExplorationOff    bool    `json:"exploration_off"`
	LearningEnabled   bool    `json:"learning_enabled"`
	SavingEnabled     bool    `json:"saving_enabled"`
	SurprisalBias     float64 `json:"surprisal_bias"`
	SurprisalWeight   float64 `json:"surprisal_weight"`
	LoadRunID         string  `json:"load_run_id,omitempty"`
	LoadStep          int64   `json:"load_step,omitempty"`
	StoreKind         string  `json:"store_kind,omitempty"`
}

type RunSummary struct {
	RunID             string  `json:"run_id"`
	Scape             string  `json:"scape"`
	Episodes          int     `json:"episodes"`
	StepsTaken        int64   `json:"steps_taken"`
	FinalEpsilon      float64 `json:"final_epsilon"`
	BestEpisodeReward float64 `json:"best_episode_reward"`
	MeanEpisodeReward float64 `json:"mean_episode_reward"`
}

type RunArtifacts struct {
	Config            RunConfig                  `json:"config"`
	Episodes          []model.EpisodeDiagnostics `json:"episodes"`
	Series            map[string][]float64       `json:"series,omitempty"`
	StepsTaken        int64                      `json:"steps_taken"`
	FinalEpsilon      float64                    `json:"final_epsilon"`
	BestEpisodeReward float64                    `json:"best_episode_reward"`
}

type RunIndexEntry struct {
	RunID             string  `json:"run_id"`
	Scape             string  `json:"scape"`
	Seed              int64   `json:"seed"`
	Epochs            int     `json:"epochs"`
	StepsTaken        int64   `json:"steps_taken"`
	BestEpisodeReward float64 `json:"best_episode_reward"`
	CreatedAtUTC      string  `json:"created_at_utc"`
}

// WriteRunArtifacts writes the run's config, per-episode diagnostics, summary
// and one CSV per telemetry series under baseDir/<run-id>/ and returns the run
// directory.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "episodes.json"), artifacts.Episodes); err != nil {
		return "", err
	}

	summary := RunSummary{
		RunID:             artifacts.Config.RunID,
		Scape:             artifacts.Config.Scape,
		Episodes:          len(artifacts.Episodes),
		StepsTaken:        artifacts.StepsTaken,
		FinalEpsilon:      artifacts.FinalEpsilon,
		BestEpisodeReward: artifacts.BestEpisodeReward,
		MeanEpisodeReward: meanEpisodeReward(artifacts.Episodes),
	}
	if err := writeJSON(filepath.Join(runDir, "summary.json"), summary); err != nil {
		return "", err
	}

	for name, values := range artifacts.Series {
		if err := writeSeriesCSV(runDir, name, values); err != nil {
			return "", err
		}
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	path := filepath.Join(baseDir, runID, "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RunConfig{}, false, nil
		}
		return RunConfig{}, false, err
	}

	var cfg RunConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, false, err
	}
	return cfg, true, nil
}

func ReadRunSummary(baseDir, runID string) (RunSummary, bool, error) {
	path := filepath.Join(baseDir, runID, "summary.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RunSummary{}, false, nil
		}
		return RunSummary{}, false, err
	}

	var summary RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return RunSummary{}, false, err
	}
	return summary, true, nil
}

func writeSeriesCSV(runDir, name string, values []float64) error {
	path := filepath.Join(runDir, seriesFileName(name))
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"index", name}); err != nil {
		return err
	}
	for i, value := range values {
		if err := writer.Write([]string{
			strconv.Itoa(i),
			strconv.FormatFloat(value, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadSeriesCSV(baseDir, runID, name string) ([]float64, bool, error) {
	path := filepath.Join(baseDir, runID, seriesFileName(name))
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []float64{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 2 {
		return nil, false, fmt.Errorf("series header must have at least 2 columns")
	}

	series := make([]float64, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) < 2 {
			return nil, false, fmt.Errorf("series row must have at least 2 columns")
		}
		value, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, false, err
		}
		series = append(series, value)
	}
	return series, true, nil
}

// seriesFileName maps a telemetry series name to a filesystem-safe CSV name.
func seriesFileName(name string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, name)
	return "series_" + safe + ".csv"
}

func meanEpisodeReward(episodes []model.EpisodeDiagnostics) float64 {
	if len(episodes) == 0 {
		return 0
	}
	sum := 0.0
	for _, episode := range episodes {
		sum += episode.CumulativeReward
	}
	return sum / float64(len(episodes))
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
