package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Transition is a single environment step as held by the replay store.
// State and NextState are flattened observation stacks of fixed length.
// Records are immutable once admitted; reward adjustment happens earlier,
// while the step is still staged in the shaping window.
type Transition struct {
	State     []float64
	Action    int
	NextState []float64
	Reward    float64
}

// LayerState is the persisted form of one dense layer.
type LayerState struct {
	Weights [][]float64 `json:"weights"`
	Biases  []float64   `json:"biases"`
}

// Checkpoint is the full parameter state of the online network at a given
// global step of a run.
type Checkpoint struct {
	VersionedRecord
	RunID  string       `json:"run_id"`
	Scape  string       `json:"scape"`
	Step   int64        `json:"step"`
	Layers []LayerState `json:"layers"`
}

// CheckpointInfo identifies a stored checkpoint without its payload.
type CheckpointInfo struct {
	RunID string `json:"run_id"`
	Scape string `json:"scape"`
	Step  int64  `json:"step"`
}

type RunRecord struct {
	VersionedRecord
	ID                string  `json:"id"`
	Scape             string  `json:"scape"`
	Seed              int64   `json:"seed"`
	Epochs            int     `json:"epochs"`
	StepsTaken        int64   `json:"steps_taken"`
	FinalEpsilon      float64 `json:"final_epsilon"`
	BestEpisodeReward float64 `json:"best_episode_reward"`
	CreatedAtUTC      string  `json:"created_at_utc"`
}

type EpisodeDiagnostics struct {
	Episode          int     `json:"episode"`
	Steps            int     `json:"steps"`
	CumulativeReward float64 `json:"cumulative_reward"`
	MeanLoss         float64 `json:"mean_loss"`
	Epsilon          float64 `json:"epsilon"`
}
