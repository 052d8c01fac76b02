package storage

import (
	"context"
	"sort"
	"sync"

	"perilune/internal/model"
)

type checkpointKey struct {
	runID string
	step  int64
}

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	checkpoints map[checkpointKey]model.Checkpoint
	runs        map[string]model.RunRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.checkpoints = make(map[checkpointKey]model.Checkpoint)
	s.runs = make(map[string]model.RunRecord)
	return nil
}

func (s *MemoryStore) SaveCheckpoint(_ context.Context, checkpoint model.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkpoints[checkpointKey{checkpoint.RunID, checkpoint.Step}] = checkpoint
	return nil
}

func (s *MemoryStore) GetCheckpoint(_ context.Context, runID string, step int64) (model.Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	checkpoint, ok := s.checkpoints[checkpointKey{runID, step}]
	return checkpoint, ok, nil
}

func (s *MemoryStore) LatestCheckpoint(_ context.Context, runID string) (model.Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best model.Checkpoint
	found := false
	for key, checkpoint := range s.checkpoints {
		if key.runID != runID {
			continue
		}
		if !found || checkpoint.Step > best.Step {
			best = checkpoint
			found = true
		}
	}
	return best, found, nil
}

func (s *MemoryStore) ListCheckpoints(_ context.Context, runID string) ([]model.CheckpointInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var infos []model.CheckpointInfo
	for key, checkpoint := range s.checkpoints {
		if key.runID != runID {
			continue
		}
		infos = append(infos, model.CheckpointInfo{
			RunID: checkpoint.RunID,
			Scape: checkpoint.Scape,
			Step:  checkpoint.Step,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Step < infos[j].Step })
	return infos, nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAtUTC < runs[j].CreatedAtUTC })
	return runs, nil
}
