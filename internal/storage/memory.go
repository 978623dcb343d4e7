package storage

import (
	"context"
	"sort"
	"sync"

	"plasticnet/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	runs        map[string]model.Run
	epochStats  map[string][]model.EpochStats
	weightStats map[string][]model.WeightStats
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = make(map[string]model.Run)
	s.epochStats = make(map[string][]model.EpochStats)
	s.weightStats = make(map[string][]model.WeightStats)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.Run, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAtUTC != runs[j].CreatedAtUTC {
			return runs[i].CreatedAtUTC < runs[j].CreatedAtUTC
		}
		return runs[i].ID < runs[j].ID
	})
	return runs, nil
}

func (s *MemoryStore) SaveEpochStats(_ context.Context, runID string, stats []model.EpochStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]model.EpochStats, len(stats))
	copy(copied, stats)
	s.epochStats[runID] = copied
	return nil
}

func (s *MemoryStore) GetEpochStats(_ context.Context, runID string) ([]model.EpochStats, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats, ok := s.epochStats[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.EpochStats, len(stats))
	copy(copied, stats)
	return copied, true, nil
}

func (s *MemoryStore) SaveWeightStats(_ context.Context, runID string, stats []model.WeightStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]model.WeightStats, len(stats))
	copy(copied, stats)
	s.weightStats[runID] = copied
	return nil
}

func (s *MemoryStore) GetWeightStats(_ context.Context, runID string) ([]model.WeightStats, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats, ok := s.weightStats[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.WeightStats, len(stats))
	copy(copied, stats)
	return copied, true, nil
}
