package storage

import (
	"context"
	"sort"
	"sync"

	"evostrat/internal/logging"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]RunRecord
	snapshots   map[string]Snapshot
	history     map[string]map[int]logging.GenerationSummary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]RunRecord)
	s.snapshots = make(map[string]Snapshot)
	s.history = make(map[string]map[int]logging.GenerationSummary)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok, nil
}

// SaveSnapshot keeps only the latest snapshot of each run. The stored copy
// is encoded and decoded so later changes by the caller never leak in.
func (s *MemoryStore) SaveSnapshot(_ context.Context, snap Snapshot) error {
	data, err := EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	stored, err := DecodeSnapshot(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[snap.RunID] = stored
	return nil
}

func (s *MemoryStore) GetSnapshot(_ context.Context, runID string) (Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[runID]
	return snap, ok, nil
}

func (s *MemoryStore) AppendHistory(_ context.Context, runID string, summary logging.GenerationSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.history[runID] == nil {
		s.history[runID] = make(map[int]logging.GenerationSummary)
	}
	s.history[runID][summary.Generation] = summary
	return nil
}

func (s *MemoryStore) GetHistory(_ context.Context, runID string) ([]logging.GenerationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]logging.GenerationSummary, 0, len(s.history[runID]))
	for _, summary := range s.history[runID] {
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Generation < out[j].Generation })
	return out, nil
}
