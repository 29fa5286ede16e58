// Package memory is an in-process store.RunRepository for the API server and
// tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/venue-crawler/internal/aggregate"
	"github.com/JakeFAU/venue-crawler/internal/store"
)

// DefaultMaxEvents bounds the events kept per run.
const DefaultMaxEvents = 1000

// RunStore keeps runs in memory. Only the newest MaxEvents events of each
// run are retained.
type RunStore struct {
	mu        sync.RWMutex
	runs      map[uuid.UUID]*store.Run
	events    map[uuid.UUID][]store.EventRecord
	maxEvents int
}

// NewRunStore constructs a RunStore; maxEvents <= 0 uses the default.
func NewRunStore(maxEvents int) *RunStore {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	return &RunStore{
		runs:      make(map[uuid.UUID]*store.Run),
		events:    make(map[uuid.UUID][]store.EventRecord),
		maxEvents: maxEvents,
	}
}

// StartRun implements store.RunRepository.
func (s *RunStore) StartRun(_ context.Context, runID uuid.UUID, seedURL string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; ok {
		return nil
	}
	s.runs[runID] = &store.Run{ID: runID, SeedURL: seedURL, Status: store.RunRunning, StartedAt: startedAt.UTC()}
	return nil
}

// CompleteRun implements store.RunRepository.
func (s *RunStore) CompleteRun(_ context.Context, runID uuid.UUID, finishedAt time.Time, status store.RunStatus, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	ts := finishedAt.UTC()
	run.FinishedAt = &ts
	run.Status = status
	if errMsg != nil {
		msg := *errMsg
		run.ErrorMessage = &msg
	}
	return nil
}

// RecordTasks implements store.RunRepository.
func (s *RunStore) RecordTasks(_ context.Context, runID uuid.UUID, deltaDone, deltaFailed int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	run.TasksDone += deltaDone
	run.TasksFailed += deltaFailed
	return nil
}

// AppendEvents implements store.RunRepository.
func (s *RunStore) AppendEvents(_ context.Context, runID uuid.UUID, events []store.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; !ok {
		return store.ErrNotFound
	}
	kept := append(s.events[runID], events...)
	if over := len(kept) - s.maxEvents; over > 0 {
		kept = append([]store.EventRecord(nil), kept[over:]...)
	}
	s.events[runID] = kept
	return nil
}

// SaveReport implements store.RunRepository.
func (s *RunStore) SaveReport(_ context.Context, runID uuid.UUID, report aggregate.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	run.Report = &report
	return nil
}

// GetRun implements store.RunRepository.
func (s *RunStore) GetRun(_ context.Context, runID uuid.UUID) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return *run, nil
}

// ListRuns implements store.RunRepository.
func (s *RunStore) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	s.mu.RLock()
	out := make([]store.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if status == nil || run.Status == *status {
			out = append(out, *run)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return page(out, limit, offset), nil
}

// ListEvents implements store.RunRepository.
func (s *RunStore) ListEvents(_ context.Context, runID uuid.UUID, limit, offset int) ([]store.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.runs[runID]; !ok {
		return nil, store.ErrNotFound
	}
	return page(append([]store.EventRecord(nil), s.events[runID]...), limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
