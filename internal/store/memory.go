package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/spboyer/promptbench/internal/models"
)

// MemoryStore keeps runs in process. Callers always receive copies.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*models.Run
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: make(map[string]*models.Run),
	}
}

func (s *MemoryStore) Insert(_ context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	s.runs[run.ID] = run.Clone()
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run.Clone(), nil
}

// UpdateFields applies fields atomically: either every path is applied or
// the stored run is left unchanged.
func (s *MemoryStore) UpdateFields(_ context.Context, id string, fields models.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return ErrRunNotFound
	}

	updated := run.Clone()
	if err := updated.Apply(fields); err != nil {
		return fmt.Errorf("updating run %s: %w", id, err)
	}
	s.runs[id] = updated
	return nil
}

func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return listRuns(s.runs, filter), nil
}

func listRuns(all map[string]*models.Run, filter ListFilter) []*models.Run {
	runs := make([]*models.Run, 0, len(all))
	for _, run := range all {
		if filter.PromptID != "" && (run.PromptID == nil || *run.PromptID != filter.PromptID) {
			continue
		}
		runs = append(runs, run.Clone())
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	if limit := filter.limit(); len(runs) > limit {
		runs = runs[:limit]
	}
	return runs
}
