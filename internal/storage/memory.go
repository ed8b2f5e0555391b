package storage

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"metaphorlab/internal/domain"
)

// Memory is an AnalysisRepository for development and tests. Result sets
// are immutable, so analyses are stored by value.
type Memory struct {
	mu       sync.RWMutex
	analyses map[string]domain.Analysis
}

func NewMemory() *Memory {
	return &Memory{analyses: map[string]domain.Analysis{}}
}

func (m *Memory) Save(_ context.Context, a domain.Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.analyses[a.ID]; !ok {
		m.analyses[a.ID] = a
	}
	return nil
}

func (m *Memory) FindByID(_ context.Context, id string) (*domain.Analysis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.analyses[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

// FindAll returns analyses newest first.
func (m *Memory) FindAll(_ context.Context, limit, offset int) ([]domain.Analysis, error) {
	m.mu.RLock()
	all := make([]domain.Analysis, 0, len(m.analyses))
	for _, a := range m.analyses {
		all = append(all, a)
	}
	m.mu.RUnlock()

	slices.SortFunc(all, func(a, b domain.Analysis) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if offset >= len(all) || limit <= 0 {
		return []domain.Analysis{}, nil
	}
	offset = max(offset, 0)
	return all[offset:min(offset+limit, len(all))], nil
}

func (m *Memory) Exists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.analyses[id]
	return ok, nil
}
