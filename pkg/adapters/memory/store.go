package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/cftbridge/pkg/domain"
)

// Store implements ports.SettingsStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.Settings
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.Settings),
	}
}

// Save persists a copy of the settings.
func (s *Store) Save(ctx context.Context, settings *domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[settings.ProjectID] = settings.Clone()
	return nil
}

// Load returns a copy so callers can't mutate store state through the pointer.
func (s *Store) Load(ctx context.Context, projectID string) (*domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings, ok := s.data[projectID]
	if !ok {
		return nil, domain.ErrSettingsNotFound
	}
	return settings.Clone(), nil
}

// Delete removes the settings.
func (s *Store) Delete(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, projectID)
	return nil
}

// List returns the stored project identifiers in sorted order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	projects := make([]string, 0, len(s.data))
	for id := range s.data {
		projects = append(projects, id)
	}
	sort.Strings(projects)
	return projects, nil
}
