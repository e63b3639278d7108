package state

import (
	"sort"
	"sync"

	"github.com/TheMichaelB/spacesync/internal/models"
)

// MockStore provides an in-memory implementation for testing.
type MockStore struct {
	mu     sync.RWMutex
	states map[string]*models.SpaceState
	locks  *spaceLocks

	// SaveErr, when set, is returned by every Save.
	SaveErr error
}

// NewMockStore creates a mock state store.
func NewMockStore() *MockStore {
	return &MockStore{
		states: make(map[string]*models.SpaceState),
		locks:  newSpaceLocks(),
	}
}

// Load returns a copy of the stored state.
func (m *MockStore) Load(spaceID string) (*models.SpaceState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if state, ok := m.states[spaceID]; ok {
		return state.Clone(), nil
	}

	return nil, ErrStateNotFound
}

// Save stores a copy of state.
func (m *MockStore) Save(spaceID string, state *models.SpaceState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.states[spaceID] = state.Clone()
	return nil
}

// Reset removes state for a space.
func (m *MockStore) Reset(spaceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.states, spaceID)
	return nil
}

// List returns all space IDs with stored state.
func (m *MockStore) List() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	spaceIDs := make([]string, 0, len(m.states))
	for spaceID := range m.states {
		spaceIDs = append(spaceIDs, spaceID)
	}
	sort.Strings(spaceIDs)
	return spaceIDs, nil
}

// Lock acquires an exclusive lock for a space.
func (m *MockStore) Lock(spaceID string) (UnlockFunc, error) {
	return m.locks.acquire(spaceID, LockTimeout)
}

// Migrate copies every space into target.
func (m *MockStore) Migrate(target Store) error {
	ids, _ := m.List()
	for _, id := range ids {
		state, err := m.Load(id)
		if err != nil {
			return err
		}
		if err := target.Save(id, state); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the store (no-op for mock).
func (m *MockStore) Close() error {
	return nil
}

// Clear removes all states.
func (m *MockStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = make(map[string]*models.SpaceState)
}
