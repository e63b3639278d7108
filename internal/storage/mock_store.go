package storage

import (
	"fmt"
	"sort"
	"sync"
)

// MockStore provides a mock implementation for testing.
type MockStore struct {
	mu    sync.RWMutex
	blobs map[string]map[string][]byte

	// PutErr is returned from Put when set.
	PutErr error
}

// NewMockStore creates a mock blob store.
func NewMockStore() *MockStore {
	return &MockStore{
		blobs: make(map[string]map[string][]byte),
	}
}

// Put saves a copy of blob.
func (m *MockStore) Put(spaceID, recordID string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PutErr != nil {
		return m.PutErr
	}
	if m.blobs[spaceID] == nil {
		m.blobs[spaceID] = make(map[string][]byte)
	}
	m.blobs[spaceID][recordID] = append([]byte(nil), blob...)
	return nil
}

// Get returns a copy of the stored blob.
func (m *MockStore) Get(spaceID, recordID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if data, ok := m.blobs[spaceID][recordID]; ok {
		return append([]byte(nil), data...), nil
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrBlobNotFound, spaceID, recordID)
}

// Delete removes a blob.
func (m *MockStore) Delete(spaceID, recordID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.blobs[spaceID], recordID)
	return nil
}

// Exists checks if a blob exists.
func (m *MockStore) Exists(spaceID, recordID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.blobs[spaceID][recordID]
	return ok, nil
}

// List returns record IDs in sorted order.
func (m *MockStore) List(spaceID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.blobs[spaceID]))
	for id := range m.blobs[spaceID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
