package transport

import (
	"fmt"
	"sync"
)

// MockKeySource provides a fixed set of epoch keys for testing.
type MockKeySource struct {
	mu sync.Mutex

	Space string
	Epoch uint32
	Keys  map[uint32][]byte

	// Error injection
	KEKError error

	// Request tracking
	KEKRequests []uint32
}

// NewMockKeySource creates a mock key source holding key at epoch.
func NewMockKeySource(spaceID string, epoch uint32, key []byte) *MockKeySource {
	return &MockKeySource{
		Space: spaceID,
		Epoch: epoch,
		Keys:  map[uint32][]byte{epoch: append([]byte(nil), key...)},
	}
}

// SpaceID returns the configured space.
func (m *MockKeySource) SpaceID() string {
	return m.Space
}

// CurrentEpoch returns the configured encryption epoch.
func (m *MockKeySource) CurrentEpoch() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Epoch
}

// KEK returns a copy of the key stored for epoch.
func (m *MockKeySource) KEK(epoch uint32) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.KEKRequests = append(m.KEKRequests, epoch)

	if m.KEKError != nil {
		return nil, m.KEKError
	}

	key, ok := m.Keys[epoch]
	if !ok {
		return nil, fmt.Errorf("mock: no key for epoch %d", epoch)
	}
	return append([]byte(nil), key...), nil
}
