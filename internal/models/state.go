package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/TheMichaelB/spacesync/internal/crypto"
)

// SpaceState is the local index of wrapped DEKs for one space. It holds no
// plaintext key material.
type SpaceState struct {
	SpaceID     string            `json:"space_id"`
	Epoch       uint32            `json:"epoch"`
	WrappedDEKs map[string][]byte `json:"wrapped_deks"` // RecordID -> wrapped DEK
	UpdatedAt   time.Time         `json:"updated_at"`
	LastError   string            `json:"last_error,omitempty"`
}

// NewSpaceState creates an empty state at epoch 0.
func NewSpaceState(spaceID string) *SpaceState {
	return &SpaceState{
		SpaceID:     spaceID,
		WrappedDEKs: make(map[string][]byte),
	}
}

// PutDEK records the wrapped DEK of a record.
func (s *SpaceState) PutDEK(recordID string, wrapped []byte) {
	if s.WrappedDEKs == nil {
		s.WrappedDEKs = make(map[string][]byte)
	}
	s.WrappedDEKs[recordID] = append([]byte(nil), wrapped...)
}

// RemoveDEK forgets a record.
func (s *SpaceState) RemoveDEK(recordID string) {
	if s.WrappedDEKs != nil {
		delete(s.WrappedDEKs, recordID)
	}
}

// DEK returns the wrapped DEK of a record.
func (s *SpaceState) DEK(recordID string) ([]byte, bool) {
	if s.WrappedDEKs == nil {
		return nil, false
	}
	w, ok := s.WrappedDEKs[recordID]
	return w, ok
}

// RecordCount returns the number of indexed records.
func (s *SpaceState) RecordCount() int {
	return len(s.WrappedDEKs)
}

// RecordIDs returns the indexed record IDs in sorted order.
func (s *SpaceState) RecordIDs() []string {
	ids := make([]string, 0, len(s.WrappedDEKs))
	for id := range s.WrappedDEKs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AdvanceEpoch moves the state to epoch and stamps the update time.
func (s *SpaceState) AdvanceEpoch(epoch uint32) {
	s.Epoch = epoch
	s.UpdatedAt = time.Now()
}

// SetError sets the last error message.
func (s *SpaceState) SetError(err error) {
	if err != nil {
		s.LastError = err.Error()
	} else {
		s.LastError = ""
	}
}

// HasError returns true if there's a stored error.
func (s *SpaceState) HasError() bool {
	return strings.TrimSpace(s.LastError) != ""
}

// Validate validates the space state structure.
func (s *SpaceState) Validate() error {
	if strings.TrimSpace(s.SpaceID) == "" {
		return fmt.Errorf("space ID is required")
	}

	if s.WrappedDEKs == nil {
		return fmt.Errorf("wrapped DEK map cannot be nil")
	}

	for recordID, wrapped := range s.WrappedDEKs {
		if strings.TrimSpace(recordID) == "" {
			return fmt.Errorf("record ID cannot be empty")
		}
		if len(wrapped) != crypto.WrappedDEKSize {
			return fmt.Errorf("wrapped DEK for record %s has invalid length: %d", recordID, len(wrapped))
		}
	}

	return nil
}

// Clone creates a deep copy of the space state.
func (s *SpaceState) Clone() *SpaceState {
	clone := &SpaceState{
		SpaceID:     s.SpaceID,
		Epoch:       s.Epoch,
		UpdatedAt:   s.UpdatedAt,
		LastError:   s.LastError,
		WrappedDEKs: make(map[string][]byte, len(s.WrappedDEKs)),
	}

	for id, wrapped := range s.WrappedDEKs {
		clone.WrappedDEKs[id] = append([]byte(nil), wrapped...)
	}

	return clone
}
