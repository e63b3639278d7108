// Package rotation moves wrapped DEKs forward to a new epoch key without
// touching the records they protect.
package rotation

import (
	"github.com/TheMichaelB/spacesync/internal/crypto"
	"github.com/TheMichaelB/spacesync/internal/models"
)

// WrappedDEK pairs a record with its wrapped data key.
type WrappedDEK struct {
	RecordID string
	Wrapped  []byte
}

// PeekEpoch reads the big-endian epoch prefix of a wrapped DEK.
func PeekEpoch(wrapped []byte) (uint32, error) {
	return crypto.PeekEpoch(wrapped)
}

// DeriveForward ratchets key from epoch from to epoch to.
func DeriveForward(key []byte, spaceID string, from, to uint32) ([]byte, error) {
	if to < from {
		return nil, &models.BackwardDerivationError{Target: to, Base: from}
	}
	if err := crypto.ValidateKeySize(key); err != nil {
		return nil, err
	}

	current := append([]byte(nil), key...)
	for e := from; e < to; {
		e++
		next, err := crypto.DeriveNextEpochKey(current, spaceID, e)
		crypto.Zero(current)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return current, nil
}

// RewrapDEKs unwraps every DEK with the key of its own epoch, anywhere in
// [currentEpoch, newEpoch], and wraps it again under newKey. DEKs already at
// newEpoch are left out of the result. currentKey is never modified.
func RewrapDEKs(deks []WrappedDEK, currentKey []byte, currentEpoch uint32, newKey []byte, newEpoch uint32, spaceID string) ([]WrappedDEK, error) {
	if newEpoch <= currentEpoch {
		return nil, &models.InvalidEpochAdvanceError{New: newEpoch, Current: currentEpoch}
	}
	if err := crypto.ValidateKeySize(currentKey); err != nil {
		return nil, err
	}

	chain := make(map[uint32][]byte)
	chain[currentEpoch] = currentKey
	defer func() {
		for e, key := range chain {
			if e != currentEpoch {
				crypto.Zero(key)
			}
		}
	}()

	derived := currentKey
	for e := currentEpoch; e < newEpoch; {
		e++
		next, err := crypto.DeriveNextEpochKey(derived, spaceID, e)
		if err != nil {
			return nil, err
		}
		chain[e] = next
		derived = next
	}

	result := make([]WrappedDEK, 0, len(deks))
	for _, d := range deks {
		epoch, err := crypto.PeekEpoch(d.Wrapped)
		if err != nil {
			return nil, err
		}
		if epoch == newEpoch {
			continue
		}

		kek, ok := chain[epoch]
		if !ok {
			return nil, &models.NoKEKError{Epoch: epoch, RecordID: d.RecordID}
		}

		dek, _, err := crypto.UnwrapDEK(d.Wrapped, kek)
		if err != nil {
			return nil, err
		}
		rewrapped, err := crypto.WrapDEK(dek, newKey, newEpoch)
		crypto.Zero(dek)
		if err != nil {
			return nil, err
		}

		result = append(result, WrappedDEK{RecordID: d.RecordID, Wrapped: rewrapped})
	}

	return result, nil
}
