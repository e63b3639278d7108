package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/crypto/hkdf"
)

// Epoch ratchet domain separation.
const (
	epochInfoPrefix = "betterbase:epoch:v1:"
	epochSalt       = "betterbase:epoch-salt:v1"
)

// HKDF derives a 32-byte key with HKDF-SHA256.
func HKDF(ikm, salt, info []byte) ([]byte, error) {
	out := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, info), out); err != nil {
		return nil, fmt.Errorf("hkdf expand: %w", err)
	}
	return out, nil
}

// DeriveNextEpochKey computes the key for nextEpoch from the key of the
// epoch before it. The step is one-way: epoch N yields N+1, never N-1.
func DeriveNextEpochKey(current []byte, spaceID string, nextEpoch uint32) ([]byte, error) {
	if err := ValidateKeySize(current); err != nil {
		return nil, err
	}
	if nextEpoch < 1 {
		return nil, fmt.Errorf("%w: next epoch must be >= 1", ErrInvalidEpoch)
	}

	info := epochInfoPrefix + spaceID + ":" + strconv.FormatUint(uint64(nextEpoch), 10)
	return HKDF(current, []byte(epochSalt), []byte(info))
}

// DeriveEpochKeyFromRoot walks the ratchet from the epoch-0 root key to
// target. Target 0 returns a copy of root.
func DeriveEpochKeyFromRoot(root []byte, spaceID string, target uint32) ([]byte, error) {
	if err := ValidateKeySize(root); err != nil {
		return nil, err
	}

	key := make([]byte, KeySize)
	copy(key, root)
	for e := uint32(1); e <= target; e++ {
		next, err := DeriveNextEpochKey(key, spaceID, e)
		Zero(key)
		if err != nil {
			return nil, err
		}
		key = next
	}
	return key, nil
}
