package crypto

import (
	"errors"
	"fmt"
)

// Structural errors. These indicate caller bugs or corrupted input and are
// never retried.
var (
	ErrInvalidKeyLength        = errors.New("invalid key length")
	ErrDataTooShort            = errors.New("data too short")
	ErrExpectedV4              = errors.New("expected v4 blob")
	ErrInvalidWrappedDEKLength = errors.New("invalid wrapped DEK length")
	ErrInvalidDEKLength        = errors.New("invalid DEK length")
	ErrInvalidEpoch            = errors.New("invalid epoch")
	ErrMissingWrappedDEK       = errors.New("missing wrapped DEK for encrypted record")
	ErrNonFiniteNumber         = errors.New("canonicalJSON: non-finite number is not representable in JSON")
	ErrInvalidJWK              = errors.New("invalid JWK")
	ErrSigningFailed           = errors.New("signing failed")
	ErrRandom                  = errors.New("random source failed")
)

// ErrIntegrity is the single category for authentication failures. A wrong
// key and tampered data report the same error.
var ErrIntegrity = errors.New("integrity check failed")

// Integrity failures.
var (
	ErrDecryptionFailed = fmt.Errorf("decryption failed: %w", ErrIntegrity)
	ErrUnwrapFailed     = fmt.Errorf("unwrap failed: %w", ErrIntegrity)
)

// KeyLengthError reports a key of the wrong size.
type KeyLengthError struct {
	Expected int
	Got      int
}

func (e *KeyLengthError) Error() string {
	return fmt.Sprintf("invalid key length: expected %d, got %d", e.Expected, e.Got)
}

// Is reports ErrInvalidKeyLength as a match.
func (e *KeyLengthError) Is(target error) bool {
	return target == ErrInvalidKeyLength
}

// ValidateKeySize checks if the key is the correct size.
func ValidateKeySize(key []byte) error {
	if len(key) != KeySize {
		return &KeyLengthError{Expected: KeySize, Got: len(key)}
	}
	return nil
}

func invalidJWK(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidJWK, reason)
}
