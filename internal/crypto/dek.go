package crypto

import (
	"crypto/aes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	josecipher "github.com/go-jose/go-jose/v4/cipher"
)

const (
	// WrappedDEKSize is epoch (4) + AES-KW output (40).
	WrappedDEKSize = 4 + KeySize + 8

	epochPrefixSize = 4
)

// GenerateDEK returns a fresh random data-encryption key.
func GenerateDEK() ([]byte, error) {
	dek := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, dek); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRandom, err)
	}
	return dek, nil
}

// WrapDEK wraps a DEK under an epoch KEK with AES-KW (RFC 3394).
// Returns: u32BE(epoch) || wrapped
func WrapDEK(dek, kek []byte, epoch uint32) ([]byte, error) {
	if len(dek) != KeySize {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrInvalidDEKLength, KeySize, len(dek))
	}
	if err := ValidateKeySize(kek); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	wrapped, err := josecipher.KeyWrap(block, dek)
	if err != nil {
		return nil, fmt.Errorf("key wrap: %w", err)
	}

	out := make([]byte, epochPrefixSize, WrappedDEKSize)
	binary.BigEndian.PutUint32(out, epoch)
	return append(out, wrapped...), nil
}

// UnwrapDEK recovers the DEK and the epoch tag from a wrapped DEK. A wrong
// KEK or a modified blob fails with ErrUnwrapFailed.
func UnwrapDEK(wrapped, kek []byte) ([]byte, uint32, error) {
	if len(wrapped) != WrappedDEKSize {
		return nil, 0, fmt.Errorf("%w: expected %d, got %d", ErrInvalidWrappedDEKLength, WrappedDEKSize, len(wrapped))
	}
	if err := ValidateKeySize(kek); err != nil {
		return nil, 0, err
	}

	epoch := binary.BigEndian.Uint32(wrapped[:epochPrefixSize])

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, 0, fmt.Errorf("create cipher: %w", err)
	}
	dek, err := josecipher.KeyUnwrap(block, wrapped[epochPrefixSize:])
	if err != nil {
		return nil, 0, ErrUnwrapFailed
	}
	return dek, epoch, nil
}

// PeekEpoch reads the epoch tag without authenticating it.
func PeekEpoch(wrapped []byte) (uint32, error) {
	if len(wrapped) < epochPrefixSize {
		return 0, ErrMissingWrappedDEK
	}
	return binary.BigEndian.Uint32(wrapped[:epochPrefixSize]), nil
}
