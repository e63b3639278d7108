package crypto

import (
	"encoding/binary"
	"fmt"

	"github.com/tink-crypto/tink-go/v2/aead/subtle"
)

const (
	// BlobVersion is the leading byte of every record blob.
	BlobVersion = 4

	// Key sizes
	KeySize   = 32 // AES-256
	NonceSize = 12 // GCM standard
	TagSize   = 16 // GCM tag

	minBlobSize = 1 + NonceSize + TagSize
)

// EncryptionContext binds a ciphertext to one record of a space. It only
// feeds the additional authenticated data and is never stored.
type EncryptionContext struct {
	SpaceID  string
	RecordID string
}

// AAD returns u32BE(len(space)) || space || record. A nil context has no AAD.
func (c *EncryptionContext) AAD() []byte {
	if c == nil {
		return nil
	}
	aad := make([]byte, 4, 4+len(c.SpaceID)+len(c.RecordID))
	binary.BigEndian.PutUint32(aad, uint32(len(c.SpaceID)))
	aad = append(aad, c.SpaceID...)
	aad = append(aad, c.RecordID...)
	return aad
}

func newAEAD(key []byte) (*subtle.AESGCM, error) {
	if err := ValidateKeySize(key); err != nil {
		return nil, err
	}
	aead, err := subtle.NewAESGCM(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return aead, nil
}

// EncryptV4 encrypts data under a DEK.
// Returns: version || iv || ciphertext || tag
func EncryptV4(data, dek []byte, ctx *EncryptionContext) ([]byte, error) {
	aead, err := newAEAD(dek)
	if err != nil {
		return nil, err
	}

	sealed, err := aead.Encrypt(data, ctx.AAD())
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}

	blob := make([]byte, 0, 1+len(sealed))
	blob = append(blob, BlobVersion)
	blob = append(blob, sealed...)
	return blob, nil
}

// DecryptV4 reverses EncryptV4. The context must match the one used for
// encryption or authentication fails.
func DecryptV4(blob, dek []byte, ctx *EncryptionContext) ([]byte, error) {
	if err := ValidateKeySize(dek); err != nil {
		return nil, err
	}
	if len(blob) < minBlobSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrDataTooShort, len(blob))
	}
	if blob[0] != BlobVersion {
		return nil, fmt.Errorf("%w: got version %d", ErrExpectedV4, blob[0])
	}

	aead, err := newAEAD(dek)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Decrypt(blob[1:], ctx.AAD())
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// Seal encrypts plaintext with explicit AAD.
// Returns: iv || ciphertext || tag
func Seal(plaintext, key, aad []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	sealed, err := aead.Encrypt(plaintext, aad)
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	return sealed, nil
}

// Open decrypts the output of Seal.
func Open(ciphertext, key, aad []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < NonceSize+TagSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrDataTooShort, len(ciphertext))
	}
	plaintext, err := aead.Decrypt(ciphertext, aad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
