// Package transport turns record envelopes into encrypted blobs and back.
//
// Push: envelope -> CBOR -> pad -> encrypt(DEK) -> (blob, wrapped DEK)
// Pull: unwrap DEK -> decrypt -> unpad -> CBOR -> envelope
package transport

import (
	"fmt"

	"github.com/TheMichaelB/spacesync/internal/crypto"
	"github.com/TheMichaelB/spacesync/internal/envelope"
	"github.com/TheMichaelB/spacesync/internal/models"
)

// KeySource supplies the key-encryption keys of one space.
// *epoch.Cache satisfies it.
type KeySource interface {
	SpaceID() string
	CurrentEpoch() uint32
	KEK(epoch uint32) ([]byte, error)
}

// EncryptOutbound seals env for recordID under a fresh DEK wrapped with the
// KEK of the current epoch.
func EncryptOutbound(env *models.BlobEnvelope, recordID string, keys KeySource, buckets []int) (blob, wrappedDEK []byte, err error) {
	encoded, err := envelope.Encode(env)
	if err != nil {
		return nil, nil, err
	}

	padded, err := envelope.PadToBucket(encoded, buckets)
	if err != nil {
		return nil, nil, err
	}

	ctx := &crypto.EncryptionContext{SpaceID: keys.SpaceID(), RecordID: recordID}

	dek, err := crypto.GenerateDEK()
	if err != nil {
		return nil, nil, err
	}
	defer crypto.Zero(dek)

	epoch := keys.CurrentEpoch()
	kek, err := keys.KEK(epoch)
	if err != nil {
		return nil, nil, err
	}
	defer crypto.Zero(kek)

	blob, err = crypto.EncryptV4(padded, dek, ctx)
	if err != nil {
		return nil, nil, err
	}

	wrappedDEK, err = crypto.WrapDEK(dek, kek, epoch)
	if err != nil {
		return nil, nil, err
	}

	return blob, wrappedDEK, nil
}

// DecryptInbound reverses EncryptOutbound. The epoch prefix of wrappedDEK
// only selects a KEK; a false claim fails at unwrap. A recordID other than
// the one used on push fails authentication.
func DecryptInbound(blob, wrappedDEK []byte, recordID string, keys KeySource, buckets []int) (*models.BlobEnvelope, error) {
	epoch, err := crypto.PeekEpoch(wrappedDEK)
	if err != nil {
		return nil, err
	}

	kek, err := keys.KEK(epoch)
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(kek)

	dek, _, err := crypto.UnwrapDEK(wrappedDEK, kek)
	if err != nil {
		return nil, err
	}

	ctx := &crypto.EncryptionContext{SpaceID: keys.SpaceID(), RecordID: recordID}
	padded, err := crypto.DecryptV4(blob, dek, ctx)
	crypto.Zero(dek)
	if err != nil {
		return nil, err
	}

	plain, err := envelope.Unpad(padded, buckets)
	if err != nil {
		return nil, fmt.Errorf("unpad record: %w", err)
	}

	return envelope.Decode(plain)
}
