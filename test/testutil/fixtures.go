package testutil

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/spacesync/internal/crypto"
	"github.com/TheMichaelB/spacesync/internal/epoch"
	"github.com/TheMichaelB/spacesync/internal/models"
)

// Fixture is a space with a known root key and a set of records.
type Fixture struct {
	SpaceID string
	RootKey []byte // epoch 0 key
	Records []FixtureRecord
}

// FixtureRecord is a plaintext record of a fixture.
type FixtureRecord struct {
	ID         string
	Collection string
	CRDT       []byte
}

// Envelope returns the record wrapped for transport.
func (r FixtureRecord) Envelope() *models.BlobEnvelope {
	return &models.BlobEnvelope{
		Collection: r.Collection,
		Version:    1,
		CRDT:       append([]byte(nil), r.CRDT...),
	}
}

// NewFixture creates a space with n records of increasing size.
func NewFixture(t testing.TB, spaceID string, n int) *Fixture {
	t.Helper()

	f := &Fixture{
		SpaceID: spaceID,
		RootKey: RandomKey(t),
	}
	for i := 0; i < n; i++ {
		f.Records = append(f.Records, FixtureRecord{
			ID:         fmt.Sprintf("rec-%03d", i),
			Collection: "tasks",
			CRDT:       RandomBytes(t, 32*(i+1)),
		})
	}
	return f
}

// EpochKey ratchets the root key forward to target.
func (f *Fixture) EpochKey(t testing.TB, target uint32) []byte {
	t.Helper()
	key, err := crypto.DeriveEpochKeyFromRoot(f.RootKey, f.SpaceID, target)
	require.NoError(t, err)
	return key
}

// Cache returns an epoch cache based at base, closed with the test.
func (f *Fixture) Cache(t testing.TB, base uint32) *epoch.Cache {
	t.Helper()
	key := f.EpochKey(t, base)
	defer crypto.Zero(key)

	cache, err := epoch.NewCache(key, base, f.SpaceID)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

// RandomKey returns a random 32-byte key.
func RandomKey(t testing.TB) []byte {
	t.Helper()
	return RandomBytes(t, crypto.KeySize)
}

// RandomBytes returns n random bytes.
func RandomBytes(t testing.TB, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

// Identity is a signing key with its did:key.
type Identity struct {
	Key *ecdsa.PrivateKey
	JWK crypto.JWK
	DID string
}

// NewIdentity generates a P-256 identity.
func NewIdentity(t testing.TB) Identity {
	t.Helper()
	key, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	did, err := crypto.EncodeDIDKey(&key.PublicKey)
	require.NoError(t, err)
	return Identity{Key: key, JWK: crypto.ExportPublicKeyJWK(&key.PublicKey), DID: did}
}
