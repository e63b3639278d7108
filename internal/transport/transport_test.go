package transport_test

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/spacesync/internal/config"
	"github.com/TheMichaelB/spacesync/internal/crypto"
	"github.com/TheMichaelB/spacesync/internal/envelope"
	"github.com/TheMichaelB/spacesync/internal/epoch"
	"github.com/TheMichaelB/spacesync/internal/events"
	"github.com/TheMichaelB/spacesync/internal/models"
	"github.com/TheMichaelB/spacesync/internal/transport"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, crypto.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func newCache(t *testing.T, key []byte, base uint32, spaceID string) *epoch.Cache {
	t.Helper()
	cache, err := epoch.NewCache(key, base, spaceID)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func strPtr(s string) *string { return &s }

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		env     models.BlobEnvelope
		buckets []int
	}{
		{
			name:    "basic",
			env:     models.BlobEnvelope{Collection: "tasks", Version: 1, CRDT: []byte{1, 2, 3, 4, 5}},
			buckets: envelope.DefaultBuckets,
		},
		{
			name:    "edit chain preserved",
			env:     models.BlobEnvelope{Collection: "notes", Version: 2, CRDT: []byte{10}, EditChain: strPtr("chain-data")},
			buckets: envelope.DefaultBuckets,
		},
		{
			name:    "empty crdt",
			env:     models.BlobEnvelope{Collection: "empty", Version: 7, CRDT: []byte{}},
			buckets: envelope.DefaultBuckets,
		},
		{
			name:    "no padding",
			env:     models.BlobEnvelope{Collection: "raw", Version: 1, CRDT: []byte("payload")},
			buckets: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := randomKey(t)
			enc := newCache(t, key, 0, "space-1")
			dec := newCache(t, key, 0, "space-1")

			blob, wrapped, err := transport.EncryptOutbound(&tt.env, "record-1", enc, tt.buckets)
			require.NoError(t, err)
			assert.Len(t, wrapped, crypto.WrappedDEKSize)

			got, err := transport.DecryptInbound(blob, wrapped, "record-1", dec, tt.buckets)
			require.NoError(t, err)
			assert.Equal(t, tt.env.Collection, got.Collection)
			assert.Equal(t, tt.env.Version, got.Version)
			assert.True(t, bytes.Equal(tt.env.CRDT, got.CRDT))
			assert.Equal(t, tt.env.EditChain, got.EditChain)
		})
	}
}

func TestBlobSizeHidden(t *testing.T) {
	key := randomKey(t)
	cache := newCache(t, key, 0, "space-1")

	small := &models.BlobEnvelope{Collection: "c", Version: 1, CRDT: []byte{1}}
	large := &models.BlobEnvelope{Collection: "c", Version: 1, CRDT: make([]byte, 200)}

	a, _, err := transport.EncryptOutbound(small, "r", cache, envelope.DefaultBuckets)
	require.NoError(t, err)
	b, _, err := transport.EncryptOutbound(large, "r", cache, envelope.DefaultBuckets)
	require.NoError(t, err)

	// version + IV + bucket + tag
	assert.Len(t, a, 1+12+256+16)
	assert.Equal(t, len(a), len(b))
}

func TestDecryptInboundFailures(t *testing.T) {
	env := &models.BlobEnvelope{Collection: "tasks", Version: 1, CRDT: []byte{1, 2, 3}}

	t.Run("wrong record id", func(t *testing.T) {
		key := randomKey(t)
		blob, wrapped, err := transport.EncryptOutbound(env, "record-1", newCache(t, key, 0, "space-1"), envelope.DefaultBuckets)
		require.NoError(t, err)

		_, err = transport.DecryptInbound(blob, wrapped, "record-WRONG", newCache(t, key, 0, "space-1"), envelope.DefaultBuckets)
		assert.ErrorIs(t, err, crypto.ErrIntegrity)
	})

	t.Run("wrong space", func(t *testing.T) {
		key := randomKey(t)
		blob, wrapped, err := transport.EncryptOutbound(env, "record-1", newCache(t, key, 0, "space-1"), envelope.DefaultBuckets)
		require.NoError(t, err)

		// Base-epoch keys are equal, so only the AAD differs.
		_, err = transport.DecryptInbound(blob, wrapped, "record-1", newCache(t, key, 0, "space-2"), envelope.DefaultBuckets)
		assert.ErrorIs(t, err, crypto.ErrIntegrity)
	})

	t.Run("wrong key", func(t *testing.T) {
		blob, wrapped, err := transport.EncryptOutbound(env, "record-1", newCache(t, randomKey(t), 0, "space-1"), envelope.DefaultBuckets)
		require.NoError(t, err)

		_, err = transport.DecryptInbound(blob, wrapped, "record-1", newCache(t, randomKey(t), 0, "space-1"), envelope.DefaultBuckets)
		assert.ErrorIs(t, err, crypto.ErrUnwrapFailed)
	})

	t.Run("epoch claim rewritten", func(t *testing.T) {
		key := randomKey(t)
		blob, wrapped, err := transport.EncryptOutbound(env, "record-1", newCache(t, key, 0, "space-1"), envelope.DefaultBuckets)
		require.NoError(t, err)

		wrapped[3] = 2
		_, err = transport.DecryptInbound(blob, wrapped, "record-1", newCache(t, key, 0, "space-1"), envelope.DefaultBuckets)
		assert.ErrorIs(t, err, crypto.ErrIntegrity)
	})

	t.Run("epoch before cache base", func(t *testing.T) {
		key := randomKey(t)
		blob, wrapped, err := transport.EncryptOutbound(env, "record-1", newCache(t, key, 0, "space-1"), envelope.DefaultBuckets)
		require.NoError(t, err)

		later, err := crypto.DeriveEpochKeyFromRoot(key, "space-1", 3)
		require.NoError(t, err)
		_, err = transport.DecryptInbound(blob, wrapped, "record-1", newCache(t, later, 3, "space-1"), envelope.DefaultBuckets)

		var backward *models.BackwardDerivationError
		assert.True(t, errors.As(err, &backward))
	})

	t.Run("short wrapped dek", func(t *testing.T) {
		_, err := transport.DecryptInbound([]byte{4}, []byte{0, 0}, "record-1", newCache(t, randomKey(t), 0, "space-1"), envelope.DefaultBuckets)
		assert.ErrorIs(t, err, crypto.ErrMissingWrappedDEK)
	})
}

func TestForwardEpochDecryption(t *testing.T) {
	key := randomKey(t)
	enc := newCache(t, key, 0, "space-1")
	enc.UpdateEncryptionEpoch(3)
	dec := newCache(t, key, 0, "space-1")

	env := &models.BlobEnvelope{Collection: "tasks", Version: 1, CRDT: []byte{42}}
	blob, wrapped, err := transport.EncryptOutbound(env, "rec-1", enc, envelope.DefaultBuckets)
	require.NoError(t, err)

	epochNum, err := crypto.PeekEpoch(wrapped)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), epochNum)

	got, err := transport.DecryptInbound(blob, wrapped, "rec-1", dec, envelope.DefaultBuckets)
	require.NoError(t, err)
	assert.Equal(t, []byte{42}, got.CRDT)
}

func TestEncryptOutboundErrors(t *testing.T) {
	t.Run("too large for buckets", func(t *testing.T) {
		env := &models.BlobEnvelope{Collection: "c", Version: 1, CRDT: make([]byte, 300)}
		_, _, err := transport.EncryptOutbound(env, "r", newCache(t, randomKey(t), 0, "s"), []int{256})
		var tooLarge *envelope.DataTooLargeError
		assert.ErrorAs(t, err, &tooLarge)
	})

	t.Run("key source failure", func(t *testing.T) {
		keys := transport.NewMockKeySource("s", 0, randomKey(t))
		keys.KEKError = errors.New("keys unavailable")

		env := &models.BlobEnvelope{Collection: "c", Version: 1}
		_, _, err := transport.EncryptOutbound(env, "r", keys, nil)
		assert.EqualError(t, err, "keys unavailable")
		assert.Equal(t, []uint32{0}, keys.KEKRequests)
	})
}

func TestMockKeySource(t *testing.T) {
	key := randomKey(t)
	keys := transport.NewMockKeySource("space-9", 4, key)

	env := &models.BlobEnvelope{Collection: "c", Version: 1, CRDT: []byte("x")}
	blob, wrapped, err := transport.EncryptOutbound(env, "r", keys, envelope.DefaultBuckets)
	require.NoError(t, err)

	got, err := transport.DecryptInbound(blob, wrapped, "r", keys, envelope.DefaultBuckets)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got.CRDT)
	assert.Equal(t, []uint32{4, 4}, keys.KEKRequests)

	// Keys handed out are copies.
	assert.Equal(t, key, keys.Keys[4])
}

func TestPipeline(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)

	key := randomKey(t)
	spaceID := uuid.NewString()
	recordID := uuid.NewString()

	pipeline := transport.NewPipeline(config.DefaultConfig().Sync, logger)
	assert.Equal(t, envelope.DefaultBuckets, pipeline.Buckets())

	env := &models.BlobEnvelope{Collection: "tasks", Version: 1, CRDT: []byte("hello")}
	blob, wrapped, err := pipeline.Push(env, recordID, newCache(t, key, 0, spaceID))
	require.NoError(t, err)

	got, err := pipeline.Pull(blob, wrapped, recordID, newCache(t, key, 0, spaceID))
	require.NoError(t, err)
	assert.Equal(t, "tasks", got.Collection)
	assert.Contains(t, buf.String(), "Encrypted record")
	assert.Contains(t, buf.String(), "Decrypted record")

	t.Run("failure is a sync error", func(t *testing.T) {
		_, err := pipeline.Pull(blob, wrapped, "other-record", newCache(t, key, 0, spaceID))
		require.Error(t, err)

		var syncErr *models.SyncError
		require.ErrorAs(t, err, &syncErr)
		assert.Equal(t, models.ErrCodeIntegrity, syncErr.Code)
		assert.Equal(t, transport.PhasePull, syncErr.Phase)
		assert.Equal(t, spaceID, syncErr.SpaceID)
		assert.Equal(t, "other-record", syncErr.RecordID)
		assert.ErrorIs(t, err, crypto.ErrIntegrity)
	})

	t.Run("padding failure code", func(t *testing.T) {
		small := transport.NewPipeline(config.SyncConfig{PaddingBuckets: []int{64}}, logger)
		_, _, err := small.Push(&models.BlobEnvelope{Collection: "c", CRDT: make([]byte, 100)}, "r", newCache(t, key, 0, spaceID))

		var syncErr *models.SyncError
		require.ErrorAs(t, err, &syncErr)
		assert.Equal(t, models.ErrCodePadding, syncErr.Code)
		assert.Equal(t, transport.PhasePush, syncErr.Phase)
	})

	t.Run("empty buckets disable padding", func(t *testing.T) {
		raw := transport.NewPipeline(config.SyncConfig{PaddingBuckets: []int{}}, logger)
		assert.Empty(t, raw.Buckets())
	})
}

func BenchmarkRoundTrip(b *testing.B) {
	key := make([]byte, crypto.KeySize)
	cache, err := epoch.NewCache(key, 0, "bench")
	require.NoError(b, err)
	defer cache.Close()

	env := &models.BlobEnvelope{Collection: "tasks", Version: 1, CRDT: make([]byte, 2048)}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		blob, wrapped, _ := transport.EncryptOutbound(env, "r", cache, envelope.DefaultBuckets)
		_, _ = transport.DecryptInbound(blob, wrapped, "r", cache, envelope.DefaultBuckets)
	}
}
