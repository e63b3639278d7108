package rotation_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/spacesync/internal/crypto"
	"github.com/TheMichaelB/spacesync/internal/events"
	"github.com/TheMichaelB/spacesync/internal/models"
	"github.com/TheMichaelB/spacesync/internal/rotation"
	"github.com/TheMichaelB/spacesync/internal/state"
)

func testLogger(buf *bytes.Buffer) *events.Logger {
	return events.NewTestLogger(events.DebugLevel, "json", buf)
}

// seed stores a space at epoch with n DEKs wrapped under key.
func seed(t *testing.T, store state.Store, spaceID string, key []byte, epoch uint32, n int) map[string][]byte {
	t.Helper()

	deks := make(map[string][]byte, n)
	st := models.NewSpaceState(spaceID)
	st.Epoch = epoch
	for i := 0; i < n; i++ {
		id := "rec-" + string(rune('a'+i))
		dek := newDEK(t)
		deks[id] = dek
		st.PutDEK(id, wrap(t, dek, key, epoch))
	}
	require.NoError(t, store.Save(spaceID, st))
	return deks
}

func TestRotateSpace(t *testing.T) {
	stores := map[string]func(t *testing.T) state.Store{
		"mock": func(t *testing.T) state.Store { return state.NewMockStore() },
		"sqlite": func(t *testing.T) state.Store {
			var buf bytes.Buffer
			s, err := state.NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"), testLogger(&buf))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"json": func(t *testing.T) state.Store {
			var buf bytes.Buffer
			s, err := state.NewJSONStore(t.TempDir(), testLogger(&buf))
			require.NoError(t, err)
			return s
		},
	}

	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			var buf bytes.Buffer
			svc := rotation.NewService(store, testLogger(&buf))

			spaceID := "space-rotate"
			key1 := randomKey(t)
			deks := seed(t, store, spaceID, key1, 1, 3)

			key4, err := rotation.DeriveForward(key1, spaceID, 1, 4)
			require.NoError(t, err)

			ctx := events.WithRequestID(context.Background(), "req-1")
			report, err := svc.RotateSpace(ctx, spaceID, key1, key4, 4)
			require.NoError(t, err)

			assert.NotEmpty(t, report.RunID)
			assert.Equal(t, spaceID, report.SpaceID)
			assert.Equal(t, uint32(1), report.FromEpoch)
			assert.Equal(t, uint32(4), report.ToEpoch)
			assert.Equal(t, 3, report.Rewrapped)
			assert.Equal(t, 0, report.Skipped)

			stored, err := store.Load(spaceID)
			require.NoError(t, err)
			assert.Equal(t, uint32(4), stored.Epoch)
			require.Equal(t, 3, stored.RecordCount())

			for id, want := range deks {
				wrapped, ok := stored.DEK(id)
				require.True(t, ok)
				got, epoch, err := crypto.UnwrapDEK(wrapped, key4)
				require.NoError(t, err)
				assert.Equal(t, uint32(4), epoch)
				assert.Equal(t, want, got)
			}

			assert.Contains(t, buf.String(), "Rotation completed")
			assert.Contains(t, buf.String(), `"request_id":"req-1"`)
		})
	}
}

func TestRotateSpaceFailures(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()

	t.Run("unknown space", func(t *testing.T) {
		svc := rotation.NewService(state.NewMockStore(), testLogger(&buf))
		_, err := svc.RotateSpace(ctx, "missing", randomKey(t), randomKey(t), 2)

		var syncErr *models.SyncError
		require.ErrorAs(t, err, &syncErr)
		assert.Equal(t, models.ErrCodeRotation, syncErr.Code)
		assert.ErrorIs(t, err, models.ErrSpaceNotFound)
	})

	t.Run("epoch does not advance", func(t *testing.T) {
		store := state.NewMockStore()
		key := randomKey(t)
		seed(t, store, "s", key, 3, 1)

		svc := rotation.NewService(store, testLogger(&buf))
		_, err := svc.RotateSpace(ctx, "s", key, randomKey(t), 3)

		var invalid *models.InvalidEpochAdvanceError
		assert.True(t, errors.As(err, &invalid))

		stored, err := store.Load("s")
		require.NoError(t, err)
		assert.Equal(t, uint32(3), stored.Epoch)
	})

	t.Run("wrong current key leaves state untouched", func(t *testing.T) {
		store := state.NewMockStore()
		key := randomKey(t)
		seed(t, store, "s", key, 1, 2)
		before, err := store.Load("s")
		require.NoError(t, err)

		svc := rotation.NewService(store, testLogger(&buf))
		_, err = svc.RotateSpace(ctx, "s", randomKey(t), randomKey(t), 2)
		assert.ErrorIs(t, err, crypto.ErrIntegrity)

		after, err := store.Load("s")
		require.NoError(t, err)
		assert.Equal(t, before.Epoch, after.Epoch)
		assert.Equal(t, before.WrappedDEKs, after.WrappedDEKs)
	})

	t.Run("save failure", func(t *testing.T) {
		store := state.NewMockStore()
		key := randomKey(t)
		seed(t, store, "s", key, 1, 1)
		store.SaveErr = errors.New("disk full")

		svc := rotation.NewService(store, testLogger(&buf))
		_, err := svc.RotateSpace(ctx, "s", key, randomKey(t), 2)
		assert.ErrorContains(t, err, "save state: disk full")
	})

	t.Run("cancelled context", func(t *testing.T) {
		store := state.NewMockStore()
		key := randomKey(t)
		seed(t, store, "s", key, 1, 1)

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		svc := rotation.NewService(store, testLogger(&buf))
		_, err := svc.RotateSpace(cctx, "s", key, randomKey(t), 2)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("space already locked", func(t *testing.T) {
		if testing.Short() {
			t.Skip("waits for the lock timeout")
		}
		store := state.NewMockStore()
		key := randomKey(t)
		seed(t, store, "s", key, 1, 1)

		unlock, err := store.Lock("s")
		require.NoError(t, err)
		defer unlock()

		svc := rotation.NewService(store, testLogger(&buf))
		_, err = svc.RotateSpace(ctx, "s", key, randomKey(t), 2)
		assert.ErrorIs(t, err, models.ErrRotationRunning)
	})
}

func TestRotateSkipsCurrent(t *testing.T) {
	var buf bytes.Buffer
	store := state.NewMockStore()
	spaceID := "s"

	key1 := randomKey(t)
	key2, err := crypto.DeriveNextEpochKey(key1, spaceID, 2)
	require.NoError(t, err)

	st := models.NewSpaceState(spaceID)
	st.Epoch = 1
	st.PutDEK("old", wrap(t, newDEK(t), key1, 1))
	st.PutDEK("new", wrap(t, newDEK(t), key2, 2))
	require.NoError(t, store.Save(spaceID, st))

	report, err := rotation.NewService(store, testLogger(&buf)).RotateSpace(context.Background(), spaceID, key1, key2, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rewrapped)
	assert.Equal(t, 1, report.Skipped)

	stored, err := store.Load(spaceID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.RecordCount())
	unchanged, _ := stored.DEK("new")
	orig, _ := st.DEK("new")
	assert.Equal(t, orig, unchanged)
}
