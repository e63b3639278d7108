package storage_test

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/spacesync/internal/events"
	"github.com/TheMichaelB/spacesync/internal/storage"
)

func newLocalStore(t *testing.T) (*storage.LocalStore, string) {
	t.Helper()
	dir := t.TempDir()
	var buf bytes.Buffer
	store, err := storage.NewLocalStore(dir, events.NewTestLogger(events.DebugLevel, "json", &buf))
	require.NoError(t, err)
	return store, dir
}

func TestBlobStores(t *testing.T) {
	stores := map[string]func(t *testing.T) storage.BlobStore{
		"local": func(t *testing.T) storage.BlobStore {
			s, _ := newLocalStore(t)
			return s
		},
		"mock": func(t *testing.T) storage.BlobStore {
			return storage.NewMockStore()
		},
	}

	for name, factory := range stores {
		t.Run(name, func(t *testing.T) {
			store := factory(t)

			blob := []byte{0x04, 1, 2, 3}
			require.NoError(t, store.Put("space-1", "rec-b", blob))
			require.NoError(t, store.Put("space-1", "rec-a", []byte{9}))
			require.NoError(t, store.Put("space-2", "rec-a", []byte{8}))

			got, err := store.Get("space-1", "rec-b")
			require.NoError(t, err)
			assert.Equal(t, blob, got)

			exists, err := store.Exists("space-1", "rec-a")
			require.NoError(t, err)
			assert.True(t, exists)

			ids, err := store.List("space-1")
			require.NoError(t, err)
			assert.Equal(t, []string{"rec-a", "rec-b"}, ids)

			// Overwrite
			require.NoError(t, store.Put("space-1", "rec-b", []byte{7}))
			got, err = store.Get("space-1", "rec-b")
			require.NoError(t, err)
			assert.Equal(t, []byte{7}, got)

			require.NoError(t, store.Delete("space-1", "rec-b"))
			require.NoError(t, store.Delete("space-1", "rec-b"))
			_, err = store.Get("space-1", "rec-b")
			assert.ErrorIs(t, err, storage.ErrBlobNotFound)

			ids, err = store.List("unknown")
			require.NoError(t, err)
			assert.Empty(t, ids)
		})
	}
}

func TestLocalStoreIdentifiers(t *testing.T) {
	store, dir := newLocalStore(t)

	t.Run("separators are escaped", func(t *testing.T) {
		for _, id := range []string{"a/b", "../etc/passwd", `..\win`, "notes/./x"} {
			require.NoError(t, store.Put("space", id, []byte(id)))
			got, err := store.Get("space", id)
			require.NoError(t, err)
			assert.Equal(t, []byte(id), got)
		}

		ids, err := store.List("space")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a/b", "../etc/passwd", `..\win`, "notes/./x"}, ids)

		// Everything stays in one directory under the base.
		entries, err := os.ReadDir(filepath.Join(dir, "space"))
		require.NoError(t, err)
		assert.Len(t, entries, 4)
		for _, e := range entries {
			assert.False(t, e.IsDir())
		}
	})

	t.Run("rejected identifiers", func(t *testing.T) {
		for _, id := range []string{"", ".", "..", "a\x00b"} {
			assert.ErrorIs(t, store.Put("space", id, []byte{1}), storage.ErrInvalidID, "record %q", id)
			assert.ErrorIs(t, store.Put(id, "rec", []byte{1}), storage.ErrInvalidID, "space %q", id)
		}
	})
}

func TestLocalStoreLimits(t *testing.T) {
	store, _ := newLocalStore(t)
	store.SetMaxBlobSize(1024)

	require.NoError(t, store.Put("space", "ok", make([]byte, 1024)))

	err := store.Put("space", "big", make([]byte, 1025))
	var tooLarge *storage.BlobTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, int64(1025), tooLarge.Size)

	exists, err := store.Exists("space", "big")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalStoreAtomicWrites(t *testing.T) {
	store, dir := newLocalStore(t)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := store.Put("space", fmt.Sprintf("rec-%02d", n), bytes.Repeat([]byte{byte(n)}, 512)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Put error: %v", err)
	}

	ids, err := store.List("space")
	require.NoError(t, err)
	assert.Len(t, ids, 20)

	// No temp files left behind
	matches, err := filepath.Glob(filepath.Join(dir, "space", "*.tmp.*"))
	require.NoError(t, err)
	assert.Empty(t, matches)

	t.Run("empty space directory is removed", func(t *testing.T) {
		require.NoError(t, store.Put("lonely", "only", []byte{1}))
		require.NoError(t, store.Delete("lonely", "only"))
		_, err := os.Stat(filepath.Join(dir, "lonely"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("symlinks are refused", func(t *testing.T) {
		target := filepath.Join(t.TempDir(), "secret")
		require.NoError(t, os.WriteFile(target, []byte("secret"), 0600))
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "linked"), 0700))
		require.NoError(t, os.Symlink(target, filepath.Join(dir, "linked", "rec.blob")))

		_, err := store.Get("linked", "rec")
		assert.Error(t, err)
	})
}
