package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/dustin/go-humanize"

	"github.com/TheMichaelB/spacesync/internal/editchain"
	"github.com/TheMichaelB/spacesync/internal/models"
	"github.com/TheMichaelB/spacesync/internal/rotation"
	"github.com/TheMichaelB/spacesync/internal/state"
	"github.com/TheMichaelB/spacesync/internal/transport"
	"github.com/TheMichaelB/spacesync/test/testutil"
)

func BenchmarkSealOpen(b *testing.B) {
	sizes := []int{100, 4 << 10, 64 << 10, 512 << 10}

	for _, size := range sizes {
		b.Run(humanize.IBytes(uint64(size)), func(b *testing.B) {
			fixture := testutil.NewFixture(b, "bench-space", 0)
			keys := fixture.Cache(b, 0)
			env := &models.BlobEnvelope{Collection: "docs", Version: 1, CRDT: testutil.RandomBytes(b, size)}

			b.SetBytes(int64(size))
			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				blob, wrapped, err := transport.EncryptOutbound(env, "rec", keys, nil)
				if err != nil {
					b.Fatal(err)
				}
				if _, err := transport.DecryptInbound(blob, wrapped, "rec", keys, nil); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkRotateSpace(b *testing.B) {
	for _, count := range []int{10, 100, 1000} {
		b.Run(fmt.Sprintf("records-%d", count), func(b *testing.B) {
			fixture := testutil.NewFixture(b, "bench-space", 0)
			keys := fixture.Cache(b, 0)

			st := models.NewSpaceState(fixture.SpaceID)
			for i := 0; i < count; i++ {
				_, wrapped, err := transport.EncryptOutbound(
					&models.BlobEnvelope{Collection: "c", Version: 1}, fmt.Sprintf("rec-%d", i), keys, nil)
				if err != nil {
					b.Fatal(err)
				}
				st.PutDEK(fmt.Sprintf("rec-%d", i), wrapped)
			}
			currentKey := fixture.EpochKey(b, 0)
			newKey := fixture.EpochKey(b, 1)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				b.StopTimer()
				store := state.NewMockStore()
				if err := store.Save(fixture.SpaceID, st.Clone()); err != nil {
					b.Fatal(err)
				}
				svc := rotation.NewService(store, nil)
				b.StartTimer()

				if _, err := svc.RotateSpace(context.Background(), fixture.SpaceID, currentKey, newKey, 1); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkVerifyChain(b *testing.B) {
	author := testutil.NewIdentity(b)

	var entries []*models.EditEntry
	var prev *models.EditEntry
	for i := 0; i < 50; i++ {
		entry, err := editchain.SignEntry(author.Key, author.JWK, "docs", "rec", author.DID, uint64(i+1),
			[]models.EditDiff{{Path: "n", From: i, To: i + 1}}, prev)
		if err != nil {
			b.Fatal(err)
		}
		entries = append(entries, entry)
		prev = entry
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if !editchain.VerifyChain(entries, "docs", "rec") {
			b.Fatal("chain did not verify")
		}
	}
}
