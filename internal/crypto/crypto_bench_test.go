package crypto_test

import (
	"crypto/rand"
	"fmt"
	"testing"

	"github.com/TheMichaelB/spacesync/internal/crypto"
)

func BenchmarkDeriveNextEpochKey(b *testing.B) {
	key := randomKey(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := crypto.DeriveNextEpochKey(key, "bench-space", 1); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDeriveEpochKeyFromRoot(b *testing.B) {
	key := randomKey(b)

	for _, target := range []uint32{1, 10, 100} {
		b.Run(fmt.Sprintf("epoch_%d", target), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := crypto.DeriveEpochKeyFromRoot(key, "bench-space", target); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkDecryptV4(b *testing.B) {
	key := randomKey(b)
	ctx := &crypto.EncryptionContext{SpaceID: "bench-space", RecordID: "bench-record"}

	sizes := []int{
		1024,             // 1KB
		1024 * 1024,      // 1MB
		10 * 1024 * 1024, // 10MB
	}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("size_%d", size), func(b *testing.B) {
			plaintext := make([]byte, size)
			_, _ = rand.Read(plaintext)

			blob, err := crypto.EncryptV4(plaintext, key, ctx)
			if err != nil {
				b.Fatal(err)
			}

			b.SetBytes(int64(size))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := crypto.DecryptV4(blob, key, ctx); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkWrapUnwrapDEK(b *testing.B) {
	kek := randomKey(b)
	dek := randomKey(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		wrapped, err := crypto.WrapDEK(dek, kek, uint32(i))
		if err != nil {
			b.Fatal(err)
		}
		if _, _, err := crypto.UnwrapDEK(wrapped, kek); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSignVerify(b *testing.B) {
	key, err := crypto.GenerateKeyPair()
	if err != nil {
		b.Fatal(err)
	}
	pub := crypto.ExportPublicKeyJWK(&key.PublicKey)
	message := []byte("less:editlog:v1\x00bench")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sig, err := crypto.Sign(key, message)
		if err != nil {
			b.Fatal(err)
		}
		if !crypto.Verify(pub, message, sig) {
			b.Fatal("signature did not verify")
		}
	}
}
