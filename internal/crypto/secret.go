package crypto

import (
	"crypto/rand"
	"fmt"
	"io"
	"runtime"
	"sync"
)

// Zero overwrites a byte slice with zeros.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// SecretBuffer owns key material and wipes it on Destroy. Locking the pages
// into RAM is attempted but not required. Copies made by the runtime (GC
// moves, swap before mlock, callers copying Bytes) are outside its reach.
type SecretBuffer struct {
	mu     sync.Mutex
	b      []byte
	locked bool
}

// NewSecretBuffer copies src into a fresh buffer. The caller keeps
// ownership of src.
func NewSecretBuffer(src []byte) *SecretBuffer {
	b := make([]byte, len(src))
	copy(b, src)
	return wrapSecret(b)
}

// RandomSecret returns a buffer of n random bytes.
func RandomSecret(n int) (*SecretBuffer, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRandom, err)
	}
	return wrapSecret(b), nil
}

func wrapSecret(b []byte) *SecretBuffer {
	s := &SecretBuffer{b: b}
	if len(b) > 0 && lockMemory(b) == nil {
		s.locked = true
	}
	runtime.SetFinalizer(s, (*SecretBuffer).Destroy)
	return s
}

// Bytes exposes the secret. The slice is only valid until Destroy.
func (s *SecretBuffer) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b
}

// Copy returns a copy the caller must Zero when done.
func (s *SecretBuffer) Copy() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.b))
	copy(out, s.b)
	return out
}

// Len returns the size of the secret, 0 after Destroy.
func (s *SecretBuffer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.b)
}

// Destroy zeroes and releases the buffer. Safe to call more than once.
func (s *SecretBuffer) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.b == nil {
		return
	}
	Zero(s.b)
	if s.locked {
		_ = unlockMemory(s.b)
		s.locked = false
	}
	s.b = nil
	runtime.SetFinalizer(s, nil)
}
