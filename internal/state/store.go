package state

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/TheMichaelB/spacesync/internal/config"
	"github.com/TheMichaelB/spacesync/internal/events"
	"github.com/TheMichaelB/spacesync/internal/models"
)

// Store manages the wrapped-DEK index of each space.
type Store interface {
	// Load retrieves the state of a space.
	Load(spaceID string) (*models.SpaceState, error)

	// Save persists the state of a space.
	Save(spaceID string, state *models.SpaceState) error

	// Reset removes all state for a space.
	Reset(spaceID string) error

	// List returns all known space IDs.
	List() ([]string, error)

	// Lock acquires an exclusive lock for a space.
	Lock(spaceID string) (UnlockFunc, error)

	// Migrate transfers state between stores.
	Migrate(target Store) error

	// Close releases resources.
	Close() error
}

// UnlockFunc releases a space lock.
type UnlockFunc func()

// Errors
var (
	ErrStateNotFound = errors.New("state not found")
	ErrStateLocked   = errors.New("state is locked")
	ErrStateCorrupt  = errors.New("state file is corrupt")
)

// SpaceState extends the model with store metadata.
type SpaceState struct {
	*models.SpaceState

	// Store metadata
	SchemaVersion int       `json:"schema_version"`
	CreatedAt     time.Time `json:"created_at"`
	Checksum      string    `json:"checksum,omitempty"`
}

// CurrentSchemaVersion for migrations.
const CurrentSchemaVersion = 1

// LockTimeout bounds how long Lock waits for another holder.
const LockTimeout = 5 * time.Second

// New opens the store selected by cfg.Backend.
func New(cfg config.StorageConfig, logger *events.Logger) (Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return NewSQLiteStore(cfg.StatePath(), logger)
	case config.BackendJSON:
		return NewJSONStore(cfg.StatePath(), logger)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

// spaceLocks hands out one mutex per space.
type spaceLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSpaceLocks() *spaceLocks {
	return &spaceLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *spaceLocks) acquire(spaceID string, timeout time.Duration) (UnlockFunc, error) {
	l.mu.Lock()
	lock, exists := l.locks[spaceID]
	if !exists {
		lock = &sync.Mutex{}
		l.locks[spaceID] = lock
	}
	l.mu.Unlock()

	if lock.TryLock() {
		return lock.Unlock, nil
	}

	// Try to acquire lock with timeout
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			if lock.TryLock() {
				return lock.Unlock, nil
			}
		case <-deadline.C:
			return nil, ErrStateLocked
		}
	}
}
