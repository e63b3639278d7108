package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/TheMichaelB/spacesync/internal/events"
	"github.com/TheMichaelB/spacesync/internal/models"
)

// JSONStore implements file-based state storage, one file per space.
type JSONStore struct {
	baseDir string
	logger  *events.Logger

	mu    sync.RWMutex
	locks *spaceLocks
}

// NewJSONStore creates a JSON-based state store.
func NewJSONStore(baseDir string, logger *events.Logger) (*JSONStore, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	return &JSONStore{
		baseDir: baseDir,
		logger:  logger.WithField("component", "json_state_store"),
		locks:   newSpaceLocks(),
	}, nil
}

// Load reads state from JSON file. A corrupt file falls back to the
// backup written by the previous Save.
func (s *JSONStore) Load(spaceID string) (*models.SpaceState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.statePath(spaceID)

	s.logger.WithFields(map[string]interface{}{
		"space_id": spaceID,
		"path":     path,
	}).Debug("Loading state")

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	state, err := s.decode(data)
	if err != nil {
		s.logger.WithError(err).WithField("space_id", spaceID).Error("State file failed verification")
		if backup, berr := s.loadBackup(spaceID); berr == nil {
			s.logger.Warn("Loaded state from backup due to corruption")
			return backup, nil
		}
		return nil, ErrStateCorrupt
	}

	return state, nil
}

func (s *JSONStore) decode(data []byte) (*models.SpaceState, error) {
	var wrapper SpaceState
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, err
	}
	if wrapper.SpaceState == nil {
		return nil, fmt.Errorf("missing state body")
	}

	if wrapper.Checksum != "" {
		claimed := wrapper.Checksum
		wrapper.Checksum = ""
		calculated, err := checksum(wrapper)
		if err != nil {
			return nil, err
		}
		if calculated != claimed {
			return nil, fmt.Errorf("checksum mismatch: expected %s, got %s", claimed, calculated)
		}
	}

	if wrapper.SchemaVersion != CurrentSchemaVersion {
		s.logger.WithField("version", wrapper.SchemaVersion).Warn("State schema version mismatch")
	}

	if wrapper.WrappedDEKs == nil {
		wrapper.WrappedDEKs = make(map[string][]byte)
	}
	return wrapper.SpaceState, nil
}

// Save writes state to JSON file.
func (s *JSONStore) Save(spaceID string, state *models.SpaceState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.statePath(spaceID)

	s.logger.WithFields(map[string]interface{}{
		"space_id": spaceID,
		"epoch":    state.Epoch,
		"records":  state.RecordCount(),
	}).Debug("Saving state")

	wrapper := SpaceState{
		SpaceState:    state,
		SchemaVersion: CurrentSchemaVersion,
		CreatedAt:     time.Now().UTC(),
	}

	sum, err := checksum(wrapper)
	if err != nil {
		return fmt.Errorf("marshal state for checksum: %w", err)
	}
	wrapper.Checksum = sum

	jsonData, err := json.MarshalIndent(wrapper, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state with checksum: %w", err)
	}

	// Create backup of existing file
	if _, err := os.Stat(path); err == nil {
		if err := copyFile(path, path+".backup"); err != nil {
			s.logger.WithError(err).Warn("Failed to create backup")
		}
	}

	// Write atomically
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, jsonData, 0600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if file, err := os.Open(tmpPath); err == nil {
		_ = file.Sync()
		file.Close()
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename state file: %w", err)
	}

	return nil
}

// Reset removes state for a space.
func (s *JSONStore) Reset(spaceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.WithField("space_id", spaceID).Info("Resetting state")

	path := s.statePath(spaceID)
	_ = os.Remove(path)
	_ = os.Remove(path + ".backup")

	return nil
}

// List returns all space IDs with state.
func (s *JSONStore) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read state directory: %w", err)
	}

	var spaceIDs []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if filepath.Ext(name) != ".json" {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		spaceIDs = append(spaceIDs, id)
	}

	return spaceIDs, nil
}

// Lock acquires a lock for a space.
func (s *JSONStore) Lock(spaceID string) (UnlockFunc, error) {
	return s.locks.acquire(spaceID, LockTimeout)
}

// Migrate transfers all states to another store.
func (s *JSONStore) Migrate(target Store) error {
	return migrate(s, target, s.logger)
}

// Close releases resources.
func (s *JSONStore) Close() error {
	return nil
}

// Helper methods

// statePath escapes the space ID so it cannot leave baseDir.
func (s *JSONStore) statePath(spaceID string) string {
	return filepath.Join(s.baseDir, url.PathEscape(spaceID)+".json")
}

func (s *JSONStore) loadBackup(spaceID string) (*models.SpaceState, error) {
	data, err := os.ReadFile(s.statePath(spaceID) + ".backup")
	if err != nil {
		return nil, err
	}
	return s.decode(data)
}

func checksum(wrapper SpaceState) (string, error) {
	data, err := json.Marshal(wrapper)
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
