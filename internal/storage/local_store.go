package storage

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/TheMichaelB/spacesync/internal/events"
)

const blobExt = ".blob"

// DefaultMaxBlobSize bounds a single blob. The largest padding bucket plus
// framing is far below it.
const DefaultMaxBlobSize = 100 * 1024 * 1024

// LocalStore keeps blobs under baseDir/<space>/<record>.blob.
type LocalStore struct {
	baseDir     string
	logger      *events.Logger
	maxBlobSize int64
}

// NewLocalStore creates a local blob store.
func NewLocalStore(baseDir string, logger *events.Logger) (*LocalStore, error) {
	// Resolve absolute path
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}

	if err := os.MkdirAll(absPath, 0700); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}

	return &LocalStore{
		baseDir:     absPath,
		logger:      logger.WithField("component", "blob_store"),
		maxBlobSize: DefaultMaxBlobSize,
	}, nil
}

// SetMaxBlobSize sets the maximum blob size limit.
func (s *LocalStore) SetMaxBlobSize(size int64) {
	s.maxBlobSize = size
}

// Put saves a blob atomically.
func (s *LocalStore) Put(spaceID, recordID string, blob []byte) error {
	path, err := s.blobPath(spaceID, recordID)
	if err != nil {
		return err
	}

	if int64(len(blob)) > s.maxBlobSize {
		return &BlobTooLargeError{Size: int64(len(blob)), Max: s.maxBlobSize}
	}

	s.logger.WithFields(map[string]interface{}{
		"space_id":  spaceID,
		"record_id": recordID,
		"size":      humanize.IBytes(uint64(len(blob))),
	}).Debug("Writing blob")

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create space directory: %w", err)
	}

	// Write atomically using temp file
	tempPath := fmt.Sprintf("%s.tmp.%d", path, time.Now().UnixNano())
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	success := false
	defer func() {
		file.Close()
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(blob); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync file: %w", err)
	}
	file.Close()

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	success = true
	return nil
}

// Get retrieves a blob.
func (s *LocalStore) Get(spaceID, recordID string) ([]byte, error) {
	path, err := s.blobPath(spaceID, recordID)
	if err != nil {
		return nil, err
	}

	// Refuse symlinks planted in the store directory
	if stat, err := os.Lstat(path); err == nil && stat.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("symlinks not allowed: %s/%s", spaceID, recordID)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrBlobNotFound, spaceID, recordID)
		}
		return nil, fmt.Errorf("read blob: %w", err)
	}

	return data, nil
}

// Delete removes a blob. Deleting a missing blob is not an error.
func (s *LocalStore) Delete(spaceID, recordID string) error {
	path, err := s.blobPath(spaceID, recordID)
	if err != nil {
		return err
	}

	s.logger.WithFields(map[string]interface{}{
		"space_id":  spaceID,
		"record_id": recordID,
	}).Debug("Deleting blob")

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("delete blob: %w", err)
	}

	// Drop the space directory once it is empty
	dir := filepath.Dir(path)
	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		_ = os.Remove(dir)
	}

	return nil
}

// Exists checks if a blob exists.
func (s *LocalStore) Exists(spaceID, recordID string) (bool, error) {
	path, err := s.blobPath(spaceID, recordID)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// List returns the record IDs of a space in sorted order.
func (s *LocalStore) List(spaceID string) ([]string, error) {
	dir, err := s.spaceDir(spaceID)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read space directory: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, blobExt) {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(name, blobExt))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *LocalStore) spaceDir(spaceID string) (string, error) {
	seg, err := pathSegment(spaceID)
	if err != nil {
		return "", fmt.Errorf("space ID: %w", err)
	}
	return filepath.Join(s.baseDir, seg), nil
}

func (s *LocalStore) blobPath(spaceID, recordID string) (string, error) {
	dir, err := s.spaceDir(spaceID)
	if err != nil {
		return "", err
	}
	seg, err := pathSegment(recordID)
	if err != nil {
		return "", fmt.Errorf("record ID: %w", err)
	}
	return filepath.Join(dir, seg+blobExt), nil
}

// pathSegment maps an identifier to a single file name component. Path
// separators are escaped and dot segments are refused.
func pathSegment(id string) (string, error) {
	if id == "" || id == "." || id == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if strings.ContainsRune(id, 0) {
		return "", fmt.Errorf("%w: contains null bytes", ErrInvalidID)
	}

	seg := url.PathEscape(id)
	seg = strings.ReplaceAll(seg, `\`, "%5C")
	if len(seg) > 200 {
		return "", fmt.Errorf("%w: too long", ErrInvalidID)
	}
	return seg, nil
}
