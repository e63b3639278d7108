package storage

import (
	"errors"
	"fmt"
)

// BlobStore keeps the sealed blobs of records, one per record per space.
// Blobs are opaque ciphertext; the store never sees key material.
type BlobStore interface {
	// Put saves the blob of a record, replacing any previous one.
	Put(spaceID, recordID string, blob []byte) error

	// Get retrieves the blob of a record.
	Get(spaceID, recordID string) ([]byte, error)

	// Delete removes the blob of a record.
	Delete(spaceID, recordID string) error

	// Exists checks if a record has a blob.
	Exists(spaceID, recordID string) (bool, error)

	// List returns the record IDs of a space in sorted order.
	List(spaceID string) ([]string, error)
}

// Errors
var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrInvalidID    = errors.New("invalid identifier")
)

// BlobTooLargeError is returned when a blob exceeds the store limit.
type BlobTooLargeError struct {
	Size int64
	Max  int64
}

func (e *BlobTooLargeError) Error() string {
	return fmt.Sprintf("blob too large: %d bytes (max: %d)", e.Size, e.Max)
}
