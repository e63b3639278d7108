package models

import (
	"errors"
	"fmt"
)

// Error codes for structured error handling.
const (
	ErrCodeEncode     = "ENCODE_ERROR"
	ErrCodeDecode     = "DECODE_ERROR"
	ErrCodePadding    = "PADDING_ERROR"
	ErrCodeKey        = "KEY_ERROR"
	ErrCodeEncryption = "ENCRYPTION_ERROR"
	ErrCodeDecryption = "DECRYPTION_ERROR"
	ErrCodeIntegrity  = "INTEGRITY_ERROR"
	ErrCodeRotation   = "ROTATION_ERROR"
	ErrCodeState      = "STATE_ERROR"
	ErrCodeConfig     = "CONFIG_ERROR"
)

// Sentinel errors
var (
	ErrSpaceNotFound   = errors.New("space not found")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrRotationRunning = errors.New("rotation already in progress")
)

// SyncError provides detailed pipeline failure information.
type SyncError struct {
	Code     string
	Phase    string
	SpaceID  string
	RecordID string
	Err      error
}

func (e *SyncError) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("sync %s [%s]: space %s: record %s: %v", e.Phase, e.Code, e.SpaceID, e.RecordID, e.Err)
	}
	return fmt.Sprintf("sync %s [%s]: space %s: %v", e.Phase, e.Code, e.SpaceID, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// BackwardDerivationError is returned when a key is requested for an epoch
// before the one the holder started from. The ratchet only runs forward.
type BackwardDerivationError struct {
	Target uint32
	Base   uint32
}

func (e *BackwardDerivationError) Error() string {
	return fmt.Sprintf("cannot derive backward: epoch %d < base epoch %d", e.Target, e.Base)
}

// EpochTooFarAheadError caps how many ratchet steps a single lookup may
// take.
type EpochTooFarAheadError struct {
	Target   uint32
	Base     uint32
	Distance uint32
	Max      uint32
}

func (e *EpochTooFarAheadError) Error() string {
	return fmt.Sprintf("epoch %d too far ahead of base %d (distance: %d, max: %d)",
		e.Target, e.Base, e.Distance, e.Max)
}

// InvalidEpochAdvanceError is returned when a rotation does not move the
// epoch forward.
type InvalidEpochAdvanceError struct {
	New     uint32
	Current uint32
}

func (e *InvalidEpochAdvanceError) Error() string {
	return fmt.Sprintf("invalid epoch: new_epoch=%d must be > current_epoch=%d", e.New, e.Current)
}

// NoKEKError reports a wrapped DEK whose epoch has no available KEK.
type NoKEKError struct {
	Epoch    uint32
	RecordID string
}

func (e *NoKEKError) Error() string {
	return fmt.Sprintf("no KEK available for epoch %d (record: %s)", e.Epoch, e.RecordID)
}

// DangerousPathSegmentError rejects diff paths that would touch object
// prototypes in JavaScript consumers of the same document.
type DangerousPathSegmentError struct {
	Segment string
	Path    string
}

func (e *DangerousPathSegmentError) Error() string {
	return fmt.Sprintf("dangerous path segment %q in %q", e.Segment, e.Path)
}

// MembershipEntryError reports a structurally invalid membership entry.
type MembershipEntryError struct {
	Reason string
	Err    error
}

func (e *MembershipEntryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid membership entry: %s: %v", e.Reason, e.Err)
	}
	return "invalid membership entry: " + e.Reason
}

func (e *MembershipEntryError) Unwrap() error {
	return e.Err
}
