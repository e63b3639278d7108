package transport

import (
	"errors"

	"github.com/dustin/go-humanize"

	"github.com/TheMichaelB/spacesync/internal/config"
	"github.com/TheMichaelB/spacesync/internal/crypto"
	"github.com/TheMichaelB/spacesync/internal/envelope"
	"github.com/TheMichaelB/spacesync/internal/events"
	"github.com/TheMichaelB/spacesync/internal/models"
)

// Pipeline phases reported in SyncError.
const (
	PhasePush = "push"
	PhasePull = "pull"
)

// Pipeline runs the transport functions with configured padding and
// reports failures as *models.SyncError.
type Pipeline struct {
	buckets []int
	logger  *events.Logger
}

// NewPipeline creates a pipeline from sync configuration. A nil
// PaddingBuckets selects envelope.DefaultBuckets; an empty non-nil slice
// disables padding.
func NewPipeline(cfg config.SyncConfig, logger *events.Logger) *Pipeline {
	buckets := cfg.PaddingBuckets
	if buckets == nil {
		buckets = envelope.DefaultBuckets
	}
	return &Pipeline{
		buckets: append([]int(nil), buckets...),
		logger:  logger.WithField("component", "transport"),
	}
}

// Buckets returns the padding buckets in use.
func (p *Pipeline) Buckets() []int {
	return append([]int(nil), p.buckets...)
}

// Push encrypts a record for upload.
func (p *Pipeline) Push(env *models.BlobEnvelope, recordID string, keys KeySource) (blob, wrappedDEK []byte, err error) {
	blob, wrappedDEK, err = EncryptOutbound(env, recordID, keys, p.buckets)
	if err != nil {
		return nil, nil, p.fail(PhasePush, keys.SpaceID(), recordID, err)
	}

	p.logger.WithFields(map[string]interface{}{
		"space_id":  keys.SpaceID(),
		"record_id": recordID,
		"epoch":     keys.CurrentEpoch(),
		"size":      humanize.IBytes(uint64(len(blob))),
	}).Debug("Encrypted record")

	return blob, wrappedDEK, nil
}

// Pull decrypts a downloaded record.
func (p *Pipeline) Pull(blob, wrappedDEK []byte, recordID string, keys KeySource) (*models.BlobEnvelope, error) {
	env, err := DecryptInbound(blob, wrappedDEK, recordID, keys, p.buckets)
	if err != nil {
		return nil, p.fail(PhasePull, keys.SpaceID(), recordID, err)
	}

	p.logger.WithFields(map[string]interface{}{
		"space_id":   keys.SpaceID(),
		"record_id":  recordID,
		"collection": env.Collection,
	}).Debug("Decrypted record")

	return env, nil
}

func (p *Pipeline) fail(phase, spaceID, recordID string, err error) error {
	syncErr := &models.SyncError{
		Code:     errorCode(err),
		Phase:    phase,
		SpaceID:  spaceID,
		RecordID: recordID,
		Err:      err,
	}
	p.logger.WithError(syncErr).Debug("Transport failure")
	return syncErr
}

func errorCode(err error) string {
	var (
		backward *models.BackwardDerivationError
		ahead    *models.EpochTooFarAheadError
	)

	switch {
	case errors.Is(err, crypto.ErrIntegrity):
		return models.ErrCodeIntegrity
	case errors.Is(err, envelope.ErrPadding):
		return models.ErrCodePadding
	case errors.Is(err, envelope.ErrEncode):
		return models.ErrCodeEncode
	case errors.Is(err, envelope.ErrDecode):
		return models.ErrCodeDecode
	case errors.As(err, &backward), errors.As(err, &ahead),
		errors.Is(err, crypto.ErrInvalidKeyLength),
		errors.Is(err, crypto.ErrInvalidWrappedDEKLength),
		errors.Is(err, crypto.ErrMissingWrappedDEK):
		return models.ErrCodeKey
	case errors.Is(err, crypto.ErrDataTooShort), errors.Is(err, crypto.ErrExpectedV4):
		return models.ErrCodeDecryption
	}
	return models.ErrCodeEncryption
}
