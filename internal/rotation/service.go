package rotation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/TheMichaelB/spacesync/internal/events"
	"github.com/TheMichaelB/spacesync/internal/models"
	"github.com/TheMichaelB/spacesync/internal/state"
)

// Report summarizes one rotation run.
type Report struct {
	RunID     string
	SpaceID   string
	FromEpoch uint32
	ToEpoch   uint32
	Rewrapped int
	Skipped   int
	StartTime time.Time
	Duration  time.Duration
}

// Service rotates the stored wrapped-DEK index of a space.
type Service struct {
	store  state.Store
	logger *events.Logger
	now    func() time.Time
}

// NewService creates a rotation service backed by store.
func NewService(store state.Store, logger *events.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.WithField("service", "rotation"),
		now:    time.Now,
	}
}

// RotateSpace re-wraps every DEK of spaceID under newKey and records
// newEpoch as the space's epoch. currentKey must be the key of the stored
// epoch. The stored state is only replaced once every DEK was re-wrapped.
func (s *Service) RotateSpace(ctx context.Context, spaceID string, currentKey, newKey []byte, newEpoch uint32) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		SpaceID:   spaceID,
		ToEpoch:   newEpoch,
		StartTime: s.now(),
	}

	logger := s.logger
	if id := events.GetRequestID(ctx); id != "" {
		logger = logger.WithField("request_id", id)
	}
	logger = logger.WithFields(map[string]interface{}{
		"run_id":   report.RunID,
		"space_id": spaceID,
	})

	unlock, err := s.store.Lock(spaceID)
	if errors.Is(err, state.ErrStateLocked) {
		return nil, s.fail(spaceID, models.ErrRotationRunning)
	}
	if err != nil {
		return nil, s.fail(spaceID, fmt.Errorf("lock space: %w", err))
	}
	defer unlock()

	current, err := s.store.Load(spaceID)
	if errors.Is(err, state.ErrStateNotFound) {
		return nil, s.fail(spaceID, models.ErrSpaceNotFound)
	}
	if err != nil {
		return nil, s.fail(spaceID, fmt.Errorf("load state: %w", err))
	}
	report.FromEpoch = current.Epoch

	logger.WithFields(map[string]interface{}{
		"from_epoch": current.Epoch,
		"to_epoch":   newEpoch,
		"records":    humanize.Comma(int64(current.RecordCount())),
	}).Info("Starting rotation")

	deks := make([]WrappedDEK, 0, current.RecordCount())
	for _, id := range current.RecordIDs() {
		wrapped, _ := current.DEK(id)
		deks = append(deks, WrappedDEK{RecordID: id, Wrapped: wrapped})
	}

	rewrapped, err := RewrapDEKs(deks, currentKey, current.Epoch, newKey, newEpoch, spaceID)
	if err != nil {
		return nil, s.fail(spaceID, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, s.fail(spaceID, err)
	}

	next := current.Clone()
	for _, d := range rewrapped {
		next.PutDEK(d.RecordID, d.Wrapped)
	}
	next.AdvanceEpoch(newEpoch)
	next.LastError = ""

	if err := s.store.Save(spaceID, next); err != nil {
		return nil, s.fail(spaceID, fmt.Errorf("save state: %w", err))
	}

	report.Rewrapped = len(rewrapped)
	report.Skipped = len(deks) - len(rewrapped)
	report.Duration = s.now().Sub(report.StartTime)

	logger.WithFields(map[string]interface{}{
		"rewrapped": humanize.Comma(int64(report.Rewrapped)),
		"skipped":   report.Skipped,
		"duration":  report.Duration.String(),
	}).Info("Rotation completed")

	return report, nil
}

func (s *Service) fail(spaceID string, err error) error {
	s.logger.WithError(err).WithField("space_id", spaceID).Error("Rotation failed")
	return &models.SyncError{
		Code:    models.ErrCodeRotation,
		Phase:   "rotate",
		SpaceID: spaceID,
		Err:     err,
	}
}
