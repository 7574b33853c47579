package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/medilink/clinic-queue-backend/internal/queue/models"
	"github.com/medilink/clinic-queue-backend/internal/queue/store"
)

// EventPublisher carries emitted queue events to the broadcast layer.
type EventPublisher interface {
	Publish(ev models.QueueEvent) error
}

// QueueService is the station queue state machine. Every command is
// scoped to one station, validated against the entry's current status
// and, on success, emits exactly one event. Atomicity lives in the
// store's conditional transitions; the service never holds locks.
type QueueService struct {
	Store  store.Store
	Events EventPublisher
}

func NewQueueService(st store.Store, events EventPublisher) *QueueService {
	return &QueueService{Store: st, Events: events}
}

// callNextAttempts bounds the retry loop when a waiting candidate is
// taken by a concurrent command between selection and claim.
const callNextAttempts = 3

// RegisterPatient admits a patient to a station's waiting list. The
// priority level is fixed here for the entry's lifetime.
func (s *QueueService) RegisterPatient(ctx context.Context, patientRef string, station models.StationType, priority models.PriorityLevel) (*models.QueueEntry, error) {
	if !models.ValidStationType(station) {
		return nil, models.ErrInvalidTarget
	}
	if priority == "" {
		priority = models.PriorityNormal
	}
	if !models.ValidPriorityLevel(priority) {
		priority = models.PriorityNormal
	}

	entry := &models.QueueEntry{
		PatientRef:    patientRef,
		StationType:   station,
		PriorityLevel: priority,
	}
	if err := s.Store.CreateEntry(ctx, entry); err != nil {
		return nil, err
	}

	s.emit(models.EventRegistered, station, 0, nil, entry)
	return entry, nil
}

// CallNext selects the waiting entry with the highest priority tier and
// earliest time_in and starts serving it. The entry passes through
// called straight into in_progress; the busy check and the transition
// are one atomic store operation.
func (s *QueueService) CallNext(ctx context.Context, station models.StationType, stationID int) (*models.QueueEntry, error) {
	for attempt := 0; attempt < callNextAttempts; attempt++ {
		candidate, err := s.Store.NextWaiting(ctx, station)
		if err != nil {
			return nil, err
		}
		entry, err := s.Store.Claim(ctx, station, candidate.ID, models.StatusWaiting)
		if errors.Is(err, models.ErrNotFound) {
			// Candidate was taken concurrently; pick a fresh one.
			continue
		}
		if err != nil {
			return nil, err
		}
		s.emit(models.EventCalled, station, stationID, nil, entry)
		return entry, nil
	}
	return nil, models.ErrStationBusy
}

// SkipPatient moves the station's current patient to skipped. With
// entryID zero the current in-progress entry is used.
func (s *QueueService) SkipPatient(ctx context.Context, station models.StationType, stationID int, entryID int64) (*models.QueueEntry, error) {
	id, err := s.resolveCurrent(ctx, station, entryID)
	if err != nil {
		return nil, err
	}
	entry, err := s.Store.Skip(ctx, station, id)
	if err != nil {
		return nil, err
	}
	s.emit(models.EventSkipped, station, stationID, nil, entry)
	return entry, nil
}

// RecallPatient restores a skipped entry to in_progress. With entryID
// zero the entry skipped longest ago is recalled first.
func (s *QueueService) RecallPatient(ctx context.Context, station models.StationType, stationID int, entryID int64) (*models.QueueEntry, error) {
	if entryID == 0 {
		candidate, err := s.Store.EarliestSkipped(ctx, station)
		if err != nil {
			return nil, err
		}
		entryID = candidate.ID
	}
	entry, err := s.Store.Claim(ctx, station, entryID, models.StatusSkipped)
	if err != nil {
		return nil, err
	}
	s.emit(models.EventRecalled, station, stationID, nil, entry)
	return entry, nil
}

// ForceCall bypasses priority ordering and calls a specific waiting
// entry, or the earliest-arrived one when entryID is zero. Same busy
// check as CallNext.
func (s *QueueService) ForceCall(ctx context.Context, station models.StationType, stationID int, entryID int64) (*models.QueueEntry, error) {
	if entryID == 0 {
		candidate, err := s.Store.FirstWaiting(ctx, station)
		if err != nil {
			return nil, err
		}
		entryID = candidate.ID
	}
	entry, err := s.Store.Claim(ctx, station, entryID, models.StatusWaiting)
	if err != nil {
		return nil, err
	}
	s.emit(models.EventForceCall, station, stationID, nil, entry)
	return entry, nil
}

// CompletePatient finishes the station's current patient.
func (s *QueueService) CompletePatient(ctx context.Context, station models.StationType, stationID int, entryID int64) (*models.QueueEntry, error) {
	id, err := s.resolveCurrent(ctx, station, entryID)
	if err != nil {
		return nil, err
	}
	entry, err := s.Store.Complete(ctx, station, id)
	if err != nil {
		return nil, err
	}
	s.emit(models.EventCompleted, station, stationID, nil, entry)
	return entry, nil
}

// PushToStation completes the current patient here and creates a fresh
// waiting entry for them at the target station. Both effects commit
// together or not at all.
func (s *QueueService) PushToStation(ctx context.Context, station models.StationType, stationID int, entryID int64, target models.StationType) (*models.QueueEntry, *models.QueueEntry, error) {
	if !models.ValidStationType(target) {
		return nil, nil, models.ErrInvalidTarget
	}
	id, err := s.resolveCurrent(ctx, station, entryID)
	if err != nil {
		return nil, nil, err
	}
	completed, created, err := s.Store.Push(ctx, station, id, target)
	if err != nil {
		return nil, nil, err
	}
	s.emit(models.EventPushed, station, stationID, &target, completed)
	return completed, created, nil
}

// QueueData returns the authoritative station view, replaced wholesale
// by clients on every refresh.
func (s *QueueService) QueueData(ctx context.Context, station models.StationType) (*models.QueueData, error) {
	if !models.ValidStationType(station) {
		return nil, models.ErrInvalidTarget
	}
	return s.Store.QueueData(ctx, station)
}

func (s *QueueService) resolveCurrent(ctx context.Context, station models.StationType, entryID int64) (int64, error) {
	if entryID != 0 {
		return entryID, nil
	}
	current, err := s.Store.CurrentInProgress(ctx, station)
	if err != nil {
		return 0, err
	}
	return current.ID, nil
}

// emit publishes the single event of a successful operation. Delivery
// failures are logged, not surfaced: subscribers self-heal on their next
// poll cycle.
func (s *QueueService) emit(eventType models.EventType, station models.StationType, stationID int, target *models.StationType, entry *models.QueueEntry) {
	ev := models.QueueEvent{
		EventID:         uuid.NewString(),
		EventType:       eventType,
		SourceStation:   station,
		SourceStationID: stationID,
		TargetStation:   target,
		Timestamp:       time.Now(),
		Payload: map[string]any{
			"entry_id":   entry.ID,
			"queue_code": entry.QueueCode,
		},
	}
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ev); err != nil {
		log.Warn().Err(err).
			Str("event_type", string(eventType)).
			Str("station", string(station)).
			Msg("event publish failed, poll fallback will reconcile")
	}
}
