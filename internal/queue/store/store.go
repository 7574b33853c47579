package store

import (
	"context"

	"github.com/medilink/clinic-queue-backend/internal/queue/models"
)

// Store is the durable record of queue entries. It is the only shared
// mutable resource in the orchestrator: reads are stale-tolerant, but
// every status transition is a status-guarded conditional write, so two
// operators racing on the same station cannot both succeed.
type Store interface {
	// CreateEntry inserts a new waiting entry, assigning its id and
	// per-station-per-day queue code. TimeIn defaults to now.
	CreateEntry(ctx context.Context, e *models.QueueEntry) error

	// Entry fetches one entry by id. ErrNotFound if missing.
	Entry(ctx context.Context, id int64) (*models.QueueEntry, error)

	// QueueData returns the authoritative view for one station: current
	// patient, waiting (priority tier first, then time_in), skipped
	// (earliest skipped first) and today's completed entries.
	QueueData(ctx context.Context, station models.StationType) (*models.QueueData, error)

	// NextWaiting selects the waiting entry with the highest priority
	// tier and earliest time_in. ErrEmptyQueue if none.
	NextWaiting(ctx context.Context, station models.StationType) (*models.QueueEntry, error)

	// FirstWaiting selects the earliest waiting entry by time_in alone,
	// ignoring priority tiers. ErrEmptyQueue if none.
	FirstWaiting(ctx context.Context, station models.StationType) (*models.QueueEntry, error)

	// EarliestSkipped selects the entry skipped longest ago.
	// ErrNotSkipped if the station has no skipped entries.
	EarliestSkipped(ctx context.Context, station models.StationType) (*models.QueueEntry, error)

	// CurrentInProgress returns the single in-progress entry at the
	// station, or ErrNoCurrentPatient.
	CurrentInProgress(ctx context.Context, station models.StationType) (*models.QueueEntry, error)

	// Claim transitions entry id from status `from` to in_progress,
	// stamping time_started on first start. It fails with
	// ErrStationBusy if another entry at the station is in progress,
	// ErrNotSkipped if from is skipped and the entry is not, and
	// ErrNotFound if the entry is missing, at another station, or was
	// claimed by a concurrent command. The busy check and the
	// transition are one atomic operation.
	Claim(ctx context.Context, station models.StationType, id int64, from models.Status) (*models.QueueEntry, error)

	// Skip transitions the in-progress entry id to skipped, stamping
	// time_skipped. ErrNoCurrentPatient if it is not in progress.
	Skip(ctx context.Context, station models.StationType, id int64) (*models.QueueEntry, error)

	// Complete transitions the in-progress entry id to completed,
	// stamping time_completed. ErrNoCurrentPatient if it is not in
	// progress.
	Complete(ctx context.Context, station models.StationType, id int64) (*models.QueueEntry, error)

	// Push completes entry id, records target as its next station and
	// creates a fresh waiting entry at target with the same patient ref
	// and priority level. Both effects happen or neither does.
	Push(ctx context.Context, station models.StationType, id int64, target models.StationType) (completed, created *models.QueueEntry, err error)
}
