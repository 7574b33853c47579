package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/medilink/clinic-queue-backend/internal/queue/models"
)

// MariaDBStore is the production Store. Transitions run inside a
// transaction that first locks the station's catalog row, so commands
// against one station serialize without any global lock.
type MariaDBStore struct {
	DB *sql.DB
}

func NewMariaDBStore(db *sql.DB) *MariaDBStore {
	return &MariaDBStore{DB: db}
}

const entryColumns = `id, patient_ref, station_type, priority_level, status, queue_code,
	time_in, time_started, time_skipped, time_completed, next_station`

func scanEntry(row interface{ Scan(...interface{}) error }) (*models.QueueEntry, error) {
	var (
		e             models.QueueEntry
		started, skip sql.NullTime
		completed     sql.NullTime
		next          sql.NullString
	)
	err := row.Scan(&e.ID, &e.PatientRef, &e.StationType, &e.PriorityLevel, &e.Status,
		&e.QueueCode, &e.TimeIn, &started, &skip, &completed, &next)
	if err != nil {
		return nil, err
	}
	if started.Valid {
		e.TimeStarted = &started.Time
	}
	if skip.Valid {
		e.TimeSkipped = &skip.Time
	}
	if completed.Valid {
		e.TimeCompleted = &completed.Time
	}
	if next.Valid {
		t := models.StationType(next.String)
		e.NextStation = &t
	}
	return &e, nil
}

func transient(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", models.ErrTransientIO, op, err)
}

func (s *MariaDBStore) CreateEntry(ctx context.Context, e *models.QueueEntry) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return transient("begin", err)
	}
	defer tx.Rollback()

	if err := lockStation(ctx, tx, e.StationType); err != nil {
		return err
	}
	created, err := insertEntry(ctx, tx, e.PatientRef, e.StationType, e.PriorityLevel)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return transient("commit", err)
	}
	*e = *created
	return nil
}

// insertEntry mints the next queue code from the per-station-per-day
// sequence table and inserts the waiting entry. Callers must hold the
// station lock. The sequence row outlives its entries, so a deleted
// entry can never cause a code to be reissued within the day.
func insertEntry(ctx context.Context, tx *sql.Tx, patientRef string, station models.StationType, priority models.PriorityLevel) (*models.QueueEntry, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO queue_code_seq (station_type, seq_date, seq)
		VALUES (?, CURDATE(), LAST_INSERT_ID(1))
		ON DUPLICATE KEY UPDATE seq = LAST_INSERT_ID(seq + 1)
	`, station)
	if err != nil {
		return nil, transient("queue code sequence", err)
	}
	var seq int
	if err := tx.QueryRowContext(ctx, `SELECT LAST_INSERT_ID()`).Scan(&seq); err != nil {
		return nil, transient("queue code sequence read", err)
	}
	code := fmt.Sprintf("%s-%03d", station.Prefix(), seq)

	res, err := tx.ExecContext(ctx, `
		INSERT INTO queue_entries
			(patient_ref, station_type, priority_level, status, queue_code, time_in)
		VALUES (?, ?, ?, 'waiting', ?, NOW())
	`, patientRef, station, priority, code)
	if err != nil {
		return nil, transient("insert entry", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, transient("last insert id", err)
	}
	row := tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM queue_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err != nil {
		return nil, transient("read back entry", err)
	}
	return e, nil
}

func (s *MariaDBStore) Entry(ctx context.Context, id int64) (*models.QueueEntry, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM queue_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, transient("select entry", err)
	}
	return e, nil
}

func (s *MariaDBStore) QueueData(ctx context.Context, station models.StationType) (*models.QueueData, error) {
	data := &models.QueueData{
		Waiting:    []models.QueueEntry{},
		Skipped:    []models.QueueEntry{},
		Completed:  []models.QueueEntry{},
		InProgress: []models.QueueEntry{},
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM queue_entries
		WHERE station_type = ?
		  AND (status IN ('waiting', 'called', 'in_progress', 'skipped')
		       OR (status = 'completed' AND DATE(time_completed) = CURDATE()))
		ORDER BY
			FIELD(priority_level, 'priority', 'normal'),
			time_in ASC, id ASC
	`, station)
	if err != nil {
		return nil, transient("queue data query", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, transient("queue data scan", err)
		}
		switch e.Status {
		case models.StatusWaiting, models.StatusCalled:
			data.Waiting = append(data.Waiting, *e)
		case models.StatusInProgress:
			data.InProgress = append(data.InProgress, *e)
		case models.StatusSkipped:
			data.Skipped = append(data.Skipped, *e)
		case models.StatusCompleted:
			data.Completed = append(data.Completed, *e)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, transient("queue data rows", err)
	}

	sortSkipped(data.Skipped)
	if len(data.InProgress) > 0 {
		cp := data.InProgress[0]
		data.CurrentPatient = &cp
	}
	return data, nil
}

func (s *MariaDBStore) NextWaiting(ctx context.Context, station models.StationType) (*models.QueueEntry, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM queue_entries
		WHERE station_type = ? AND status = 'waiting'
		ORDER BY FIELD(priority_level, 'priority', 'normal'), time_in ASC, id ASC
		LIMIT 1
	`, station)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrEmptyQueue
	}
	if err != nil {
		return nil, transient("next waiting", err)
	}
	return e, nil
}

func (s *MariaDBStore) FirstWaiting(ctx context.Context, station models.StationType) (*models.QueueEntry, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM queue_entries
		WHERE station_type = ? AND status = 'waiting'
		ORDER BY time_in ASC, id ASC
		LIMIT 1
	`, station)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrEmptyQueue
	}
	if err != nil {
		return nil, transient("first waiting", err)
	}
	return e, nil
}

func (s *MariaDBStore) EarliestSkipped(ctx context.Context, station models.StationType) (*models.QueueEntry, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM queue_entries
		WHERE station_type = ? AND status = 'skipped'
		ORDER BY time_skipped ASC, id ASC
		LIMIT 1
	`, station)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotSkipped
	}
	if err != nil {
		return nil, transient("earliest skipped", err)
	}
	return e, nil
}

func (s *MariaDBStore) CurrentInProgress(ctx context.Context, station models.StationType) (*models.QueueEntry, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM queue_entries
		WHERE station_type = ? AND status = 'in_progress'
		LIMIT 1
	`, station)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrNoCurrentPatient
	}
	if err != nil {
		return nil, transient("current in progress", err)
	}
	return e, nil
}

func (s *MariaDBStore) Claim(ctx context.Context, station models.StationType, id int64, from models.Status) (*models.QueueEntry, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, transient("begin", err)
	}
	defer tx.Rollback()

	if err := lockStation(ctx, tx, station); err != nil {
		return nil, err
	}

	var busy int64
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM queue_entries
		WHERE station_type = ? AND status = 'in_progress' AND id <> ?
	`, station, id).Scan(&busy)
	if err != nil {
		return nil, transient("busy check", err)
	}
	if busy > 0 {
		return nil, models.ErrStationBusy
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE queue_entries
		SET status = 'in_progress', time_started = IFNULL(time_started, NOW())
		WHERE id = ? AND station_type = ? AND status = ?
	`, id, station, from)
	if err != nil {
		return nil, transient("claim update", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, transient("claim rows affected", err)
	}
	if affected == 0 {
		// Guard failed: missing entry, wrong station, or a concurrent
		// command got there first.
		if from == models.StatusSkipped {
			return nil, models.ErrNotSkipped
		}
		return nil, models.ErrNotFound
	}

	row := tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM queue_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err != nil {
		return nil, transient("read back claim", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, transient("commit", err)
	}
	return e, nil
}

func (s *MariaDBStore) Skip(ctx context.Context, station models.StationType, id int64) (*models.QueueEntry, error) {
	return s.guardedTransition(ctx, station, id, `
		UPDATE queue_entries
		SET status = 'skipped', time_skipped = NOW()
		WHERE id = ? AND station_type = ? AND status = 'in_progress'
	`)
}

func (s *MariaDBStore) Complete(ctx context.Context, station models.StationType, id int64) (*models.QueueEntry, error) {
	return s.guardedTransition(ctx, station, id, `
		UPDATE queue_entries
		SET status = 'completed', time_completed = NOW()
		WHERE id = ? AND station_type = ? AND status = 'in_progress'
	`)
}

func (s *MariaDBStore) Push(ctx context.Context, station models.StationType, id int64, target models.StationType) (*models.QueueEntry, *models.QueueEntry, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, transient("begin", err)
	}
	defer tx.Rollback()

	// Both station rows are locked up front in lexical order, so two
	// opposite-direction pushes cannot deadlock on each other.
	first, second := station, target
	if second < first {
		first, second = second, first
	}
	if err := lockStation(ctx, tx, first); err != nil {
		return nil, nil, err
	}
	if second != first {
		if err := lockStation(ctx, tx, second); err != nil {
			return nil, nil, err
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE queue_entries
		SET status = 'completed', time_completed = NOW(), next_station = ?
		WHERE id = ? AND station_type = ? AND status = 'in_progress'
	`, target, id, station)
	if err != nil {
		return nil, nil, transient("push complete", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, nil, transient("push rows affected", err)
	}
	if affected == 0 {
		return nil, nil, models.ErrNoCurrentPatient
	}

	row := tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM queue_entries WHERE id = ?`, id)
	completed, err := scanEntry(row)
	if err != nil {
		return nil, nil, transient("read back push", err)
	}

	created, err := insertEntry(ctx, tx, completed.PatientRef, target, completed.PriorityLevel)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, transient("commit", err)
	}
	return completed, created, nil
}

// guardedTransition runs a status-guarded update for in_progress exits.
func (s *MariaDBStore) guardedTransition(ctx context.Context, station models.StationType, id int64, query string) (*models.QueueEntry, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, transient("begin", err)
	}
	defer tx.Rollback()

	if err := lockStation(ctx, tx, station); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, query, id, station)
	if err != nil {
		return nil, transient("transition update", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, transient("transition rows affected", err)
	}
	if affected == 0 {
		return nil, models.ErrNoCurrentPatient
	}

	row := tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM queue_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err != nil {
		return nil, transient("read back transition", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, transient("commit", err)
	}
	return e, nil
}

// lockStation serializes transitions per station by locking its catalog
// row. The schema seeds one stations row per station type, so the lock
// always has a row to land on.
func lockStation(ctx context.Context, tx *sql.Tx, station models.StationType) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT station_number FROM stations WHERE station_type = ? FOR UPDATE
	`, station)
	if err != nil {
		return transient("lock station", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return transient("lock station rows", err)
		}
		return models.ErrInvalidTarget
	}
	return rows.Err()
}
