package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medilink/clinic-queue-backend/internal/queue/models"
)

func setupMockStore(t *testing.T) (sqlmock.Sqlmock, *MariaDBStore) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return mock, NewMariaDBStore(db)
}

func stationLockRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"station_number"}).AddRow(1)
}

func entryRows(id int64, patientRef string, station models.StationType, priority models.PriorityLevel, status models.Status, code string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "patient_ref", "station_type", "priority_level", "status", "queue_code",
		"time_in", "time_started", "time_skipped", "time_completed", "next_station",
	}).AddRow(id, patientRef, string(station), string(priority), string(status), code,
		time.Now(), nil, nil, nil, nil)
}

func expectSequence(mock sqlmock.Sqlmock, station models.StationType, seq int) {
	mock.ExpectExec(`INSERT INTO queue_code_seq`).
		WithArgs(string(station)).
		WillReturnResult(sqlmock.NewResult(int64(seq), 1))
	mock.ExpectQuery(`SELECT LAST_INSERT_ID\(\)`).
		WillReturnRows(sqlmock.NewRows([]string{"LAST_INSERT_ID()"}).AddRow(seq))
}

func TestCreateEntryMintsCodeFromSequenceTable(t *testing.T) {
	mock, st := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT station_number FROM stations`).
		WithArgs("triage").
		WillReturnRows(stationLockRows())
	expectSequence(mock, models.StationTriage, 12)
	mock.ExpectExec(`INSERT INTO queue_entries`).
		WithArgs("p-1", "triage", "normal", "TRI-012").
		WillReturnResult(sqlmock.NewResult(40, 1))
	mock.ExpectQuery(`SELECT id, patient_ref`).
		WithArgs(int64(40)).
		WillReturnRows(entryRows(40, "p-1", models.StationTriage, models.PriorityNormal, models.StatusWaiting, "TRI-012"))
	mock.ExpectCommit()

	entry := &models.QueueEntry{
		PatientRef:    "p-1",
		StationType:   models.StationTriage,
		PriorityLevel: models.PriorityNormal,
	}
	require.NoError(t, st.CreateEntry(context.Background(), entry))
	assert.Equal(t, "TRI-012", entry.QueueCode)
	assert.Equal(t, int64(40), entry.ID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPushLocksStationsInLexicalOrder(t *testing.T) {
	mock, st := setupMockStore(t)

	// Push pharmacy -> billing: billing sorts first, so its lock is
	// taken first even though pharmacy issued the command.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT station_number FROM stations`).
		WithArgs("billing").
		WillReturnRows(stationLockRows())
	mock.ExpectQuery(`SELECT station_number FROM stations`).
		WithArgs("pharmacy").
		WillReturnRows(stationLockRows())
	mock.ExpectExec(`UPDATE queue_entries`).
		WithArgs("billing", int64(5), "pharmacy").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT id, patient_ref`).
		WithArgs(int64(5)).
		WillReturnRows(entryRows(5, "p-9", models.StationPharmacy, models.PriorityHigh, models.StatusCompleted, "PHA-004"))
	expectSequence(mock, models.StationBilling, 2)
	mock.ExpectExec(`INSERT INTO queue_entries`).
		WithArgs("p-9", "billing", "priority", "BIL-002").
		WillReturnResult(sqlmock.NewResult(41, 1))
	mock.ExpectQuery(`SELECT id, patient_ref`).
		WithArgs(int64(41)).
		WillReturnRows(entryRows(41, "p-9", models.StationBilling, models.PriorityHigh, models.StatusWaiting, "BIL-002"))
	mock.ExpectCommit()

	completed, created, err := st.Push(context.Background(), models.StationPharmacy, 5, models.StationBilling)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, completed.Status)
	assert.Equal(t, "BIL-002", created.QueueCode)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPushSameStationLocksOnce(t *testing.T) {
	mock, st := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT station_number FROM stations`).
		WithArgs("lab").
		WillReturnRows(stationLockRows())
	mock.ExpectExec(`UPDATE queue_entries`).
		WithArgs("lab", int64(3), "lab").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT id, patient_ref`).
		WithArgs(int64(3)).
		WillReturnRows(entryRows(3, "p-2", models.StationLab, models.PriorityNormal, models.StatusCompleted, "LAB-001"))
	expectSequence(mock, models.StationLab, 7)
	mock.ExpectExec(`INSERT INTO queue_entries`).
		WithArgs("p-2", "lab", "normal", "LAB-007").
		WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectQuery(`SELECT id, patient_ref`).
		WithArgs(int64(42)).
		WillReturnRows(entryRows(42, "p-2", models.StationLab, models.PriorityNormal, models.StatusWaiting, "LAB-007"))
	mock.ExpectCommit()

	_, created, err := st.Push(context.Background(), models.StationLab, 3, models.StationLab)
	require.NoError(t, err)
	assert.Equal(t, "LAB-007", created.QueueCode)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimBusyStationRollsBack(t *testing.T) {
	mock, st := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT station_number FROM stations`).
		WithArgs("triage").
		WillReturnRows(stationLockRows())
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM queue_entries`).
		WithArgs("triage", int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(1))
	mock.ExpectRollback()

	_, err := st.Claim(context.Background(), models.StationTriage, 9, models.StatusWaiting)
	assert.ErrorIs(t, err, models.ErrStationBusy)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockStationUnknownTarget(t *testing.T) {
	mock, st := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT station_number FROM stations`).
		WithArgs("ward").
		WillReturnRows(sqlmock.NewRows([]string{"station_number"}))
	mock.ExpectRollback()

	tx, err := st.DB.Begin()
	require.NoError(t, err)

	err = lockStation(context.Background(), tx, models.StationType("ward"))
	assert.ErrorIs(t, err, models.ErrInvalidTarget)
	require.NoError(t, tx.Rollback())
}
