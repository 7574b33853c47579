package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medilink/clinic-queue-backend/internal/queue/models"
	"github.com/medilink/clinic-queue-backend/internal/queue/store"
)

// capturePublisher records emitted events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []models.QueueEvent
}

func (p *capturePublisher) Publish(ev models.QueueEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *capturePublisher) all() []models.QueueEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.QueueEvent, len(p.events))
	copy(out, p.events)
	return out
}

func newTestService() (*QueueService, *store.MemoryStore, *capturePublisher) {
	st := store.NewMemoryStore()
	pub := &capturePublisher{}
	return NewQueueService(st, pub), st, pub
}

func admit(t *testing.T, svc *QueueService, station models.StationType, priority models.PriorityLevel, patientRef string) *models.QueueEntry {
	t.Helper()
	entry, err := svc.RegisterPatient(context.Background(), patientRef, station, priority)
	require.NoError(t, err)
	return entry
}

func TestCallNextSelectsPriorityOverEarlierNormal(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService()

	day := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	// B arrives 08:00 normal, A arrives 09:00 priority.
	b := &models.QueueEntry{PatientRef: "B", StationType: models.StationTriage, PriorityLevel: models.PriorityNormal, TimeIn: day}
	a := &models.QueueEntry{PatientRef: "A", StationType: models.StationTriage, PriorityLevel: models.PriorityHigh, TimeIn: day.Add(time.Hour)}
	require.NoError(t, st.CreateEntry(ctx, b))
	require.NoError(t, st.CreateEntry(ctx, a))

	entry, err := svc.CallNext(ctx, models.StationTriage, 1)
	require.NoError(t, err)
	assert.Equal(t, a.ID, entry.ID, "callNext must select A, not B, despite B arriving earlier")
	assert.Equal(t, models.StatusInProgress, entry.Status)
}

func TestCallNextEmptyQueue(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.CallNext(context.Background(), models.StationLab, 1)
	assert.ErrorIs(t, err, models.ErrEmptyQueue)
}

func TestCallNextStationBusy(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	admit(t, svc, models.StationTriage, models.PriorityNormal, "p1")
	admit(t, svc, models.StationTriage, models.PriorityNormal, "p2")

	_, err := svc.CallNext(ctx, models.StationTriage, 1)
	require.NoError(t, err)
	_, err = svc.CallNext(ctx, models.StationTriage, 1)
	assert.ErrorIs(t, err, models.ErrStationBusy)
}

func TestConcurrentCallNextSingleEntry(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService()
	admit(t, svc, models.StationTriage, models.PriorityNormal, "only")

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CallNext(ctx, models.StationTriage, 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var wins, failures int
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		failures++
		assert.True(t,
			err == models.ErrEmptyQueue || err == models.ErrStationBusy,
			"loser must observe EmptyQueue or StationBusy, got %v", err)
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, failures)

	data, err := st.QueueData(ctx, models.StationTriage)
	require.NoError(t, err)
	assert.Len(t, data.InProgress, 1, "store must end with exactly one in_progress entry")
}

func TestSkipThenRecallRestoresSameEntry(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	admit(t, svc, models.StationConsultation, models.PriorityNormal, "p1")
	called, err := svc.CallNext(ctx, models.StationConsultation, 1)
	require.NoError(t, err)

	skipped, err := svc.SkipPatient(ctx, models.StationConsultation, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, called.ID, skipped.ID)
	assert.Equal(t, models.StatusSkipped, skipped.Status)

	recalled, err := svc.RecallPatient(ctx, models.StationConsultation, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, called.ID, recalled.ID, "recall with no id must restore the entry just skipped")
	assert.Equal(t, models.StatusInProgress, recalled.Status)
}

func TestRecallBlockedWhileStationBusy(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	admit(t, svc, models.StationTriage, models.PriorityNormal, "p1")
	admit(t, svc, models.StationTriage, models.PriorityNormal, "p2")

	_, err := svc.CallNext(ctx, models.StationTriage, 1)
	require.NoError(t, err)
	_, err = svc.SkipPatient(ctx, models.StationTriage, 1, 0)
	require.NoError(t, err)
	_, err = svc.CallNext(ctx, models.StationTriage, 1)
	require.NoError(t, err)

	_, err = svc.RecallPatient(ctx, models.StationTriage, 1, 0)
	assert.ErrorIs(t, err, models.ErrStationBusy)
}

func TestForceCallBypassesPriorityOrdering(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService()

	day := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	normal := &models.QueueEntry{PatientRef: "N", StationType: models.StationTriage, PriorityLevel: models.PriorityNormal, TimeIn: day}
	prio := &models.QueueEntry{PatientRef: "P", StationType: models.StationTriage, PriorityLevel: models.PriorityHigh, TimeIn: day.Add(time.Hour)}
	require.NoError(t, st.CreateEntry(ctx, normal))
	require.NoError(t, st.CreateEntry(ctx, prio))

	entry, err := svc.ForceCall(ctx, models.StationTriage, 1, normal.ID)
	require.NoError(t, err)
	assert.Equal(t, normal.ID, entry.ID)
}

func TestCompleteRequiresCurrentPatient(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.CompletePatient(context.Background(), models.StationTriage, 1, 0)
	assert.ErrorIs(t, err, models.ErrNoCurrentPatient)
}

func TestPushToStationCreatesDownstreamEntry(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService()

	admit(t, svc, models.StationConsultation, models.PriorityHigh, "patient-7")
	_, err := svc.CallNext(ctx, models.StationConsultation, 1)
	require.NoError(t, err)

	completed, created, err := svc.PushToStation(ctx, models.StationConsultation, 1, 0, models.StationPharmacy)
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, completed.Status)
	require.NotNil(t, completed.NextStation)
	assert.Equal(t, models.StationPharmacy, *completed.NextStation)

	assert.Equal(t, models.StatusWaiting, created.Status)
	assert.Equal(t, models.StationPharmacy, created.StationType)
	assert.Equal(t, "patient-7", created.PatientRef)
	assert.Equal(t, models.PriorityHigh, created.PriorityLevel)

	// Downstream queue sees the pushed patient.
	data, err := st.QueueData(ctx, models.StationPharmacy)
	require.NoError(t, err)
	require.Len(t, data.Waiting, 1)
	assert.Equal(t, created.ID, data.Waiting[0].ID)
}

func TestPushToUnknownStationFails(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	admit(t, svc, models.StationTriage, models.PriorityNormal, "p1")
	_, err := svc.CallNext(ctx, models.StationTriage, 1)
	require.NoError(t, err)

	_, _, err = svc.PushToStation(ctx, models.StationTriage, 1, 0, models.StationType("x-ray"))
	assert.ErrorIs(t, err, models.ErrInvalidTarget)
}

func TestFullRoundTripEndsWithSingleCompletedEntry(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService()

	admit(t, svc, models.StationTriage, models.PriorityNormal, "p1")
	_, err := svc.CallNext(ctx, models.StationTriage, 1)
	require.NoError(t, err)
	_, err = svc.SkipPatient(ctx, models.StationTriage, 1, 0)
	require.NoError(t, err)
	_, err = svc.RecallPatient(ctx, models.StationTriage, 1, 0)
	require.NoError(t, err)
	_, err = svc.CompletePatient(ctx, models.StationTriage, 1, 0)
	require.NoError(t, err)

	data, err := st.QueueData(ctx, models.StationTriage)
	require.NoError(t, err)
	assert.Empty(t, data.Waiting)
	assert.Empty(t, data.Skipped)
	assert.Empty(t, data.InProgress)
	assert.Len(t, data.Completed, 1)
}

func TestEveryOperationEmitsExactlyOneEvent(t *testing.T) {
	ctx := context.Background()
	svc, _, pub := newTestService()

	admit(t, svc, models.StationTriage, models.PriorityNormal, "p1")
	_, err := svc.CallNext(ctx, models.StationTriage, 2)
	require.NoError(t, err)
	_, err = svc.SkipPatient(ctx, models.StationTriage, 2, 0)
	require.NoError(t, err)
	_, err = svc.RecallPatient(ctx, models.StationTriage, 2, 0)
	require.NoError(t, err)
	_, _, err = svc.PushToStation(ctx, models.StationTriage, 2, 0, models.StationBilling)
	require.NoError(t, err)

	events := pub.all()
	require.Len(t, events, 5)
	types := []models.EventType{}
	for _, ev := range events {
		types = append(types, ev.EventType)
		assert.NotEmpty(t, ev.EventID)
		assert.Equal(t, models.StationTriage, ev.SourceStation)
	}
	assert.Equal(t, []models.EventType{
		models.EventRegistered,
		models.EventCalled,
		models.EventSkipped,
		models.EventRecalled,
		models.EventPushed,
	}, types)

	pushed := events[4]
	assert.Equal(t, 2, pushed.SourceStationID)
	require.NotNil(t, pushed.TargetStation)
	assert.Equal(t, models.StationBilling, *pushed.TargetStation)

	// Event ids are unique across emissions.
	seen := map[string]bool{}
	for _, ev := range events {
		assert.False(t, seen[ev.EventID])
		seen[ev.EventID] = true
	}
}

func TestFailedCommandEmitsNoEvent(t *testing.T) {
	svc, _, pub := newTestService()
	_, err := svc.CallNext(context.Background(), models.StationTriage, 1)
	require.ErrorIs(t, err, models.ErrEmptyQueue)
	assert.Empty(t, pub.all())
}
