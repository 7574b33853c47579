package clients

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medilink/clinic-queue-backend/internal/queue/models"
	"github.com/medilink/clinic-queue-backend/internal/queue/services"
)

// fakeAPI scripts responses per call and records the dispatch order.
type fakeAPI struct {
	mu        sync.Mutex
	calls     []string
	data      *models.QueueData
	dataErr   error
	cmdErr    error
	cmdDelay  time.Duration
	lastEntry int64
}

func (f *fakeAPI) record(name string, entryID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	f.lastEntry = entryID
}

func (f *fakeAPI) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeAPI) command(name string, entryID int64) (*models.QueueEntry, error) {
	if f.cmdDelay > 0 {
		time.Sleep(f.cmdDelay)
	}
	f.record(name, entryID)
	if f.cmdErr != nil {
		return nil, f.cmdErr
	}
	return &models.QueueEntry{ID: entryID}, nil
}

func (f *fakeAPI) QueueData(_ context.Context, _ models.StationType) (*models.QueueData, error) {
	f.record("queue_data", 0)
	if f.dataErr != nil {
		return nil, f.dataErr
	}
	return f.data, nil
}

func (f *fakeAPI) CallNext(_ context.Context, _ models.StationType, _ int) (*models.QueueEntry, error) {
	return f.command("call_next", 0)
}

func (f *fakeAPI) SkipPatient(_ context.Context, _ models.StationType, _ int, entryID int64) (*models.QueueEntry, error) {
	return f.command("skip", entryID)
}

func (f *fakeAPI) RecallPatient(_ context.Context, _ models.StationType, _ int, entryID int64) (*models.QueueEntry, error) {
	return f.command("recall", entryID)
}

func (f *fakeAPI) ForceCall(_ context.Context, _ models.StationType, _ int, entryID int64) (*models.QueueEntry, error) {
	return f.command("force_call", entryID)
}

func (f *fakeAPI) CompletePatient(_ context.Context, _ models.StationType, _ int, entryID int64) (*models.QueueEntry, error) {
	return f.command("complete", entryID)
}

func (f *fakeAPI) PushToStation(_ context.Context, _ models.StationType, _ int, entryID int64, _ models.StationType) (*models.QueueEntry, *models.QueueEntry, error) {
	entry, err := f.command("push", entryID)
	return entry, entry, err
}

func TestDoDispatchesEveryCommandType(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{data: &models.QueueData{}}
	sc := NewStationClient(api, models.StationTriage, 1)

	cases := []struct {
		cmd  Command
		want string
	}{
		{Command{Type: CmdCallNext}, "call_next"},
		{Command{Type: CmdSkip, EntryID: 4}, "skip"},
		{Command{Type: CmdRecall, EntryID: 4}, "recall"},
		{Command{Type: CmdForceCall, EntryID: 4}, "force_call"},
		{Command{Type: CmdComplete, EntryID: 4}, "complete"},
		{Command{Type: CmdPush, EntryID: 4, Target: models.StationLab}, "push"},
	}
	for _, tc := range cases {
		require.NoError(t, sc.Do(ctx, tc.cmd))
		assert.Contains(t, api.recorded(), tc.want)
	}
}

func TestDoRefreshesViewAfterSuccess(t *testing.T) {
	want := &models.QueueData{
		Waiting: []models.QueueEntry{{ID: 9, QueueCode: "TRI-009"}},
	}
	api := &fakeAPI{data: want}
	sc := NewStationClient(api, models.StationTriage, 1)

	require.Nil(t, sc.View())
	require.NoError(t, sc.Do(context.Background(), Command{Type: CmdCallNext}))

	got := sc.View()
	require.NotNil(t, got)
	assert.Equal(t, want.Waiting, got.Waiting)
}

func TestDoRejectsSecondCommandWhileInFlight(t *testing.T) {
	api := &fakeAPI{data: &models.QueueData{}, cmdDelay: 100 * time.Millisecond}
	sc := NewStationClient(api, models.StationTriage, 1)

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		done <- sc.Do(context.Background(), Command{Type: CmdCallNext})
	}()
	<-started
	time.Sleep(20 * time.Millisecond)

	err := sc.Do(context.Background(), Command{Type: CmdCallNext})
	assert.ErrorIs(t, err, ErrCommandInFlight)

	require.NoError(t, <-done)

	// The surface unlocks once the first command resolves.
	assert.NoError(t, sc.Do(context.Background(), Command{Type: CmdSkip, EntryID: 1}))
}

func TestDoFailureLeavesViewUntouched(t *testing.T) {
	api := &fakeAPI{data: &models.QueueData{Waiting: []models.QueueEntry{{ID: 1}}}}
	sc := NewStationClient(api, models.StationTriage, 1)

	require.NoError(t, sc.Do(context.Background(), Command{Type: CmdCallNext}))
	before := sc.View()
	require.NotNil(t, before)

	var surfaced error
	sc.OnError = func(err error) { surfaced = err }
	api.cmdErr = models.ErrStationBusy

	err := sc.Do(context.Background(), Command{Type: CmdCallNext})
	assert.ErrorIs(t, err, models.ErrStationBusy)
	assert.ErrorIs(t, surfaced, models.ErrStationBusy)
	assert.Same(t, before, sc.View(), "a failed command must not modify the view model")
}

func TestRunRefreshesOnNotification(t *testing.T) {
	api := &fakeAPI{data: &models.QueueData{}}
	sc := NewStationClient(api, models.StationTriage, 1)
	sc.PollInterval = time.Hour

	b := services.NewBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		sc.Run(ctx, b)
		close(runDone)
	}()

	// Wait for the initial refresh, then deliver a push notification.
	waitFor(t, func() bool { return len(api.recorded()) >= 1 })
	require.Contains(t, b.Keys(), models.StationKey(models.StationTriage, 1))

	require.NoError(t, sc.Notify(models.Notification{EventID: "e1", EventType: models.EventCalled}))
	waitFor(t, func() bool { return len(api.recorded()) >= 2 })

	cancel()
	<-runDone
	assert.NotContains(t, b.Keys(), models.StationKey(models.StationTriage, 1))
}

func TestNotifyDropsDuplicateEventIDs(t *testing.T) {
	api := &fakeAPI{data: &models.QueueData{}}
	sc := NewStationClient(api, models.StationTriage, 1)

	require.NoError(t, sc.Notify(models.Notification{EventID: "same"}))
	require.NoError(t, sc.Notify(models.Notification{EventID: "same"}))

	// Only the first notification occupies the channel.
	select {
	case <-sc.notif:
	default:
		t.Fatal("first notification must be buffered")
	}
	select {
	case <-sc.notif:
		t.Fatal("duplicate must be dropped")
	default:
	}
}

func TestPauseSuppressesPollAndResumeCatchesUp(t *testing.T) {
	api := &fakeAPI{data: &models.QueueData{}}
	sc := NewStationClient(api, models.StationTriage, 1)
	sc.PollInterval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sc.Run(ctx, services.NewBroadcaster())

	waitFor(t, func() bool { return len(api.recorded()) >= 1 })
	sc.Pause()
	time.Sleep(60 * time.Millisecond)
	baseline := len(api.recorded())

	time.Sleep(60 * time.Millisecond)
	assert.LessOrEqual(t, len(api.recorded()), baseline+1, "paused client must not keep polling")

	sc.Resume()
	waitFor(t, func() bool { return len(api.recorded()) > baseline })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
