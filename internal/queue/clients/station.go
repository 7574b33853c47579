package clients

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/medilink/clinic-queue-backend/internal/queue/models"
	"github.com/medilink/clinic-queue-backend/internal/queue/services"
)

// QueueAPI is the command and query surface a station console drives.
// *services.QueueService satisfies it; tests substitute fakes.
type QueueAPI interface {
	QueueData(ctx context.Context, station models.StationType) (*models.QueueData, error)
	CallNext(ctx context.Context, station models.StationType, stationID int) (*models.QueueEntry, error)
	SkipPatient(ctx context.Context, station models.StationType, stationID int, entryID int64) (*models.QueueEntry, error)
	RecallPatient(ctx context.Context, station models.StationType, stationID int, entryID int64) (*models.QueueEntry, error)
	ForceCall(ctx context.Context, station models.StationType, stationID int, entryID int64) (*models.QueueEntry, error)
	CompletePatient(ctx context.Context, station models.StationType, stationID int, entryID int64) (*models.QueueEntry, error)
	PushToStation(ctx context.Context, station models.StationType, stationID int, entryID int64, target models.StationType) (*models.QueueEntry, *models.QueueEntry, error)
}

// CommandType is the closed set of operator actions. Dispatch is an
// exhaustive switch, so a new command cannot be added without the
// compiler pointing at every dispatch site.
type CommandType int

const (
	CmdCallNext CommandType = iota
	CmdSkip
	CmdRecall
	CmdForceCall
	CmdComplete
	CmdPush
)

// Command is one operator action. EntryID zero means "the obvious
// entry" (current patient, earliest skipped, first waiting).
type Command struct {
	Type    CommandType
	EntryID int64
	Target  models.StationType
}

// ErrCommandInFlight rejects a second command while one is unresolved,
// so a double click cannot issue two call-next commands.
var ErrCommandInFlight = errors.New("a command is already in flight")

const (
	defaultPollInterval   = 10 * time.Second
	defaultCommandTimeout = 5 * time.Second
	notifyBuffer          = 16
)

// StationClient is the per-station console actor. It keeps a local view
// model that is replaced wholesale on every refresh (never patched, so
// out-of-order notifications cannot corrupt it), polls as a fallback to
// push delivery, and serializes operator commands.
type StationClient struct {
	Station   models.StationType
	StationID int

	// PollInterval is the fallback refresh cadence; the timer pauses
	// while the host view is backgrounded.
	PollInterval time.Duration
	// CommandTimeout bounds a command attempt; on expiry the command
	// surface unlocks and the next refresh reconciles.
	CommandTimeout time.Duration
	// OnError surfaces a transient, dismissible failure to the
	// operator. Never called with nil.
	OnError func(error)

	api   QueueAPI
	notif chan models.Notification

	mu       sync.Mutex
	view     *models.QueueData
	inFlight bool
	paused   bool
	seen     *seenWindow
}

func NewStationClient(api QueueAPI, station models.StationType, stationID int) *StationClient {
	return &StationClient{
		Station:        station,
		StationID:      stationID,
		PollInterval:   defaultPollInterval,
		CommandTimeout: defaultCommandTimeout,
		api:            api,
		notif:          make(chan models.Notification, notifyBuffer),
		seen:           newSeenWindow(),
	}
}

// Key implements services.Subscriber.
func (sc *StationClient) Key() models.SubscriberKey {
	return models.StationKey(sc.Station, sc.StationID)
}

// Notify implements services.Subscriber. Duplicates are dropped by
// event id; a full buffer is not an error because the poll cycle is the
// safety net for missed notifications.
func (sc *StationClient) Notify(n models.Notification) error {
	sc.mu.Lock()
	dup := sc.seen.observe(n.EventID)
	sc.mu.Unlock()
	if dup {
		return nil
	}

	select {
	case sc.notif <- n:
	default:
	}
	return nil
}

// Run subscribes the console to the broadcaster and serves refreshes
// until ctx is done.
func (sc *StationClient) Run(ctx context.Context, b *services.Broadcaster) {
	b.Register(sc)
	defer b.Unregister(sc)

	sc.refresh(ctx)

	ticker := time.NewTicker(sc.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sc.notif:
			sc.refresh(ctx)
		case <-ticker.C:
			if !sc.isPaused() {
				sc.refresh(ctx)
			}
		}
	}
}

// Pause suspends the fallback poll while the host view is not visible.
func (sc *StationClient) Pause() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.paused = true
}

// Resume restarts polling and triggers an immediate catch-up refresh.
func (sc *StationClient) Resume() {
	sc.mu.Lock()
	sc.paused = false
	sc.mu.Unlock()

	select {
	case sc.notif <- models.Notification{}:
	default:
	}
}

func (sc *StationClient) isPaused() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.paused
}

// Do executes one operator command. A second command while one is in
// flight is rejected; failures are surfaced and leave the local view
// untouched for the next refresh to reconcile.
func (sc *StationClient) Do(ctx context.Context, cmd Command) error {
	sc.mu.Lock()
	if sc.inFlight {
		sc.mu.Unlock()
		return ErrCommandInFlight
	}
	sc.inFlight = true
	sc.mu.Unlock()

	defer func() {
		sc.mu.Lock()
		sc.inFlight = false
		sc.mu.Unlock()
	}()

	cctx, cancel := context.WithTimeout(ctx, sc.CommandTimeout)
	defer cancel()

	err := sc.execute(cctx, cmd)
	if err != nil {
		if sc.OnError != nil {
			sc.OnError(err)
		}
		return err
	}
	sc.refresh(ctx)
	return nil
}

func (sc *StationClient) execute(ctx context.Context, cmd Command) error {
	var err error
	switch cmd.Type {
	case CmdCallNext:
		_, err = sc.api.CallNext(ctx, sc.Station, sc.StationID)
	case CmdSkip:
		_, err = sc.api.SkipPatient(ctx, sc.Station, sc.StationID, cmd.EntryID)
	case CmdRecall:
		_, err = sc.api.RecallPatient(ctx, sc.Station, sc.StationID, cmd.EntryID)
	case CmdForceCall:
		_, err = sc.api.ForceCall(ctx, sc.Station, sc.StationID, cmd.EntryID)
	case CmdComplete:
		_, err = sc.api.CompletePatient(ctx, sc.Station, sc.StationID, cmd.EntryID)
	case CmdPush:
		_, _, err = sc.api.PushToStation(ctx, sc.Station, sc.StationID, cmd.EntryID, cmd.Target)
	default:
		err = errors.New("unknown command")
	}
	return err
}

// refresh replaces the whole view model from one idempotent read.
func (sc *StationClient) refresh(ctx context.Context) {
	data, err := sc.api.QueueData(ctx, sc.Station)
	if err != nil {
		log.Warn().Err(err).
			Str("station", string(sc.Station)).
			Int("station_id", sc.StationID).
			Msg("station view refresh failed")
		return
	}
	sc.mu.Lock()
	sc.view = data
	sc.mu.Unlock()
}

// View returns the latest view model snapshot, or nil before the first
// successful refresh.
func (sc *StationClient) View() *models.QueueData {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.view
}
