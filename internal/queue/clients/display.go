package clients

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/medilink/clinic-queue-backend/internal/queue/models"
	"github.com/medilink/clinic-queue-backend/internal/queue/services"
)

// QueueReader is the read-only slice of the queue API a display needs.
type QueueReader interface {
	QueueData(ctx context.Context, station models.StationType) (*models.QueueData, error)
}

const defaultDisplayPoll = 5 * time.Second

// DisplayClient re-renders a station's public queue view. It has no
// command surface: it refreshes on notification or on its own timer and
// deregisters itself when its presentation surface is torn down.
type DisplayClient struct {
	Station models.StationType

	// PollInterval is the independent fallback cadence.
	PollInterval time.Duration
	// Render receives every fresh view. Never called with nil data.
	Render func(*models.QueueData)

	api    QueueReader
	notif  chan struct{}
	closed chan struct{}

	mu   sync.Mutex
	seen *seenWindow
	once sync.Once
}

func NewDisplayClient(api QueueReader, station models.StationType, render func(*models.QueueData)) *DisplayClient {
	return &DisplayClient{
		Station:      station,
		PollInterval: defaultDisplayPoll,
		Render:       render,
		api:          api,
		notif:        make(chan struct{}, 1),
		closed:       make(chan struct{}),
		seen:         newSeenWindow(),
	}
}

// Key implements services.Subscriber; displays share the bare station
// type key.
func (dc *DisplayClient) Key() models.SubscriberKey {
	return models.DisplayKey(dc.Station)
}

// Notify implements services.Subscriber.
func (dc *DisplayClient) Notify(n models.Notification) error {
	dc.mu.Lock()
	dup := dc.seen.observe(n.EventID)
	dc.mu.Unlock()
	if dup {
		return nil
	}

	select {
	case dc.notif <- struct{}{}:
	default:
	}
	return nil
}

// Run subscribes the display and re-renders until Close or ctx done.
func (dc *DisplayClient) Run(ctx context.Context, b *services.Broadcaster) {
	b.Register(dc)
	defer b.Unregister(dc)

	dc.render(ctx)

	ticker := time.NewTicker(dc.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-dc.closed:
			return
		case <-dc.notif:
			dc.render(ctx)
		case <-ticker.C:
			dc.render(ctx)
		}
	}
}

// Close tears the display down; Run deregisters it on the way out.
func (dc *DisplayClient) Close() {
	dc.once.Do(func() { close(dc.closed) })
}

func (dc *DisplayClient) render(ctx context.Context) {
	data, err := dc.api.QueueData(ctx, dc.Station)
	if err != nil {
		log.Warn().Err(err).
			Str("station", string(dc.Station)).
			Msg("display refresh failed")
		return
	}
	if dc.Render != nil {
		dc.Render(data)
	}
}
