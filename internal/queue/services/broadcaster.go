package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/medilink/clinic-queue-backend/internal/queue/models"
)

// Subscriber receives refresh notifications. A returned error marks the
// subscriber dead; it is dropped on the next prune sweep.
type Subscriber interface {
	Key() models.SubscriberKey
	Notify(n models.Notification) error
}

const (
	// DefaultDebounce is the trailing-edge window that coalesces
	// less critical events under rapid skip/recall churn.
	DefaultDebounce = 2 * time.Second

	defaultSweepInterval = 30 * time.Second
	seenEventCap         = 2048
)

// Broadcaster fans queue events out to registered subscribers with a
// two-tier delivery policy: called, pushed and completed go out
// immediately, everything else is coalesced behind a debounce timer.
// Delivery is at-least-once; events are de-duplicated by id here and
// subscribers re-fetch authoritative state on every notification.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[models.SubscriberKey]map[Subscriber]struct{}
	dead map[Subscriber]struct{}

	debounce time.Duration
	pending  *models.QueueEvent
	timer    *time.Timer
	timerGen uint64

	seen      map[string]struct{}
	seenOrder []string

	sweepInterval time.Duration
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs:          make(map[models.SubscriberKey]map[Subscriber]struct{}),
		dead:          make(map[Subscriber]struct{}),
		debounce:      DefaultDebounce,
		seen:          make(map[string]struct{}),
		sweepInterval: defaultSweepInterval,
	}
}

// SetDebounce overrides the batched-tier window. Used by tests and by
// deployments that want a tighter display latency bound.
func (b *Broadcaster) SetDebounce(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.debounce = d
}

// Register adds a subscriber under its key. Several subscribers may
// share a key (two physical displays of the same station type).
func (b *Broadcaster) Register(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := sub.Key()
	if b.subs[key] == nil {
		b.subs[key] = make(map[Subscriber]struct{})
	}
	b.subs[key][sub] = struct{}{}
	delete(b.dead, sub)
	log.Debug().Str("subscriber", string(key)).Msg("subscriber registered")
}

// Unregister removes a subscriber.
func (b *Broadcaster) Unregister(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub)
}

// Keys snapshots the registered subscriber keys for effect resolution.
func (b *Broadcaster) Keys() []models.SubscriberKey {
	b.mu.Lock()
	defer b.mu.Unlock()

	keys := make([]models.SubscriberKey, 0, len(b.subs))
	for key := range b.subs {
		keys = append(keys, key)
	}
	return keys
}

// HandleEvent routes one event through the delivery policy.
func (b *Broadcaster) HandleEvent(ev models.QueueEvent) {
	if b.isDuplicate(ev.EventID) {
		return
	}

	switch ev.EventType {
	case models.EventCalled, models.EventPushed, models.EventCompleted:
		b.dispatch(ev)
	default:
		b.arm(ev)
	}
}

// arm (re)starts the debounce timer carrying the most recent event. The
// generation counter invalidates a timer that already fired but has not
// run yet, so a replaced window cannot flush the new event early.
func (b *Broadcaster) arm(ev models.QueueEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = &ev
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timerGen++
	gen := b.timerGen
	b.timer = time.AfterFunc(b.debounce, func() { b.firePending(gen) })
}

func (b *Broadcaster) firePending(gen uint64) {
	b.mu.Lock()
	if gen != b.timerGen {
		// A newer event re-armed the window after this timer fired.
		b.mu.Unlock()
		return
	}
	ev := b.pending
	b.pending = nil
	b.timer = nil
	b.mu.Unlock()

	if ev != nil {
		b.dispatch(*ev)
	}
}

func (b *Broadcaster) dispatch(ev models.QueueEvent) {
	n := models.NotificationFromEvent(ev)

	b.mu.Lock()
	affected := AffectedSubscribers(ev, b.keysLocked())
	var targets []Subscriber
	for _, key := range affected {
		for sub := range b.subs[key] {
			targets = append(targets, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range targets {
		if err := sub.Notify(n); err != nil {
			log.Warn().Err(err).
				Str("subscriber", string(sub.Key())).
				Str("event_id", ev.EventID).
				Msg("notification delivery failed, marking subscriber dead")
			b.markDead(sub)
		}
	}
}

// Run prunes dead subscribers until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Prune()
		}
	}
}

// Prune drops every subscriber whose last delivery failed.
func (b *Broadcaster) Prune() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.dead {
		b.removeLocked(sub)
	}
}

func (b *Broadcaster) markDead(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dead[sub] = struct{}{}
}

func (b *Broadcaster) removeLocked(sub Subscriber) {
	key := sub.Key()
	if set, ok := b.subs[key]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, key)
		}
	}
	delete(b.dead, sub)
}

func (b *Broadcaster) keysLocked() []models.SubscriberKey {
	keys := make([]models.SubscriberKey, 0, len(b.subs))
	for key := range b.subs {
		keys = append(keys, key)
	}
	return keys
}

// isDuplicate tracks recently seen event ids with a bounded window.
func (b *Broadcaster) isDuplicate(eventID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.seen[eventID]; ok {
		return true
	}
	b.seen[eventID] = struct{}{}
	b.seenOrder = append(b.seenOrder, eventID)
	if len(b.seenOrder) > seenEventCap {
		oldest := b.seenOrder[0]
		b.seenOrder = b.seenOrder[1:]
		delete(b.seen, oldest)
	}
	return false
}
