package services

import (
	"strings"

	"github.com/medilink/clinic-queue-backend/internal/queue/models"
)

// AffectedSubscribers resolves which of the registered subscribers must
// refresh after an event. Pure function: station-scoped events touch
// only the issuing station's subscribers; a push additionally touches
// every subscriber of the target station type. Unrecognized event types
// resolve to nobody rather than broadcasting to all, so a bad event can
// never cause a refresh storm.
func AffectedSubscribers(ev models.QueueEvent, registered []models.SubscriberKey) []models.SubscriberKey {
	var affected []models.SubscriberKey

	switch ev.EventType {
	case models.EventRegistered, models.EventCalled, models.EventForceCall,
		models.EventSkipped, models.EventRecalled, models.EventCompleted:
		for _, key := range registered {
			if keyMatchesStation(key, ev.SourceStation) {
				affected = append(affected, key)
			}
		}
	case models.EventPushed:
		for _, key := range registered {
			if keyMatchesStation(key, ev.SourceStation) {
				affected = append(affected, key)
				continue
			}
			if ev.TargetStation != nil && keyMatchesStation(key, *ev.TargetStation) {
				affected = append(affected, key)
			}
		}
	}
	return affected
}

// keyMatchesStation covers both key shapes: "<type>" for displays and
// "<type>-<id>" for station consoles.
func keyMatchesStation(key models.SubscriberKey, station models.StationType) bool {
	k := string(key)
	return k == string(station) || strings.HasPrefix(k, string(station)+"-")
}
