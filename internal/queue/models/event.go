package models

import (
	"strconv"
	"time"
)

// EventType names the queue operation that produced an event.
type EventType string

const (
	EventRegistered EventType = "registered"
	EventCalled     EventType = "called"
	EventForceCall  EventType = "force_called"
	EventSkipped    EventType = "skipped"
	EventRecalled   EventType = "recalled"
	EventCompleted  EventType = "completed"
	EventPushed     EventType = "pushed"
)

// QueueEvent is emitted exactly once per successful queue operation.
// Events are immutable; delivery is at-least-once, so consumers
// de-duplicate by EventID and re-fetch state rather than trusting the
// payload.
type QueueEvent struct {
	EventID         string         `json:"event_id"`
	EventType       EventType      `json:"event_type"`
	SourceStation   StationType    `json:"source_station"`
	SourceStationID int            `json:"source_station_id"`
	TargetStation   *StationType   `json:"target_station,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
	Payload         map[string]any `json:"payload,omitempty"`
}

// SubscriberKey identifies one broadcast subscriber: station consoles
// register as "<stationType>-<stationID>", public displays as the bare
// station type.
type SubscriberKey string

// StationKey builds the subscriber key for a station console.
func StationKey(t StationType, stationID int) SubscriberKey {
	return SubscriberKey(string(t) + "-" + strconv.Itoa(stationID))
}

// DisplayKey builds the subscriber key for a public display.
func DisplayKey(t StationType) SubscriberKey {
	return SubscriberKey(t)
}

// Notification is the frame delivered to subscribers. It carries just
// enough to say "something changed, refresh now".
type Notification struct {
	EventID         string       `json:"event_id"`
	EventType       EventType    `json:"event_type"`
	SourceStation   StationType  `json:"source_station"`
	SourceStationID int          `json:"source_station_id"`
	TargetStation   *StationType `json:"target_station,omitempty"`
	Timestamp       time.Time    `json:"timestamp"`
}

// NotificationFromEvent strips an event down to its refresh hint.
func NotificationFromEvent(ev QueueEvent) Notification {
	return Notification{
		EventID:         ev.EventID,
		EventType:       ev.EventType,
		SourceStation:   ev.SourceStation,
		SourceStationID: ev.SourceStationID,
		TargetStation:   ev.TargetStation,
		Timestamp:       ev.Timestamp,
	}
}
