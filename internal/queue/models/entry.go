package models

import "time"

// StationType identifies one of the fixed service stations a patient
// moves through. The taxonomy is fixed for the facility.
type StationType string

const (
	StationTriage       StationType = "triage"
	StationConsultation StationType = "consultation"
	StationLab          StationType = "lab"
	StationBilling      StationType = "billing"
	StationPharmacy     StationType = "pharmacy"
	StationDocument     StationType = "document"
)

var stationPrefixes = map[StationType]string{
	StationTriage:       "TRI",
	StationConsultation: "CON",
	StationLab:          "LAB",
	StationBilling:      "BIL",
	StationPharmacy:     "PHA",
	StationDocument:     "DOC",
}

// ValidStationType reports whether t is part of the station taxonomy.
func ValidStationType(t StationType) bool {
	_, ok := stationPrefixes[t]
	return ok
}

// Prefix returns the ticket code prefix for the station ("TRI", "CON", ...).
func (t StationType) Prefix() string {
	return stationPrefixes[t]
}

// StationTypes lists the taxonomy in patient flow order.
func StationTypes() []StationType {
	return []StationType{
		StationTriage,
		StationConsultation,
		StationLab,
		StationBilling,
		StationPharmacy,
		StationDocument,
	}
}

// Status is the lifecycle state of one queue entry.
// waiting -> called -> in_progress -> {completed, skipped};
// skipped -> in_progress via recall only.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusCalled     Status = "called"
	StatusInProgress Status = "in_progress"
	StatusSkipped    Status = "skipped"
	StatusCompleted  Status = "completed"
)

// PriorityLevel is set once at intake and never changes for the entry.
type PriorityLevel string

const (
	PriorityHigh   PriorityLevel = "priority"
	PriorityNormal PriorityLevel = "normal"
)

// priorityRank orders waiting entries; lower rank is served first.
// A finer-grained tier only needs a new row here.
var priorityRank = map[PriorityLevel]int{
	PriorityHigh:   0,
	PriorityNormal: 1,
}

// Rank returns the ordering rank of the tier (lower is served first).
func (p PriorityLevel) Rank() int {
	r, ok := priorityRank[p]
	if !ok {
		return len(priorityRank)
	}
	return r
}

// ValidPriorityLevel reports whether p is a known tier.
func ValidPriorityLevel(p PriorityLevel) bool {
	_, ok := priorityRank[p]
	return ok
}

// QueueEntry is one patient-station visit instance. A push creates a new
// entry at the target station instead of mutating the old one, so the
// chain of visits per patient stays auditable.
type QueueEntry struct {
	ID         int64  `json:"id" db:"id"`
	PatientRef string `json:"patient_ref" db:"patient_ref"`
	// PatientName is view decoration resolved at read time, never stored.
	PatientName   string        `json:"patient_name,omitempty" db:"-"`
	StationType   StationType   `json:"station_type" db:"station_type"`
	PriorityLevel PriorityLevel `json:"priority_level" db:"priority_level"`
	Status        Status        `json:"status" db:"status"`
	QueueCode     string        `json:"queue_code" db:"queue_code"`
	TimeIn        time.Time     `json:"time_in" db:"time_in"`
	TimeStarted   *time.Time    `json:"time_started,omitempty" db:"time_started"`
	TimeSkipped   *time.Time    `json:"time_skipped,omitempty" db:"time_skipped"`
	TimeCompleted *time.Time    `json:"time_completed,omitempty" db:"time_completed"`
	NextStation   *StationType  `json:"next_station,omitempty" db:"next_station"`
}

// Station is read-only configuration for one physical service point.
type Station struct {
	StationType          StationType `json:"station_type" db:"station_type"`
	StationNumber        int         `json:"station_number" db:"station_number"`
	AssignedEmployeeRef  string      `json:"assigned_employee_ref,omitempty" db:"assigned_employee_ref"`
	AssignedEmployeeName string      `json:"assigned_employee_name,omitempty" db:"-"`
	IsActive             bool        `json:"is_active" db:"is_active"`
}

// QueueData is the authoritative queue view for one station, returned
// wholesale so clients replace their view model instead of patching it.
type QueueData struct {
	CurrentPatient *QueueEntry  `json:"current_patient"`
	Waiting        []QueueEntry `json:"waiting"`
	Skipped        []QueueEntry `json:"skipped"`
	Completed      []QueueEntry `json:"completed"`
	InProgress     []QueueEntry `json:"in_progress"`
}
