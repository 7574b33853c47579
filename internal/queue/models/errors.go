package models

import "errors"

// Queue command error taxonomy. Every command resolves to an explicit
// result; these are terminal for the attempt except ErrTransientIO,
// which clients retry with backoff.
var (
	ErrEmptyQueue       = errors.New("no waiting patient in queue")
	ErrStationBusy      = errors.New("station already has a patient in progress")
	ErrNoCurrentPatient = errors.New("no patient currently in progress at station")
	ErrNotSkipped       = errors.New("entry is not in skipped status")
	ErrInvalidTarget    = errors.New("target station type is not recognized")
	ErrNotFound         = errors.New("queue entry not found")
	ErrTransientIO      = errors.New("transient store or delivery failure")
)
