package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/medilink/clinic-queue-backend/internal/queue/models"
)

// MemoryStore keeps queue entries in process memory behind a single
// mutex, so every transition is naturally a conditional compare-and-set.
// It backs the test suites and small single-node deployments; the
// MariaDB store is the production implementation.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[int64]*models.QueueEntry
	nextID  int64
	codeSeq map[string]int

	// Now is swappable in tests.
	Now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[int64]*models.QueueEntry),
		codeSeq: make(map[string]int),
		Now:     time.Now,
	}
}

func (m *MemoryStore) CreateEntry(_ context.Context, e *models.QueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	if e.TimeIn.IsZero() {
		e.TimeIn = now
	}
	if e.Status == "" {
		e.Status = models.StatusWaiting
	}
	m.nextID++
	e.ID = m.nextID

	seqKey := string(e.StationType) + "|" + e.TimeIn.Format("2006-01-02")
	m.codeSeq[seqKey]++
	e.QueueCode = fmt.Sprintf("%s-%03d", e.StationType.Prefix(), m.codeSeq[seqKey])

	cp := *e
	m.entries[e.ID] = &cp
	return nil
}

func (m *MemoryStore) Entry(_ context.Context, id int64) (*models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryStore) QueueData(_ context.Context, station models.StationType) (*models.QueueData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data := &models.QueueData{
		Waiting:    []models.QueueEntry{},
		Skipped:    []models.QueueEntry{},
		Completed:  []models.QueueEntry{},
		InProgress: []models.QueueEntry{},
	}
	today := m.Now().Format("2006-01-02")

	for _, e := range m.entries {
		if e.StationType != station {
			continue
		}
		switch e.Status {
		case models.StatusWaiting:
			data.Waiting = append(data.Waiting, *e)
		case models.StatusSkipped:
			data.Skipped = append(data.Skipped, *e)
		case models.StatusInProgress:
			data.InProgress = append(data.InProgress, *e)
		case models.StatusCompleted:
			if e.TimeCompleted != nil && e.TimeCompleted.Format("2006-01-02") == today {
				data.Completed = append(data.Completed, *e)
			}
		}
	}

	sortWaiting(data.Waiting)
	sortSkipped(data.Skipped)
	sort.Slice(data.Completed, func(i, j int) bool {
		return data.Completed[i].TimeCompleted.After(*data.Completed[j].TimeCompleted)
	})
	if len(data.InProgress) > 0 {
		cp := data.InProgress[0]
		data.CurrentPatient = &cp
	}
	return data, nil
}

func (m *MemoryStore) NextWaiting(_ context.Context, station models.StationType) (*models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	waiting := m.collect(station, models.StatusWaiting)
	if len(waiting) == 0 {
		return nil, models.ErrEmptyQueue
	}
	sortWaiting(waiting)
	cp := waiting[0]
	return &cp, nil
}

func (m *MemoryStore) FirstWaiting(_ context.Context, station models.StationType) (*models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	waiting := m.collect(station, models.StatusWaiting)
	if len(waiting) == 0 {
		return nil, models.ErrEmptyQueue
	}
	sort.Slice(waiting, func(i, j int) bool {
		if waiting[i].TimeIn.Equal(waiting[j].TimeIn) {
			return waiting[i].ID < waiting[j].ID
		}
		return waiting[i].TimeIn.Before(waiting[j].TimeIn)
	})
	cp := waiting[0]
	return &cp, nil
}

func (m *MemoryStore) EarliestSkipped(_ context.Context, station models.StationType) (*models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	skipped := m.collect(station, models.StatusSkipped)
	if len(skipped) == 0 {
		return nil, models.ErrNotSkipped
	}
	sortSkipped(skipped)
	cp := skipped[0]
	return &cp, nil
}

func (m *MemoryStore) CurrentInProgress(_ context.Context, station models.StationType) (*models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentLocked(station)
}

func (m *MemoryStore) Claim(_ context.Context, station models.StationType, id int64, from models.Status) (*models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, _ := m.currentLocked(station); cur != nil && cur.ID != id {
		return nil, models.ErrStationBusy
	}
	e, ok := m.entries[id]
	if !ok || e.StationType != station {
		return nil, models.ErrNotFound
	}
	if e.Status != from {
		if from == models.StatusSkipped {
			return nil, models.ErrNotSkipped
		}
		// The waiting candidate was taken by a concurrent command.
		return nil, models.ErrNotFound
	}

	e.Status = models.StatusInProgress
	if e.TimeStarted == nil {
		now := m.Now()
		e.TimeStarted = &now
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryStore) Skip(_ context.Context, station models.StationType, id int64) (*models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok || e.StationType != station {
		return nil, models.ErrNotFound
	}
	if e.Status != models.StatusInProgress {
		return nil, models.ErrNoCurrentPatient
	}
	e.Status = models.StatusSkipped
	now := m.Now()
	e.TimeSkipped = &now
	cp := *e
	return &cp, nil
}

func (m *MemoryStore) Complete(_ context.Context, station models.StationType, id int64) (*models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completeLocked(station, id, nil)
}

func (m *MemoryStore) Push(_ context.Context, station models.StationType, id int64, target models.StationType) (*models.QueueEntry, *models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	completed, err := m.completeLocked(station, id, &target)
	if err != nil {
		return nil, nil, err
	}

	now := m.Now()
	created := &models.QueueEntry{
		PatientRef:    completed.PatientRef,
		StationType:   target,
		PriorityLevel: completed.PriorityLevel,
		Status:        models.StatusWaiting,
		TimeIn:        now,
	}
	m.nextID++
	created.ID = m.nextID
	seqKey := string(target) + "|" + now.Format("2006-01-02")
	m.codeSeq[seqKey]++
	created.QueueCode = fmt.Sprintf("%s-%03d", target.Prefix(), m.codeSeq[seqKey])
	cp := *created
	m.entries[created.ID] = &cp

	return completed, created, nil
}

func (m *MemoryStore) completeLocked(station models.StationType, id int64, next *models.StationType) (*models.QueueEntry, error) {
	e, ok := m.entries[id]
	if !ok || e.StationType != station {
		return nil, models.ErrNotFound
	}
	if e.Status != models.StatusInProgress {
		return nil, models.ErrNoCurrentPatient
	}
	e.Status = models.StatusCompleted
	now := m.Now()
	e.TimeCompleted = &now
	e.NextStation = next
	cp := *e
	return &cp, nil
}

func (m *MemoryStore) currentLocked(station models.StationType) (*models.QueueEntry, error) {
	for _, e := range m.entries {
		if e.StationType == station && e.Status == models.StatusInProgress {
			cp := *e
			return &cp, nil
		}
	}
	return nil, models.ErrNoCurrentPatient
}

func (m *MemoryStore) collect(station models.StationType, status models.Status) []models.QueueEntry {
	var out []models.QueueEntry
	for _, e := range m.entries {
		if e.StationType == station && e.Status == status {
			out = append(out, *e)
		}
	}
	return out
}

func sortWaiting(entries []models.QueueEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if ri, rj := entries[i].PriorityLevel.Rank(), entries[j].PriorityLevel.Rank(); ri != rj {
			return ri < rj
		}
		if !entries[i].TimeIn.Equal(entries[j].TimeIn) {
			return entries[i].TimeIn.Before(entries[j].TimeIn)
		}
		return entries[i].ID < entries[j].ID
	})
}

func sortSkipped(entries []models.QueueEntry) {
	sort.Slice(entries, func(i, j int) bool {
		ti, tj := entries[i].TimeSkipped, entries[j].TimeSkipped
		if ti != nil && tj != nil && !ti.Equal(*tj) {
			return ti.Before(*tj)
		}
		return entries[i].ID < entries[j].ID
	})
}
