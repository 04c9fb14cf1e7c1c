package recorder

import (
	"context"
	"errors"
	"sync"
	"time"

	"netwatch/internal/models"
)

// ErrUnknownIncident is returned for operations on an id the store has
// never seen.
var ErrUnknownIncident = errors.New("unknown incident id")

// MemoryRecorder is an in-memory Recorder used in tests and as a
// fallback when no database is available. It honours the same
// attach-twice-is-a-no-op contract as the SQLite store.
type MemoryRecorder struct {
	mu     sync.Mutex
	nextID int64

	incidents map[int64]*models.Incident
	traces    map[int64][]models.TraceSnapshot

	// FailWrites makes every mutating call fail while set, for
	// exercising persistence-failure handling.
	FailWrites bool
}

// NewMemoryRecorder creates an empty in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		incidents: make(map[int64]*models.Incident),
		traces:    make(map[int64][]models.TraceSnapshot),
	}
}

var errWriteFailure = errors.New("simulated write failure")

// SetFailWrites toggles simulated persistence failures.
func (m *MemoryRecorder) SetFailWrites(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailWrites = fail
}

// OpenIncident stores a copy of the incident and assigns an id.
func (m *MemoryRecorder) OpenIncident(_ context.Context, incident *models.Incident) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return 0, errWriteFailure
	}
	m.nextID++
	stored := incident.Clone()
	stored.ID = m.nextID
	m.incidents[m.nextID] = stored
	return m.nextID, nil
}

// CloseIncident records the incident end.
func (m *MemoryRecorder) CloseIncident(_ context.Context, id int64, end time.Time, durationSecs float64, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return errWriteFailure
	}
	incident, ok := m.incidents[id]
	if !ok {
		return ErrUnknownIncident
	}
	incident.EndTime = &end
	incident.DurationSecs = &durationSecs
	if notes != "" {
		incident.Notes = notes
	}
	return nil
}

// MarkEscalated links a degraded episode to its outage.
func (m *MemoryRecorder) MarkEscalated(_ context.Context, id, outageID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return errWriteFailure
	}
	incident, ok := m.incidents[id]
	if !ok {
		return ErrUnknownIncident
	}
	incident.EscalatedTo = &outageID
	return nil
}

// AttachTrace stores a snapshot, dropping exact duplicates.
func (m *MemoryRecorder) AttachTrace(_ context.Context, incidentID int64, snapshot models.TraceSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return errWriteFailure
	}
	for _, existing := range m.traces[incidentID] {
		if existing.Target == snapshot.Target &&
			existing.Timestamp.Equal(snapshot.Timestamp) &&
			existing.Trigger == snapshot.Trigger {
			return nil
		}
	}
	m.traces[incidentID] = append(m.traces[incidentID], snapshot)
	return nil
}

// SetCulprit records the culprit hop on an incident.
func (m *MemoryRecorder) SetCulprit(_ context.Context, incidentID int64, hop int, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return errWriteFailure
	}
	incident, ok := m.incidents[incidentID]
	if !ok {
		return ErrUnknownIncident
	}
	incident.CulpritHop = &hop
	incident.CulpritAddress = address
	return nil
}

// Incident returns a copy of a stored incident.
func (m *MemoryRecorder) Incident(id int64) (*models.Incident, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	incident, ok := m.incidents[id]
	if !ok {
		return nil, false
	}
	return incident.Clone(), true
}

// Traces returns the snapshots attached to an incident.
func (m *MemoryRecorder) Traces(id int64) []models.TraceSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.TraceSnapshot, len(m.traces[id]))
	copy(out, m.traces[id])
	return out
}

// IncidentCount returns how many incidents the store holds.
func (m *MemoryRecorder) IncidentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.incidents)
}
