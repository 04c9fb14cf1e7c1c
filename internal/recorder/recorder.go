// Package recorder persists incidents, trace snapshots and sampled
// probe results. Monitoring liveness never depends on it: callers log
// persistence failures and retry on the next mutation.
package recorder

import (
	"context"
	"time"

	"netwatch/internal/models"
)

// Recorder is the durable store contract the monitoring core requires.
type Recorder interface {
	// OpenIncident persists a newly opened incident and returns its id.
	OpenIncident(ctx context.Context, incident *models.Incident) (int64, error)
	// CloseIncident sets the end time, duration and optional notes.
	CloseIncident(ctx context.Context, id int64, end time.Time, durationSecs float64, notes string) error
	// MarkEscalated links a degraded episode to the outage it became.
	MarkEscalated(ctx context.Context, id, outageID int64) error
	// AttachTrace stores a trace snapshot against an incident. Attaching
	// the same snapshot twice (a persistence-failure retry) must not
	// duplicate it.
	AttachTrace(ctx context.Context, incidentID int64, snapshot models.TraceSnapshot) error
	// SetCulprit records the identified culprit hop on an incident.
	SetCulprit(ctx context.Context, incidentID int64, hop int, address string) error
}
