package models

import "time"

// IncidentKind distinguishes degraded episodes from full outages.
type IncidentKind string

const (
	KindDegraded IncidentKind = "degraded"
	KindOutage   IncidentKind = "outage"
)

// Incident is a bounded interval of abnormal connectivity: either a
// degraded episode or an outage. ID is zero until the recorder has
// persisted it.
type Incident struct {
	ID              int64        `json:"id,omitempty"`
	Kind            IncidentKind `json:"kind"`
	StartTime       time.Time    `json:"start_time"`
	EndTime         *time.Time   `json:"end_time,omitempty"`
	DurationSecs    *float64     `json:"duration_secs,omitempty"`
	AffectedTargets []string     `json:"affected_targets"`
	CulpritHop      *int         `json:"culprit_hop,omitempty"`
	CulpritAddress  string       `json:"culprit_address,omitempty"`
	// EscalatedTo links a degraded episode to the outage it became.
	EscalatedTo *int64 `json:"escalated_to,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// NewIncident opens an incident. Start time is when the failing streak
// began, not when the threshold tripped.
func NewIncident(kind IncidentKind, start time.Time, affected []string) *Incident {
	targets := make([]string, len(affected))
	copy(targets, affected)
	return &Incident{
		Kind:            kind,
		StartTime:       start,
		AffectedTargets: targets,
	}
}

// Close sets the end time and derives the duration.
func (i *Incident) Close(end time.Time) {
	i.EndTime = &end
	secs := end.Sub(i.StartTime).Seconds()
	i.DurationSecs = &secs
}

// Open reports whether the incident has not ended yet.
func (i *Incident) Open() bool {
	return i.EndTime == nil
}

// Clone returns a deep copy safe to hand to another goroutine.
func (i *Incident) Clone() *Incident {
	if i == nil {
		return nil
	}
	out := *i
	out.AffectedTargets = make([]string, len(i.AffectedTargets))
	copy(out.AffectedTargets, i.AffectedTargets)
	if i.EndTime != nil {
		t := *i.EndTime
		out.EndTime = &t
	}
	if i.DurationSecs != nil {
		d := *i.DurationSecs
		out.DurationSecs = &d
	}
	if i.CulpritHop != nil {
		h := *i.CulpritHop
		out.CulpritHop = &h
	}
	if i.EscalatedTo != nil {
		e := *i.EscalatedTo
		out.EscalatedTo = &e
	}
	return &out
}
