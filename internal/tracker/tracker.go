// Package tracker implements the debounced connectivity state machine.
// Per-target consecutive-failure and consecutive-success counters feed a
// single aggregate state; requiring a streak of like outcomes before a
// transition keeps isolated drops from flapping the state.
package tracker

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"netwatch/internal/config"
	"netwatch/internal/models"
)

// EventKind names a state transition.
type EventKind string

const (
	// EventDegraded is emitted on Online -> Degraded; a degraded episode opens.
	EventDegraded EventKind = "degraded"
	// EventOffline is emitted on Degraded -> Offline; the episode escalates
	// into an outage.
	EventOffline EventKind = "offline"
	// EventDegradedRecovered is emitted on Degraded -> Online.
	EventDegradedRecovered EventKind = "degraded_recovered"
	// EventRecovered is emitted on Offline -> Online; the outage closes.
	EventRecovered EventKind = "recovered"
)

// Event is a state transition notification. All incident fields are
// deep copies; consumers never share mutable state with the tracker.
type Event struct {
	Kind           EventKind
	At             time.Time
	State          models.ConnectivityState
	FailingTargets []string
	// Incident is the incident this event concerns: the one opened on
	// EventDegraded/EventOffline, the one closed on recovery events.
	Incident *models.Incident
	// Escalated carries the closed degraded episode on EventOffline.
	Escalated *models.Incident
}

type targetState struct {
	target               models.Target
	consecutiveFailures  int
	consecutiveSuccesses int
	lastOutcome          *models.ProbeOutcome
	lastOutcomeID        string
	// firstFailureAt is when the current failing streak began; incidents
	// start there, not when the threshold finally trips.
	firstFailureAt time.Time
}

func (ts *targetState) failing() bool {
	return ts.consecutiveFailures >= 1
}

// Tracker consumes probe outcomes and classifies the aggregate
// connectivity state. It must only be driven from a single goroutine;
// the outcome channel serializes access to the counters.
type Tracker struct {
	cfg     config.MonitorConfig
	logger  zerolog.Logger
	state   models.ConnectivityState
	targets map[string]*targetState

	// open incident: the degraded episode while Degraded, the outage
	// while Offline. Owned by the tracker until it closes.
	open *models.Incident
}

// New creates a tracker for the given targets, starting Online.
func New(cfg config.MonitorConfig, targets []models.Target, logger zerolog.Logger) *Tracker {
	states := make(map[string]*targetState, len(targets))
	for _, t := range targets {
		states[t.Address] = &targetState{target: t}
	}
	return &Tracker{
		cfg:     cfg,
		logger:  logger,
		state:   models.StateOnline,
		targets: states,
	}
}

// Process classifies one probe outcome, updating counters and returning
// a transition event when a threshold is crossed. Outcomes for unknown
// targets and duplicate deliveries are ignored.
func (t *Tracker) Process(outcome models.ProbeOutcome) (Event, bool) {
	ts, ok := t.targets[outcome.Target]
	if !ok {
		t.logger.Warn().Str("target", outcome.Target).Msg("outcome for unknown target, ignoring")
		return Event{}, false
	}
	if outcome.ID != "" && outcome.ID == ts.lastOutcomeID {
		t.logger.Debug().Str("id", outcome.ID).Msg("duplicate outcome, ignoring")
		return Event{}, false
	}
	ts.lastOutcomeID = outcome.ID

	if outcome.Success {
		ts.consecutiveFailures = 0
		ts.consecutiveSuccesses++
		ts.firstFailureAt = time.Time{}
	} else {
		ts.consecutiveSuccesses = 0
		ts.consecutiveFailures++
		if ts.consecutiveFailures == 1 {
			ts.firstFailureAt = outcome.Timestamp
		}
	}
	o := outcome
	ts.lastOutcome = &o

	switch t.state {
	case models.StateOnline:
		if t.worstFailureStreak() >= t.cfg.DegradedThreshold {
			return t.enterDegraded(outcome.Timestamp), true
		}
	case models.StateDegraded:
		if t.worstFailureStreak() >= t.cfg.OfflineThreshold {
			return t.enterOffline(outcome.Timestamp), true
		}
		if t.recovered() {
			return t.enterOnline(EventDegradedRecovered, outcome.Timestamp), true
		}
	case models.StateOffline:
		if t.recovered() {
			return t.enterOnline(EventRecovered, outcome.Timestamp), true
		}
	}
	return Event{}, false
}

func (t *Tracker) enterDegraded(at time.Time) Event {
	t.state = models.StateDegraded
	failing := t.failingTargets()
	t.open = models.NewIncident(models.KindDegraded, t.earliestFailureStart(at), failing)
	t.logger.Warn().Strs("failing_targets", failing).Msg("state: ONLINE -> DEGRADED")
	return Event{
		Kind:           EventDegraded,
		At:             at,
		State:          t.state,
		FailingTargets: failing,
		Incident:       t.open.Clone(),
	}
}

func (t *Tracker) enterOffline(at time.Time) Event {
	t.state = models.StateOffline
	failing := t.failingTargets()

	episode := t.open
	episode.Close(at)

	outage := models.NewIncident(models.KindOutage, t.earliestFailureStart(at), failing)
	t.open = outage

	t.logger.Error().Strs("failing_targets", failing).Msg("state: DEGRADED -> OFFLINE, outage started")
	return Event{
		Kind:           EventOffline,
		At:             at,
		State:          t.state,
		FailingTargets: failing,
		Incident:       outage.Clone(),
		Escalated:      episode.Clone(),
	}
}

func (t *Tracker) enterOnline(kind EventKind, at time.Time) Event {
	t.state = models.StateOnline
	incident := t.open
	t.open = nil
	incident.Close(at)

	if kind == EventRecovered {
		t.logger.Info().Float64("duration_secs", *incident.DurationSecs).Msg("state: OFFLINE -> ONLINE, outage ended")
	} else {
		t.logger.Info().Msg("state: DEGRADED -> ONLINE")
	}
	return Event{
		Kind:     kind,
		At:       at,
		State:    t.state,
		Incident: incident.Clone(),
	}
}

// worstFailureStreak returns the longest current consecutive-failure
// streak across all targets; that streak drives transitions.
func (t *Tracker) worstFailureStreak() int {
	worst := 0
	for _, ts := range t.targets {
		if ts.consecutiveFailures > worst {
			worst = ts.consecutiveFailures
		}
	}
	return worst
}

// recovered reports whether the open incident may close: no target is
// failing and every affected target has a long enough success streak.
func (t *Tracker) recovered() bool {
	if t.open == nil {
		return false
	}
	for _, ts := range t.targets {
		if ts.failing() {
			return false
		}
	}
	for _, addr := range t.open.AffectedTargets {
		ts, ok := t.targets[addr]
		if !ok {
			continue
		}
		if ts.consecutiveSuccesses < t.cfg.RecoveryThreshold {
			return false
		}
	}
	return true
}

func (t *Tracker) failingTargets() []string {
	var failing []string
	for addr, ts := range t.targets {
		if ts.failing() {
			failing = append(failing, addr)
		}
	}
	sort.Strings(failing)
	return failing
}

// earliestFailureStart returns the earliest first-failure timestamp
// among currently failing targets, falling back to the trigger time.
func (t *Tracker) earliestFailureStart(fallback time.Time) time.Time {
	earliest := fallback
	for _, ts := range t.targets {
		if ts.failing() && !ts.firstFailureAt.IsZero() && ts.firstFailureAt.Before(earliest) {
			earliest = ts.firstFailureAt
		}
	}
	return earliest
}

// State returns the current aggregate connectivity state.
func (t *Tracker) State() models.ConnectivityState {
	return t.state
}

// OpenIncident returns a copy of the currently open incident, if any.
func (t *Tracker) OpenIncident() *models.Incident {
	return t.open.Clone()
}

// TargetStatus is a read-only snapshot of one target's runtime state.
type TargetStatus struct {
	Target               models.Target        `json:"target"`
	ConsecutiveFailures  int                  `json:"consecutive_failures"`
	ConsecutiveSuccesses int                  `json:"consecutive_successes"`
	LastOutcome          *models.ProbeOutcome `json:"last_outcome,omitempty"`
}

// TargetStatuses returns snapshots for all tracked targets, ordered by
// target name.
func (t *Tracker) TargetStatuses() []TargetStatus {
	out := make([]TargetStatus, 0, len(t.targets))
	for _, ts := range t.targets {
		status := TargetStatus{
			Target:               ts.target,
			ConsecutiveFailures:  ts.consecutiveFailures,
			ConsecutiveSuccesses: ts.consecutiveSuccesses,
		}
		if ts.lastOutcome != nil {
			o := *ts.lastOutcome
			status.LastOutcome = &o
		}
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target.Name < out[j].Target.Name })
	return out
}
