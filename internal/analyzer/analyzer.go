// Package analyzer reacts to connectivity state transitions by running
// path traces, identifying the hop where the path goes silent, and
// recording incidents and trace snapshots. It never blocks the outcome
// processing loop: traces run as independent goroutines.
package analyzer

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"netwatch/internal/config"
	"netwatch/internal/models"
	"netwatch/internal/probe"
	"netwatch/internal/recorder"
	"netwatch/internal/tracker"
)

// activeIncident is the analyzer's own bookkeeping for the incident that
// is currently open. id stays zero until the recorder accepts the open;
// every later mutation retries the open first.
type activeIncident struct {
	incident   *models.Incident
	id         int64
	traceCount int
}

// Analyzer subscribes to state machine events and manages path tracing
// and incident persistence.
type Analyzer struct {
	cfg     config.TraceConfig
	primary string
	tracer  probe.Tracer
	rec     recorder.Recorder
	logger  zerolog.Logger

	mu           sync.Mutex
	active       *activeIncident
	periodicStop chan struct{}

	wg sync.WaitGroup
}

// New creates an analyzer that traces the given primary target.
func New(cfg config.TraceConfig, primary string, tracer probe.Tracer, rec recorder.Recorder, logger zerolog.Logger) *Analyzer {
	return &Analyzer{
		cfg:     cfg,
		primary: primary,
		tracer:  tracer,
		rec:     rec,
		logger:  logger,
	}
}

// HandleEvent processes one state transition. Recorder writes happen
// inline (bounded retry, failures absorbed); trace runs are dispatched
// to their own goroutines.
func (a *Analyzer) HandleEvent(event tracker.Event) {
	switch event.Kind {
	case tracker.EventDegraded:
		a.onDegraded(event)
	case tracker.EventOffline:
		a.onOffline(event)
	case tracker.EventDegradedRecovered, tracker.EventRecovered:
		a.onRecovered(event)
	}
}

func (a *Analyzer) onDegraded(event tracker.Event) {
	a.mu.Lock()
	active := &activeIncident{incident: event.Incident.Clone()}
	a.active = active
	a.ensureOpenLocked(active)
	active.traceCount++ // the early-warning trace counts toward the cap
	a.mu.Unlock()

	a.fireTrace(active, models.TriggerStateChange, false)
}

func (a *Analyzer) onOffline(event tracker.Event) {
	a.mu.Lock()

	// close the degraded episode and link it to the new outage
	episode := a.active
	if episode != nil && event.Escalated != nil {
		a.ensureOpenLocked(episode)
		if episode.id != 0 {
			end := *event.Escalated.EndTime
			a.persist("close degraded episode", func(ctx context.Context) error {
				return a.rec.CloseIncident(ctx, episode.id, end, *event.Escalated.DurationSecs, "")
			})
		}
	}

	outage := &activeIncident{incident: event.Incident.Clone()}
	a.active = outage
	a.ensureOpenLocked(outage)

	if episode != nil && episode.id != 0 && outage.id != 0 {
		episodeID, outageID := episode.id, outage.id
		a.persist("mark episode escalated", func(ctx context.Context) error {
			return a.rec.MarkEscalated(ctx, episodeID, outageID)
		})
	}

	outage.traceCount++
	a.startPeriodicLocked(outage)
	a.mu.Unlock()

	a.fireTrace(outage, models.TriggerStateChange, true)
}

func (a *Analyzer) onRecovered(event tracker.Event) {
	a.mu.Lock()
	active := a.active
	a.active = nil
	a.stopPeriodicLocked()
	if active != nil {
		a.ensureOpenLocked(active)
		if active.id != 0 && event.Incident != nil && event.Incident.EndTime != nil {
			id, end, dur := active.id, *event.Incident.EndTime, *event.Incident.DurationSecs
			a.persist("close incident", func(ctx context.Context) error {
				return a.rec.CloseIncident(ctx, id, end, dur, "")
			})
		}
	}
	a.mu.Unlock()
}

// ManualTrace runs a trace immediately regardless of state. It attaches
// to the open incident when there is one but never counts toward the
// per-outage cap.
func (a *Analyzer) ManualTrace(ctx context.Context, target string) models.TraceSnapshot {
	if target == "" {
		target = a.primary
	}
	snapshot := a.tracer.Trace(ctx, target, models.TriggerManual)

	a.mu.Lock()
	defer a.mu.Unlock()
	var id int64
	if a.active != nil {
		a.ensureOpenLocked(a.active)
		id = a.active.id
	}
	a.persist("attach manual trace", func(ctx context.Context) error {
		return a.rec.AttachTrace(ctx, id, snapshot)
	})
	return snapshot
}

// Shutdown stops periodic tracing, waits for in-flight traces, and
// closes an incident left open as interrupted rather than leaving it
// dangling.
func (a *Analyzer) Shutdown(now time.Time) {
	a.mu.Lock()
	active := a.active
	a.active = nil
	a.stopPeriodicLocked()
	a.mu.Unlock()

	a.wg.Wait()

	if active == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ensureOpenLocked(active)
	if active.id == 0 {
		return
	}
	duration := now.Sub(active.incident.StartTime).Seconds()
	a.persist("close interrupted incident", func(ctx context.Context) error {
		return a.rec.CloseIncident(ctx, active.id, now, duration, "interrupted by monitor shutdown")
	})
}

// fireTrace dispatches one trace run as an independent unit of work.
func (a *Analyzer) fireTrace(active *activeIncident, trigger models.TraceTrigger, identifyCulprit bool) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		snapshot := a.tracer.Trace(context.Background(), a.primary, trigger)
		a.attach(active, snapshot, identifyCulprit)
	}()
}

func (a *Analyzer) attach(active *activeIncident, snapshot models.TraceSnapshot, identifyCulprit bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.ensureOpenLocked(active)
	if active.id == 0 {
		a.logger.Error().Msg("incident not persisted yet, trace snapshot dropped")
		return
	}

	id := active.id
	a.persist("attach trace", func(ctx context.Context) error {
		return a.rec.AttachTrace(ctx, id, snapshot)
	})

	if !identifyCulprit {
		return
	}
	if culprit, ok := IdentifyCulprit(snapshot); ok {
		active.incident.CulpritHop = &culprit.Hop
		active.incident.CulpritAddress = culprit.Address
		a.logger.Info().
			Int("hop", culprit.Hop).
			Str("address", culprit.Address).
			Str("label", models.HopLabel(culprit.Hop)).
			Msg("culprit hop identified")
		a.persist("set culprit", func(ctx context.Context) error {
			return a.rec.SetCulprit(ctx, id, culprit.Hop, culprit.Address)
		})
	} else if snapshot.Reached {
		a.logger.Info().Msg("trace reached target, transient failure with no path evidence")
	} else {
		a.logger.Info().Msg("no hop responded, culprit unidentified")
	}
}

// startPeriodicLocked launches the periodic trace loop for an outage.
func (a *Analyzer) startPeriodicLocked(active *activeIncident) {
	a.stopPeriodicLocked()
	stop := make(chan struct{})
	a.periodicStop = stop

	a.wg.Add(1)
	go a.runPeriodic(active, stop)
}

func (a *Analyzer) stopPeriodicLocked() {
	if a.periodicStop != nil {
		close(a.periodicStop)
		a.periodicStop = nil
	}
}

// runPeriodic fires a trace every interval while the outage lasts, up
// to the per-outage cap. The cap is a hard bound on stored traces, not
// a rate limit.
func (a *Analyzer) runPeriodic(active *activeIncident, stop chan struct{}) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			a.mu.Lock()
			if active.traceCount >= a.cfg.MaxPerOutage {
				a.mu.Unlock()
				a.logger.Debug().Int("cap", a.cfg.MaxPerOutage).Msg("trace cap reached for outage, suppressing periodic traces")
				return
			}
			active.traceCount++
			a.mu.Unlock()

			snapshot := a.tracer.Trace(context.Background(), a.primary, models.TriggerPeriodic)
			a.attach(active, snapshot, false)
		}
	}
}

// ensureOpenLocked retries persisting the incident open if an earlier
// attempt failed; the in-memory incident keeps its data either way.
func (a *Analyzer) ensureOpenLocked(active *activeIncident) {
	if active.id != 0 {
		return
	}
	var id int64
	err := a.retry(func(ctx context.Context) error {
		var err error
		id, err = a.rec.OpenIncident(ctx, active.incident)
		return err
	})
	if err != nil {
		a.logger.Error().Err(err).Str("kind", string(active.incident.Kind)).
			Msg("failed to persist incident open, will retry on next mutation")
		return
	}
	active.id = id
	active.incident.ID = id
}

// persist runs a recorder write with bounded retry and absorbs the
// failure; monitoring liveness never depends on persistence.
func (a *Analyzer) persist(what string, op func(context.Context) error) {
	if err := a.retry(op); err != nil {
		a.logger.Error().Err(err).Str("op", what).Msg("persistence failure")
	}
}

func (a *Analyzer) retry(op func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = 2 * time.Second

	return backoff.Retry(func() error {
		return op(ctx)
	}, backoff.WithContext(backoff.WithMaxRetries(bo, 3), ctx))
}

// IdentifyCulprit scans a trace in reverse for the last hop that
// responded. No culprit exists when the trace reached the target (a
// transient failure) or when every hop timed out; both are valid,
// expected outcomes.
func IdentifyCulprit(snapshot models.TraceSnapshot) (models.Culprit, bool) {
	if snapshot.Reached {
		return models.Culprit{}, false
	}
	for i := len(snapshot.Hops) - 1; i >= 0; i-- {
		hop := snapshot.Hops[i]
		if !hop.Timeout && hop.Address != "" {
			return models.Culprit{Hop: hop.Number, Address: hop.Address}, true
		}
	}
	return models.Culprit{}, false
}
