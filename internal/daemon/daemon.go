// Package daemon wires the probe scheduler, the connectivity state
// machine, and the culprit analyzer into one long-running monitor.
package daemon

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"netwatch/internal/analyzer"
	"netwatch/internal/config"
	"netwatch/internal/metrics"
	"netwatch/internal/models"
	"netwatch/internal/probe"
	"netwatch/internal/recorder"
	"netwatch/internal/tracker"
)

// Store is the persistence surface the daemon and its HTTP server need.
// *recorder.SQLiteStore satisfies it.
type Store interface {
	recorder.Recorder

	RecordProbe(ctx context.Context, outcome models.ProbeOutcome) error
	OngoingIncident(ctx context.Context) (*models.Incident, error)
	ListIncidents(ctx context.Context, since, until time.Time) ([]*models.Incident, error)
	TracesForIncident(ctx context.Context, incidentID int64) ([]models.TraceSnapshot, error)
	ProbeHistory(ctx context.Context, since time.Time) ([]models.ProbeOutcome, error)
	Cleanup(ctx context.Context, retentionDays int) (int64, error)
}

// StatusSnapshot is the daemon's current view, safe to hand to other
// goroutines.
type StatusSnapshot struct {
	Timestamp    time.Time                `json:"timestamp"`
	State        models.ConnectivityState `json:"state"`
	Targets      []tracker.TargetStatus   `json:"targets"`
	OpenIncident *models.Incident         `json:"open_incident,omitempty"`
}

// probeSample is the deduplication key for the probe log: a sample is
// written only when a target's reachability or rounded latency moves.
type probeSample struct {
	success   bool
	latencyMS int
}

// Daemon owns the monitoring pipeline. A single goroutine consumes
// probe outcomes and drives the tracker, so the state machine needs no
// locking of its own.
type Daemon struct {
	cfg    config.Config
	logger zerolog.Logger
	store  Store

	scheduler *probe.Scheduler
	tracker   *tracker.Tracker
	analyzer  *analyzer.Analyzer
	cron      *cron.Cron

	mu          sync.Mutex
	snapshot    StatusSnapshot
	lastSamples map[string]probeSample
	subscribers map[chan StatusSnapshot]struct{}

	doneCh chan struct{}
}

// New assembles a daemon from validated configuration. Gateway targets
// without an address are resolved from the routing table; unresolvable
// ones are dropped with a warning.
func New(cfg config.Config, store Store, logger zerolog.Logger) (*Daemon, error) {
	targets := probe.ResolveTargets(cfg.Targets, logger)
	if len(targets) == 0 {
		return nil, config.ErrNoTargets
	}

	pinger := probe.NewExecPinger(cfg.Monitor.ProbeTimeout(), logger)
	tracer := probe.NewExecTracer(cfg.Trace.Timeout(), cfg.Trace.MaxHops, logger)

	primary := cfg.PrimaryTraceTarget()
	trk := tracker.New(cfg.Monitor, targets, logger)
	an := analyzer.New(cfg.Trace, primary, tracer, store, logger)
	sched := probe.NewScheduler(cfg.Monitor.ProbeInterval(), targets, pinger, logger)

	d := &Daemon{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		scheduler:   sched,
		tracker:     trk,
		analyzer:    an,
		cron:        cron.New(),
		lastSamples: make(map[string]probeSample),
		subscribers: make(map[chan StatusSnapshot]struct{}),
		doneCh:      make(chan struct{}),
	}
	d.snapshot = StatusSnapshot{
		Timestamp: time.Now().UTC(),
		State:     models.StateOnline,
		Targets:   trk.TargetStatuses(),
	}

	if _, err := d.cron.AddFunc(cfg.Database.CleanupSchedule, d.runCleanup); err != nil {
		return nil, err
	}
	return d, nil
}

// Start launches the scheduler, the outcome consumer, and the retention
// cron.
func (d *Daemon) Start() {
	d.logger.Info().
		Dur("interval", d.cfg.Monitor.ProbeInterval()).
		Int("targets", len(d.cfg.Targets)).
		Msg("starting connectivity monitor")
	d.scheduler.Start()
	go d.run()
	d.cron.Start()
}

// Stop shuts the pipeline down in order: probes stop (in-flight ones
// finish), the consumer drains, then the analyzer annotates any open
// incident as interrupted.
func (d *Daemon) Stop() {
	d.cron.Stop()
	d.scheduler.Stop()
	<-d.doneCh
	d.analyzer.Shutdown(time.Now().UTC())
	d.logger.Info().Msg("connectivity monitor stopped")
}

func (d *Daemon) run() {
	defer close(d.doneCh)
	for outcome := range d.scheduler.Outcomes() {
		event, changed := d.tracker.Process(outcome)
		d.sampleProbe(outcome)
		if changed {
			d.logTransition(event)
			d.analyzer.HandleEvent(event)
		}
		d.publish()
	}
}

func (d *Daemon) logTransition(event tracker.Event) {
	entry := d.logger.Warn()
	if event.State == models.StateOnline {
		entry = d.logger.Info()
	}
	entry.Str("state", string(event.State)).
		Strs("failing_targets", event.FailingTargets).
		Msg("connectivity state changed")
}

// sampleProbe writes a probe log row when a target's situation moved,
// keeping the log compact under steady state.
func (d *Daemon) sampleProbe(outcome models.ProbeOutcome) {
	sample := probeSample{success: outcome.Success}
	if outcome.LatencyMS != nil {
		sample.latencyMS = int(math.Round(*outcome.LatencyMS))
	}

	d.mu.Lock()
	prev, seen := d.lastSamples[outcome.TargetName]
	d.lastSamples[outcome.TargetName] = sample
	d.mu.Unlock()
	if seen && prev == sample {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.store.RecordProbe(ctx, outcome); err != nil {
		d.logger.Error().Err(err).Str("target", outcome.TargetName).Msg("failed to record probe sample")
	}
}

// publish refreshes the cached snapshot and fans it out to subscribers
// without blocking on slow consumers.
func (d *Daemon) publish() {
	snap := StatusSnapshot{
		Timestamp:    time.Now().UTC(),
		State:        d.tracker.State(),
		Targets:      d.tracker.TargetStatuses(),
		OpenIncident: d.tracker.OpenIncident(),
	}

	d.mu.Lock()
	d.snapshot = snap
	for ch := range d.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
	d.mu.Unlock()
}

// Snapshot returns the most recent status view.
func (d *Daemon) Snapshot() StatusSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshot
}

// Subscribe registers a status feed for push delivery. The channel is
// buffered; updates are dropped rather than blocking the pipeline.
func (d *Daemon) Subscribe() chan StatusSnapshot {
	ch := make(chan StatusSnapshot, 8)
	d.mu.Lock()
	d.subscribers[ch] = struct{}{}
	d.mu.Unlock()
	return ch
}

// Unsubscribe removes a feed registered with Subscribe.
func (d *Daemon) Unsubscribe(ch chan StatusSnapshot) {
	d.mu.Lock()
	delete(d.subscribers, ch)
	d.mu.Unlock()
}

// ManualTrace runs an on-demand trace through the analyzer.
func (d *Daemon) ManualTrace(ctx context.Context, target string) models.TraceSnapshot {
	return d.analyzer.ManualTrace(ctx, target)
}

// Stats computes window statistics from persisted history.
func (d *Daemon) Stats(ctx context.Context, window time.Duration) (metrics.Stats, error) {
	end := time.Now().UTC()
	start := end.Add(-window)

	incidents, err := d.store.ListIncidents(ctx, start, end)
	if err != nil {
		return metrics.Stats{}, err
	}
	probes, err := d.store.ProbeHistory(ctx, start)
	if err != nil {
		return metrics.Stats{}, err
	}
	return metrics.Compute(incidents, probes, start, end), nil
}

// Store exposes the persistence layer for read-side handlers.
func (d *Daemon) Store() Store {
	return d.store
}

// Config returns the daemon's configuration.
func (d *Daemon) Config() config.Config {
	return d.cfg
}

func (d *Daemon) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := d.store.Cleanup(ctx, d.cfg.Database.RetentionDays)
	if err != nil {
		d.logger.Error().Err(err).Msg("retention cleanup failed")
		return
	}
	d.logger.Info().Int64("rows", removed).Int("retention_days", d.cfg.Database.RetentionDays).Msg("retention cleanup complete")
}
