package probe

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"netwatch/internal/models"
)

const outcomeBuffer = 100

// Scheduler probes every target once per interval tick, concurrently,
// and publishes each completion on a single outcomes channel. A slow
// target never delays the other targets' next round, and no target ever
// has two probes in flight at once.
type Scheduler struct {
	interval time.Duration
	targets  []models.Target
	pinger   Pinger
	logger   zerolog.Logger

	outcomes chan models.ProbeOutcome

	mu       sync.Mutex
	inflight map[string]bool

	wg     sync.WaitGroup
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewScheduler creates a scheduler for the given targets and cadence.
func NewScheduler(interval time.Duration, targets []models.Target, pinger Pinger, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Scheduler{
		interval: interval,
		targets:  targets,
		pinger:   pinger,
		logger:   logger,
		outcomes: make(chan models.ProbeOutcome, outcomeBuffer),
		inflight: make(map[string]bool),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Outcomes returns the channel probe results arrive on. It is closed
// after Stop once all in-flight probes have completed.
func (s *Scheduler) Outcomes() <-chan models.ProbeOutcome {
	return s.outcomes
}

// Start launches the probing loop in a goroutine.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop halts scheduling of new rounds immediately and waits for
// in-flight probes to finish or time out naturally.
func (s *Scheduler) Stop() {
	select {
	case <-s.doneCh:
		return
	default:
	}
	close(s.stopCh)
	<-s.doneCh
}

func (s *Scheduler) run() {
	defer close(s.doneCh)
	defer close(s.outcomes)
	defer s.wg.Wait()

	s.probeRound()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.probeRound()
		case <-s.stopCh:
			return
		}
	}
}

// probeRound launches one probe per target, skipping targets whose
// previous probe has not completed yet.
func (s *Scheduler) probeRound() {
	for _, target := range s.targets {
		s.mu.Lock()
		if s.inflight[target.Address] {
			s.mu.Unlock()
			s.logger.Debug().Str("target", target.Address).Msg("probe still in flight, skipping round")
			continue
		}
		s.inflight[target.Address] = true
		s.mu.Unlock()

		s.wg.Add(1)
		go s.probeOne(target)
	}
}

func (s *Scheduler) probeOne(target models.Target) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.inflight, target.Address)
		s.mu.Unlock()
	}()

	res := s.pinger.Ping(context.Background(), target.Address)

	s.outcomes <- models.ProbeOutcome{
		ID:         uuid.NewString(),
		Target:     target.Address,
		TargetName: target.Name,
		Timestamp:  time.Now().UTC(),
		Success:    res.Success,
		LatencyMS:  res.LatencyMS,
		Error:      res.Error,
	}
}
