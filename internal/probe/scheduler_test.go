package probe

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netwatch/internal/models"
)

// slowPinger blocks every probe until release is closed.
type slowPinger struct {
	release chan struct{}
}

func (p *slowPinger) Ping(_ context.Context, _ string) PingResult {
	<-p.release
	latency := 1.0
	return PingResult{Success: true, LatencyMS: &latency}
}

type instantPinger struct {
	mu    sync.Mutex
	calls int
}

func (p *instantPinger) Ping(_ context.Context, _ string) PingResult {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	latency := 2.0
	return PingResult{Success: true, LatencyMS: &latency}
}

func testTargets() []models.Target {
	return []models.Target{
		{Name: "Google DNS", Address: "8.8.8.8", Role: models.RoleResolver},
		{Name: "Cloudflare", Address: "1.1.1.1", Role: models.RoleResolver},
	}
}

func TestSchedulerDeliversOutcomes(t *testing.T) {
	sched := NewScheduler(20*time.Millisecond, testTargets(), &instantPinger{}, zerolog.Nop())
	sched.Start()

	seen := make(map[string]int)
	deadline := time.After(2 * time.Second)
	for len(seen) < 2 || seen["8.8.8.8"] < 2 || seen["1.1.1.1"] < 2 {
		select {
		case o, ok := <-sched.Outcomes():
			require.True(t, ok, "outcomes channel closed early")
			assert.True(t, o.Success)
			assert.NotEmpty(t, o.ID)
			assert.NotNil(t, o.LatencyMS)
			seen[o.Target]++
		case <-deadline:
			t.Fatalf("timed out waiting for outcomes, saw %v", seen)
		}
	}

	sched.Stop()
	// drain until close
	for range sched.Outcomes() {
	}
}

func TestSchedulerSkipsTargetWithProbeInFlight(t *testing.T) {
	pinger := &slowPinger{release: make(chan struct{})}
	sched := NewScheduler(10*time.Millisecond, testTargets(), pinger, zerolog.Nop())
	sched.Start()

	// roughly ten ticks pass while every probe is stuck
	time.Sleep(100 * time.Millisecond)
	close(pinger.release)
	sched.Stop()

	counts := make(map[string]int)
	for o := range sched.Outcomes() {
		counts[o.Target]++
	}
	// rounds fired while a probe was in flight must be skipped, not
	// stacked; at most one extra round fits between release and Stop
	for _, addr := range []string{"8.8.8.8", "1.1.1.1"} {
		assert.GreaterOrEqual(t, counts[addr], 1, addr)
		assert.LessOrEqual(t, counts[addr], 2, addr)
	}
}

func TestSchedulerStopClosesOutcomes(t *testing.T) {
	pinger := &instantPinger{}
	sched := NewScheduler(time.Hour, testTargets(), pinger, zerolog.Nop())
	sched.Start()

	// initial round
	<-sched.Outcomes()
	<-sched.Outcomes()

	sched.Stop()

	pinger.mu.Lock()
	assert.Equal(t, 2, pinger.calls, "one probe per target before Stop")
	pinger.mu.Unlock()
	_, ok := <-sched.Outcomes()
	assert.False(t, ok, "outcomes must close after Stop")

	// Stop is idempotent
	sched.Stop()
}
