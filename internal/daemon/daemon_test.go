package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netwatch/internal/config"
	"netwatch/internal/models"
	"netwatch/internal/recorder"
)

func newTestDaemon(t *testing.T) (*Daemon, *recorder.SQLiteStore) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Targets = []models.Target{
		{Name: "Google DNS", Address: "8.8.8.8", Role: models.RoleResolver},
		{Name: "Cloudflare", Address: "1.1.1.1", Role: models.RoleResolver},
	}
	require.NoError(t, cfg.Validate())

	store, err := recorder.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	d, err := New(cfg, store, zerolog.Nop())
	require.NoError(t, err)
	return d, store
}

func TestInitialSnapshot(t *testing.T) {
	d, _ := newTestDaemon(t)

	snap := d.Snapshot()
	assert.Equal(t, models.StateOnline, snap.State)
	assert.Len(t, snap.Targets, 2)
	assert.Nil(t, snap.OpenIncident)
}

func TestNewRejectsEmptyTargets(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Targets = []models.Target{}

	store, err := recorder.OpenInMemory()
	require.NoError(t, err)
	defer store.Close()

	_, err = New(cfg, store, zerolog.Nop())
	assert.ErrorIs(t, err, config.ErrNoTargets)
}

func TestSampleProbeWritesOnlyOnChange(t *testing.T) {
	d, store := newTestDaemon(t)
	ctx := context.Background()
	now := time.Now().UTC()

	latency := 14.2
	up := models.ProbeOutcome{
		Timestamp: now, Target: "8.8.8.8", TargetName: "Google DNS",
		Success: true, LatencyMS: &latency,
	}

	d.sampleProbe(up)
	d.sampleProbe(up)
	d.sampleProbe(up)

	history, err := store.ProbeHistory(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Len(t, history, 1, "steady state must not grow the probe log")

	// same target goes down: that is a change
	down := up
	down.Success = false
	down.LatencyMS = nil
	d.sampleProbe(down)

	// and a materially different latency is a change too
	jump := 47.0
	up2 := up
	up2.LatencyMS = &jump
	d.sampleProbe(up2)

	history, err = store.ProbeHistory(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestSubscribeReceivesPublishedSnapshots(t *testing.T) {
	d, _ := newTestDaemon(t)

	feed := d.Subscribe()
	defer d.Unsubscribe(feed)

	d.publish()

	select {
	case snap := <-feed:
		assert.Equal(t, models.StateOnline, snap.State)
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}
}

func TestStatsFromPersistedHistory(t *testing.T) {
	d, store := newTestDaemon(t)
	ctx := context.Background()
	now := time.Now().UTC()

	latency := 9.9
	require.NoError(t, store.RecordProbe(ctx, models.ProbeOutcome{
		Timestamp: now.Add(-10 * time.Minute), Target: "8.8.8.8", TargetName: "Google DNS",
		Success: true, LatencyMS: &latency,
	}))
	require.NoError(t, store.RecordProbe(ctx, models.ProbeOutcome{
		Timestamp: now.Add(-5 * time.Minute), Target: "8.8.8.8", TargetName: "Google DNS",
		Success: false,
	}))

	incident := models.NewIncident(models.KindOutage, now.Add(-30*time.Minute), []string{"8.8.8.8"})
	id, err := store.OpenIncident(ctx, incident)
	require.NoError(t, err)
	require.NoError(t, store.CloseIncident(ctx, id, now.Add(-25*time.Minute), 300, ""))

	stats, err := d.Stats(ctx, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalProbes)
	assert.Equal(t, 1, stats.FailedProbes)
	assert.Equal(t, 1, stats.Outages)
	assert.InDelta(t, 300.0, stats.TotalDowntimeSecs, 0.001)
}

func TestRunCleanupRemovesExpiredRows(t *testing.T) {
	d, store := newTestDaemon(t)
	ctx := context.Background()
	old := time.Now().UTC().AddDate(0, 0, -120)

	id, err := store.OpenIncident(ctx, models.NewIncident(models.KindOutage, old, []string{"8.8.8.8"}))
	require.NoError(t, err)
	require.NoError(t, store.CloseIncident(ctx, id, old.Add(time.Minute), 60, ""))

	d.runCleanup()

	incidents, err := store.ListIncidents(ctx, old.Add(-time.Hour), time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, incidents)
}
