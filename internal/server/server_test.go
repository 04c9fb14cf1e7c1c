package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netwatch/internal/config"
	"netwatch/internal/daemon"
	"netwatch/internal/models"
	"netwatch/internal/recorder"
)

func newTestServer(t *testing.T) (*httptest.Server, *recorder.SQLiteStore) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Targets = []models.Target{
		{Name: "Google DNS", Address: "8.8.8.8", Role: models.RoleResolver},
	}
	require.NoError(t, cfg.Validate())

	store, err := recorder.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	d, err := daemon.New(cfg, store, zerolog.Nop())
	require.NoError(t, err)

	srv := New(cfg.ListenAddr, d, zerolog.Nop())
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, store
}

func getJSON(t *testing.T, url string, out any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestStatusEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	var snap daemon.StatusSnapshot
	getJSON(t, ts.URL+"/api/status", &snap)

	assert.Equal(t, models.StateOnline, snap.State)
	require.Len(t, snap.Targets, 1)
	assert.Equal(t, "Google DNS", snap.Targets[0].Target.Name)
	assert.Nil(t, snap.OpenIncident)
}

func TestIncidentsEndpoint(t *testing.T) {
	ts, store := newTestServer(t)

	var incidents []*models.Incident
	getJSON(t, ts.URL+"/api/incidents", &incidents)
	assert.Empty(t, incidents)

	start := time.Now().UTC().Add(-time.Hour)
	incident := models.NewIncident(models.KindOutage, start, []string{"8.8.8.8"})
	_, err := store.OpenIncident(context.Background(), incident)
	require.NoError(t, err)

	getJSON(t, ts.URL+"/api/incidents?days=2", &incidents)
	require.Len(t, incidents, 1)
	assert.Equal(t, models.KindOutage, incidents[0].Kind)
}

func TestIncidentTracesEndpoint(t *testing.T) {
	ts, store := newTestServer(t)

	id, err := store.OpenIncident(context.Background(),
		models.NewIncident(models.KindOutage, time.Now().UTC(), []string{"8.8.8.8"}))
	require.NoError(t, err)

	require.NoError(t, store.AttachTrace(context.Background(), id, models.TraceSnapshot{
		Target:    "8.8.8.8",
		Timestamp: time.Now().UTC(),
		Trigger:   models.TriggerStateChange,
		Hops:      []models.HopResult{{Number: 1, Address: "192.168.1.1"}},
	}))

	var traces []models.TraceSnapshot
	getJSON(t, ts.URL+"/api/incidents/1/traces", &traces)
	require.Len(t, traces, 1)
	assert.Equal(t, models.TriggerStateChange, traces[0].Trigger)

	resp, err := http.Get(ts.URL + "/api/incidents/zero/traces")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatsEndpoint(t *testing.T) {
	ts, store := newTestServer(t)

	latency := 12.0
	require.NoError(t, store.RecordProbe(context.Background(), models.ProbeOutcome{
		Timestamp: time.Now().UTC().Add(-time.Minute),
		Target:    "8.8.8.8", TargetName: "Google DNS",
		Success: true, LatencyMS: &latency,
	}))

	var stats struct {
		AvailabilityPercent float64 `json:"availability_percent"`
		TotalProbes         int     `json:"total_probes"`
	}
	getJSON(t, ts.URL+"/api/stats?hours=1", &stats)
	assert.Equal(t, 1, stats.TotalProbes)
	assert.InDelta(t, 100.0, stats.AvailabilityPercent, 0.001)
}

func TestTimelineEndpoint(t *testing.T) {
	ts, store := newTestServer(t)

	require.NoError(t, store.RecordProbe(context.Background(), models.ProbeOutcome{
		Timestamp: time.Now().UTC().Add(-time.Minute),
		Target:    "8.8.8.8", TargetName: "Google DNS",
		Success: false,
	}))

	var timelines []struct {
		Target   string `json:"target"`
		Timeline []struct {
			ClassName string `json:"class_name"`
		} `json:"timeline"`
	}
	getJSON(t, ts.URL+"/api/timeline?hours=1&points=10", &timelines)
	require.Len(t, timelines, 1)
	assert.Equal(t, "Google DNS", timelines[0].Target)
	assert.Len(t, timelines[0].Timeline, 10)
}
