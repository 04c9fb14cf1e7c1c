package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netwatch/internal/models"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.ListenAddr)
	assert.Equal(t, 2*time.Second, cfg.Monitor.ProbeInterval())
	assert.Equal(t, time.Second, cfg.Monitor.ProbeTimeout())
	assert.Equal(t, 3, cfg.Monitor.DegradedThreshold)
	assert.Equal(t, 5, cfg.Monitor.OfflineThreshold)
	assert.Equal(t, 2, cfg.Monitor.RecoveryThreshold)
	assert.Equal(t, time.Minute, cfg.Trace.Interval())
	assert.Equal(t, 5, cfg.Trace.MaxPerOutage)
	assert.Equal(t, 90, cfg.Database.RetentionDays)
	assert.NotEmpty(t, cfg.Database.Path, "database path must be derived")
	assert.Len(t, cfg.Targets, 3)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2000, cfg.Monitor.ProbeIntervalMS)
}

func TestLoadFromFile(t *testing.T) {
	content := `
listen_addr: ":9999"
data_directory: /tmp/netwatch-test
monitor:
  probe_interval_ms: 1000
  probe_timeout_ms: 500
  degraded_threshold: 2
  offline_threshold: 4
  recovery_threshold: 3
trace:
  traceroute_interval_seconds: 30
  max_traceroutes_per_outage: 3
targets:
  - name: Quad9
    address: 9.9.9.9
    role: resolver
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, time.Second, cfg.Monitor.ProbeInterval())
	assert.Equal(t, 500*time.Millisecond, cfg.Monitor.ProbeTimeout())
	assert.Equal(t, 2, cfg.Monitor.DegradedThreshold)
	assert.Equal(t, 4, cfg.Monitor.OfflineThreshold)
	assert.Equal(t, 30*time.Second, cfg.Trace.Interval())
	assert.Equal(t, filepath.Join("/tmp/netwatch-test", "netwatch.db"), cfg.Database.Path)
	require.Len(t, cfg.Targets, 1)
	assert.Equal(t, "Quad9", cfg.Targets[0].Name)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("targets: [\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	mutate := func(f func(*Config)) *Config {
		cfg := DefaultConfig()
		f(&cfg)
		return &cfg
	}

	tests := []struct {
		name    string
		cfg     *Config
		wantErr string
	}{
		{
			name: "timeout equal to interval",
			cfg: mutate(func(c *Config) {
				c.Monitor.ProbeTimeoutMS = c.Monitor.ProbeIntervalMS
			}),
			wantErr: "probe_timeout_ms",
		},
		{
			name: "offline threshold not above degraded",
			cfg: mutate(func(c *Config) {
				c.Monitor.OfflineThreshold = c.Monitor.DegradedThreshold
			}),
			wantErr: "offline_threshold",
		},
		{
			name:    "no targets",
			cfg:     mutate(func(c *Config) { c.Targets = nil }),
			wantErr: "at least one target",
		},
		{
			name: "resolver without address",
			cfg: mutate(func(c *Config) {
				c.Targets = []models.Target{{Name: "Broken", Role: models.RoleResolver}}
			}),
			wantErr: "must define an address",
		},
		{
			name: "zero recovery threshold",
			cfg: mutate(func(c *Config) {
				c.Monitor.RecoveryThreshold = 0
			}),
			wantErr: "recovery_threshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("defaults pass", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("gateway target may omit address", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Targets = []models.Target{{Name: "Gateway", Role: models.RoleGateway}}
		assert.NoError(t, cfg.Validate())
	})
}

func TestPrimaryTraceTarget(t *testing.T) {
	cfg := DefaultConfig()
	// skips the address-less gateway target
	assert.Equal(t, "8.8.8.8", cfg.PrimaryTraceTarget())

	cfg.Trace.PrimaryTarget = "9.9.9.9"
	assert.Equal(t, "9.9.9.9", cfg.PrimaryTraceTarget())
}
