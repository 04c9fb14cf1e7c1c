package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"netwatch/internal/models"
)

// ErrNoTargets is returned when no usable probe target remains.
var ErrNoTargets = errors.New("configuration must define at least one target")

// Config represents configuration data for the network monitor.
type Config struct {
	ListenAddr    string          `yaml:"listen_addr"`
	DataDirectory string          `yaml:"data_directory"`
	LogLevel      string          `yaml:"log_level"`
	Monitor       MonitorConfig   `yaml:"monitor"`
	Trace         TraceConfig     `yaml:"trace"`
	Database      DatabaseConfig  `yaml:"database"`
	Targets       []models.Target `yaml:"targets"`
}

// MonitorConfig controls probing cadence and the hysteresis thresholds.
type MonitorConfig struct {
	ProbeIntervalMS   int `yaml:"probe_interval_ms"`
	ProbeTimeoutMS    int `yaml:"probe_timeout_ms"`
	DegradedThreshold int `yaml:"degraded_threshold"`
	OfflineThreshold  int `yaml:"offline_threshold"`
	RecoveryThreshold int `yaml:"recovery_threshold"`
}

// TraceConfig controls path tracing during incidents.
type TraceConfig struct {
	IntervalSeconds int `yaml:"traceroute_interval_seconds"`
	MaxPerOutage    int `yaml:"max_traceroutes_per_outage"`
	TimeoutSeconds  int `yaml:"timeout_seconds"`
	MaxHops         int `yaml:"max_hops"`
	// PrimaryTarget is the address traced on state changes. Defaults to
	// the first configured target.
	PrimaryTarget string `yaml:"primary_target"`
}

// DatabaseConfig controls the incident store.
type DatabaseConfig struct {
	Path            string `yaml:"path"`
	RetentionDays   int    `yaml:"retention_days"`
	CleanupSchedule string `yaml:"cleanup_schedule"`
}

// ProbeInterval returns the probe cadence as a duration.
func (m MonitorConfig) ProbeInterval() time.Duration {
	return time.Duration(m.ProbeIntervalMS) * time.Millisecond
}

// ProbeTimeout returns the per-probe timeout as a duration.
func (m MonitorConfig) ProbeTimeout() time.Duration {
	return time.Duration(m.ProbeTimeoutMS) * time.Millisecond
}

// Interval returns the periodic trace cadence as a duration.
func (t TraceConfig) Interval() time.Duration {
	return time.Duration(t.IntervalSeconds) * time.Second
}

// Timeout returns the per-hop trace wait as a duration.
func (t TraceConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// DefaultConfig returns sensible defaults in case no configuration file is provided.
func DefaultConfig() Config {
	return Config{
		ListenAddr:    ":8090",
		DataDirectory: filepath.Join(".dist", "data"),
		LogLevel:      "info",
		Monitor: MonitorConfig{
			ProbeIntervalMS:   2000,
			ProbeTimeoutMS:    1000,
			DegradedThreshold: 3,
			OfflineThreshold:  5,
			RecoveryThreshold: 2,
		},
		Trace: TraceConfig{
			IntervalSeconds: 60,
			MaxPerOutage:    5,
			TimeoutSeconds:  2,
			MaxHops:         30,
		},
		Database: DatabaseConfig{
			RetentionDays:   90,
			CleanupSchedule: "0 3 * * *",
		},
		Targets: []models.Target{
			{Name: "Gateway", Role: models.RoleGateway},
			{Name: "Google DNS", Address: "8.8.8.8", Role: models.RoleResolver},
			{Name: "Cloudflare", Address: "1.1.1.1", Role: models.RoleResolver},
		},
	}
}

// Load reads configuration from a yaml file. An empty path or a missing
// file falls back to defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		content, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(content, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks threshold and interval invariants. The probe timeout
// must stay strictly below the interval so one round cannot outlive the
// next tick for the same target.
func (c *Config) Validate() error {
	if c.DataDirectory == "" {
		c.DataDirectory = DefaultConfig().DataDirectory
	}
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(c.DataDirectory, "netwatch.db")
	}
	if c.Monitor.ProbeIntervalMS <= 0 {
		return errors.New("monitor.probe_interval_ms must be positive")
	}
	if c.Monitor.ProbeTimeoutMS <= 0 || c.Monitor.ProbeTimeoutMS >= c.Monitor.ProbeIntervalMS {
		return errors.New("monitor.probe_timeout_ms must be positive and shorter than the probe interval")
	}
	if c.Monitor.DegradedThreshold < 1 {
		return errors.New("monitor.degraded_threshold must be at least 1")
	}
	if c.Monitor.OfflineThreshold <= c.Monitor.DegradedThreshold {
		return errors.New("monitor.offline_threshold must exceed monitor.degraded_threshold")
	}
	if c.Monitor.RecoveryThreshold < 1 {
		return errors.New("monitor.recovery_threshold must be at least 1")
	}
	if c.Trace.IntervalSeconds <= 0 {
		return errors.New("trace.traceroute_interval_seconds must be positive")
	}
	if c.Trace.MaxPerOutage < 1 {
		return errors.New("trace.max_traceroutes_per_outage must be at least 1")
	}
	if c.Trace.MaxHops <= 0 {
		c.Trace.MaxHops = DefaultConfig().Trace.MaxHops
	}
	if c.Trace.TimeoutSeconds <= 0 {
		c.Trace.TimeoutSeconds = DefaultConfig().Trace.TimeoutSeconds
	}
	if c.Database.RetentionDays <= 0 {
		c.Database.RetentionDays = DefaultConfig().Database.RetentionDays
	}
	if c.Database.CleanupSchedule == "" {
		c.Database.CleanupSchedule = DefaultConfig().Database.CleanupSchedule
	}
	if len(c.Targets) == 0 {
		return ErrNoTargets
	}
	for i, t := range c.Targets {
		if t.Name == "" {
			return fmt.Errorf("target %d is missing a name", i)
		}
		if t.Address == "" && t.Role != models.RoleGateway {
			return fmt.Errorf("target %q must define an address", t.Name)
		}
	}
	return nil
}

// PrimaryTraceTarget returns the address path traces run against.
func (c *Config) PrimaryTraceTarget() string {
	if c.Trace.PrimaryTarget != "" {
		return c.Trace.PrimaryTarget
	}
	for _, t := range c.Targets {
		if t.Address != "" && t.Role != models.RoleGateway {
			return t.Address
		}
	}
	if len(c.Targets) > 0 {
		return c.Targets[0].Address
	}
	return "8.8.8.8"
}
