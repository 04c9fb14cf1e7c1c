// Package main provides the netwatch command line interface: the
// monitoring daemon plus reporting subcommands over its database.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"netwatch/internal/config"
	"netwatch/internal/recorder"
)

// Version is set at compile time via ldflags.
var Version = "dev"

var configPath string

func main() {
	root := &cobra.Command{
		Use:     "netwatch",
		Short:   "Single-host network connectivity monitor",
		Version: Version,
		Long: "netwatch probes a handful of network targets, tracks connectivity\n" +
			"through a debounced state machine, and records outages together with\n" +
			"the traceroute evidence of where the path broke.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file")

	root.AddCommand(
		newStartCmd(),
		newStatusCmd(),
		newOutagesCmd(),
		newStatsCmd(),
		newTraceCmd(),
		newCleanupCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func openStore(cfg config.Config) (*recorder.SQLiteStore, error) {
	if err := os.MkdirAll(cfg.DataDirectory, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	store, err := recorder.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return store, nil
}
