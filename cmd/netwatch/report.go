package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"netwatch/internal/metrics"
	"netwatch/internal/models"
	"netwatch/internal/probe"
)

const ruleLine = "═══════════════════════════════════════════════════════════"

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show current network status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			fmt.Println("Network Monitor Status")
			fmt.Println(ruleLine)
			fmt.Println()

			targets := probe.ResolveTargets(cfg.Targets, logger)
			pinger := probe.NewExecPinger(cfg.Monitor.ProbeTimeout(), logger)

			fmt.Println("Target Health:")
			for _, target := range targets {
				result := pinger.Ping(cmd.Context(), target.Address)
				mark := "✗"
				detail := "timeout"
				if result.Success {
					mark = "✓"
					if result.LatencyMS != nil {
						detail = fmt.Sprintf("%.1fms", *result.LatencyMS)
					} else {
						detail = "ok"
					}
				} else if result.Error != "" {
					detail = result.Error
				}
				fmt.Printf("  %s %s (%s) - %s\n", mark, target.Name, target.Address, detail)
			}

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := computeStats(cmd.Context(), store, 24*time.Hour)
			if err != nil {
				return err
			}

			fmt.Println("\nLast 24 Hours:")
			fmt.Printf("  Availability: %s %.2f%%\n", progressBar(stats.AvailabilityPercent, 20), stats.AvailabilityPercent)
			fmt.Printf("  Outages: %d\n", stats.Outages)
			if stats.TotalDowntimeSecs > 0 {
				fmt.Printf("  Total downtime: %s\n", formatDurationSecs(stats.TotalDowntimeSecs))
			}
			if stats.Outages > 0 {
				fmt.Printf("  Avg outage duration: %s\n", formatDurationSecs(stats.AverageOutageSecs))
			}

			ongoing, err := store.OngoingIncident(cmd.Context())
			if err != nil {
				return err
			}
			if ongoing != nil {
				duration := time.Since(ongoing.StartTime).Seconds()
				fmt.Println("\nONGOING INCIDENT:")
				fmt.Printf("  Kind: %s\n", ongoing.Kind)
				fmt.Printf("  Started: %s\n", ongoing.StartTime.Local().Format("2006-01-02 15:04:05"))
				fmt.Printf("  Duration: %s\n", formatDurationSecs(duration))
				if ongoing.CulpritHop != nil {
					address := ongoing.CulpritAddress
					if address == "" {
						address = "unknown"
					}
					fmt.Printf("  Culprit hop: %d (%s)\n", *ongoing.CulpritHop, address)
				}
			}
			return nil
		},
	}
}

func newOutagesCmd() *cobra.Command {
	var last string

	cmd := &cobra.Command{
		Use:   "outages",
		Short: "List recent outages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			window, err := parseWindow(last)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			until := time.Now().UTC()
			incidents, err := store.ListIncidents(cmd.Context(), until.Add(-window), until)
			if err != nil {
				return err
			}
			outages := make([]*models.Incident, 0, len(incidents))
			for _, incident := range incidents {
				if incident.Kind == models.KindOutage {
					outages = append(outages, incident)
				}
			}

			fmt.Printf("Recent Outages (last %s)\n", last)
			fmt.Println(ruleLine)
			fmt.Println()

			if len(outages) == 0 {
				fmt.Println("No outages recorded in this period.")
				return nil
			}

			fmt.Printf("%-19s  %8s  %12s  Affected Targets\n", "Start Time", "Duration", "Culprit Hop")
			fmt.Println(strings.Repeat("─", 65))
			var totalDowntime float64
			for _, outage := range outages {
				printOutageRow(outage)
				if outage.DurationSecs != nil {
					totalDowntime += *outage.DurationSecs
				}
			}
			fmt.Println(strings.Repeat("─", 65))

			fmt.Printf("\nSummary: %d outage%s, %s total downtime\n",
				len(outages), plural(len(outages)), formatDurationSecs(totalDowntime))

			stats := metrics.Compute(outages, nil, until.Add(-window), until)
			if c := stats.MostCommonCulprit; c != nil {
				fmt.Printf("Most common culprit hop: %d (%s) - %d occurrence%s\n",
					c.Hop, c.Label, c.Outages, plural(c.Outages))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&last, "last", "l", "24h", `time period (e.g. "24h", "7d", "30d")`)
	return cmd
}

func newStatsCmd() *cobra.Command {
	var period string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show connectivity statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			window, err := parseWindow(period)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := computeStats(cmd.Context(), store, window)
			if err != nil {
				return err
			}

			fmt.Printf("Statistics (last %s)\n", period)
			fmt.Println(ruleLine)
			fmt.Println()
			fmt.Printf("Period: %s → %s\n",
				stats.WindowStart.Local().Format("2006-01-02 15:04"),
				stats.WindowEnd.Local().Format("2006-01-02 15:04"))

			fmt.Println("\nAvailability:")
			fmt.Printf("  %s %.3f%%\n", progressBar(stats.AvailabilityPercent, 40), stats.AvailabilityPercent)
			if stats.AverageLatencyMS != nil {
				fmt.Printf("  Average latency: %.1fms\n", *stats.AverageLatencyMS)
			}

			fmt.Println("\nOutages:")
			fmt.Printf("  Total: %d\n", stats.Outages)
			if stats.DegradedEpisodes > 0 {
				fmt.Printf("  Degraded episodes: %d\n", stats.DegradedEpisodes)
			}
			if stats.TotalDowntimeSecs > 0 {
				fmt.Printf("  Total downtime: %s\n", formatDurationSecs(stats.TotalDowntimeSecs))
			}
			if stats.Outages > 0 {
				fmt.Printf("  Average duration: %s\n", formatDurationSecs(stats.AverageOutageSecs))
				fmt.Printf("  Longest: %s\n", formatDurationSecs(stats.LongestOutageSecs))
			}
			if c := stats.MostCommonCulprit; c != nil {
				fmt.Println("\nCulprit Hop Analysis:")
				fmt.Printf("  Hop %d (%s): %d outage%s\n", c.Hop, c.Label, c.Outages, plural(c.Outages))
			}

			if len(stats.PerTarget) > 0 {
				fmt.Println("\nPer Target:")
				for _, t := range stats.PerTarget {
					line := fmt.Sprintf("  %-16s %.2f%% (%d probes", truncate(t.Name, 16), t.AvailabilityPercent, t.TotalProbes)
					if t.AverageLatencyMS != nil {
						line += fmt.Sprintf(", avg %.1fms", *t.AverageLatencyMS)
					}
					fmt.Println(line + ")")
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&period, "period", "p", "24h", `time period (e.g. "24h", "7d", "30d")`)
	return cmd
}

func printOutageRow(outage *models.Incident) {
	start := outage.StartTime.Local().Format("2006-01-02 15:04:05")

	duration := "ongoing"
	if outage.DurationSecs != nil {
		duration = formatDurationSecs(*outage.DurationSecs)
	}

	hop := "unknown"
	if outage.CulpritHop != nil {
		if outage.CulpritAddress != "" {
			hop = fmt.Sprintf("%d (%s)", *outage.CulpritHop, truncate(outage.CulpritAddress, 8))
		} else {
			hop = fmt.Sprintf("%d", *outage.CulpritHop)
		}
	}

	fmt.Printf("%-19s  %8s  %12s  %s\n", start, duration, hop, strings.Join(outage.AffectedTargets, ", "))
}

func computeStats(ctx context.Context, store statsSource, window time.Duration) (metrics.Stats, error) {
	end := time.Now().UTC()
	start := end.Add(-window)

	incidents, err := store.ListIncidents(ctx, start, end)
	if err != nil {
		return metrics.Stats{}, err
	}
	probes, err := store.ProbeHistory(ctx, start)
	if err != nil {
		return metrics.Stats{}, err
	}
	return metrics.Compute(incidents, probes, start, end), nil
}

type statsSource interface {
	ListIncidents(ctx context.Context, since, until time.Time) ([]*models.Incident, error)
	ProbeHistory(ctx context.Context, since time.Time) ([]models.ProbeOutcome, error)
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
