package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"netwatch/internal/analyzer"
	"netwatch/internal/models"
	"netwatch/internal/probe"
)

func newTraceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trace [target]",
		Short: "Run a manual traceroute",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			target := cfg.PrimaryTraceTarget()
			if len(args) > 0 {
				target = args[0]
			}

			tracer := probe.NewExecTracer(cfg.Trace.Timeout(), cfg.Trace.MaxHops, logger)
			fmt.Printf("Tracing route to %s...\n\n", target)
			snapshot := tracer.Trace(cmd.Context(), target, models.TriggerManual)

			if len(snapshot.Hops) == 0 {
				fmt.Println("No hops returned; traceroute may be unavailable on this host.")
				return nil
			}
			for _, hop := range snapshot.Hops {
				if hop.Timeout {
					fmt.Printf("  %2d  *\n", hop.Number)
					continue
				}
				if hop.RTTMS != nil {
					fmt.Printf("  %2d  %-15s  %.1fms\n", hop.Number, hop.Address, *hop.RTTMS)
				} else {
					fmt.Printf("  %2d  %-15s\n", hop.Number, hop.Address)
				}
			}

			fmt.Println()
			switch {
			case snapshot.Reached:
				fmt.Println("Target reached.")
			default:
				if culprit, ok := analyzer.IdentifyCulprit(snapshot); ok {
					fmt.Printf("Path breaks after hop %d (%s, %s).\n",
						culprit.Hop, culprit.Address, models.HopLabel(culprit.Hop))
				} else {
					fmt.Println("No hop responded; unable to localize the failure.")
				}
			}
			return nil
		},
	}
}
