package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCleanupCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove records older than the retention window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			retention := cfg.Database.RetentionDays
			if days > 0 {
				retention = days
			}

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.Cleanup(cmd.Context(), retention)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d record%s older than %d days.\n", removed, plural(int(removed)), retention)
			return nil
		},
	}
	cmd.Flags().IntVarP(&days, "days", "d", 0, "days to retain (default from config)")
	return cmd
}
