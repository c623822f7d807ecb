package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fieldsync/fieldsync/internal/config"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(config.WithConfigPath(args[0]))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Valid configuration\n")
			_, _ = fmt.Fprintf(out, "  Device: %s\n", cfg.GetDeviceName())
			_, _ = fmt.Fprintf(out, "  Remote: %s\n", cfg.Remote.BaseURL)
			_, _ = fmt.Fprintf(out, "  Storage: %s\n", cfg.Storage.GetType())
			intervals := cfg.Schedule.GetIntervals()
			for _, rt := range cfg.RecordTypes {
				_, _ = fmt.Fprintf(out, "  Record type %s: batch %d, every %s (%s)",
					rt.Name, rt.GetBatchSize(), intervals[rt.GetSyncInterval()], rt.GetSyncInterval())
				if rt.RequiresApprovedUser {
					_, _ = fmt.Fprint(out, ", requires approved user")
				}
				_, _ = fmt.Fprintln(out)
			}
			return nil
		},
	}
}
