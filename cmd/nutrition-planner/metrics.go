package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"nutrition-planner/internal/metrics"
)

func newUsageCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show token usage per day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, log, err := setup(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer a.Close()

			usage, err := a.Metrics().GetDailyUsage(cmd.Context(), days)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DATE\tCALLS\tPROMPT\tCOMPLETION\tTRUNCATED")
			for _, u := range usage {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", u.Date, u.TotalExecution, u.TotalPrompt, u.TotalCompletion, u.Truncated)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			h := metrics.GetSysHealth(a.Config().DatabasePath)
			fmt.Fprintf(cmd.OutOrStdout(), "\nDatabase: %s\n", h.DatabaseSize)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "number of days to show")
	return cmd
}

func newCleanupCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "metrics-cleanup",
		Short: "Remove old metric records and archived completions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, log, err := setup(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer a.Close()

			res, err := a.Cleanup(cmd.Context(), days)
			if err != nil {
				return fmt.Errorf("cleanup failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Successfully removed %d old metric records and %d archived completions.\n", res.Metrics, res.Completions)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "keep records for the last N days")
	return cmd
}
