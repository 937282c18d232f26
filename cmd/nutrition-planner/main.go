package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nutrition-planner",
		Short: "Generate and repair weekly nutrition plans",
		Long: `nutrition-planner asks a language model for a weekly nutrition plan and
turns its answer, even when truncated or loosely structured, into a
canonical seven-day plan.

Examples:
  # Generate and store a plan
  nutrition-planner generate --goal ganar_masa --intensity moderada --calories 2800

  # Re-run recovery over a saved completion, no API key needed
  nutrition-planner normalize --goal mantener --intensity baja completion.txt

  # Show the reference meal split
  nutrition-planner reference --goal perder_grasa --intensity alta`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newGenerateCmd(),
		newNormalizeCmd(),
		newReferenceCmd(),
		newUsageCmd(),
		newCleanupCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
