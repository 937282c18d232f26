package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"nutrition-planner/internal/app"
	"nutrition-planner/internal/nutrition"
	"nutrition-planner/internal/storage"
)

func newNormalizeCmd() *cobra.Command {
	var (
		goal, intensity string
		calories        float64
		tablePath       string
		archiveDir      string
		requestID       string
		format          string
	)

	cmd := &cobra.Command{
		Use:   "normalize [file|-]",
		Short: "Recover and normalize a saved completion offline",
		Long: `Runs the sanitizer, recovery parser and normalizer over raw completion
text read from a file, from stdin ("-" or no argument) or from the
completion archive (--request-id). The canonical plan is written to
stdout and the repair report to stderr.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if requestID != "" && len(args) > 0 {
				return errors.New("use either a file argument or --request-id")
			}
			if format != "json" && format != "text" {
				return fmt.Errorf("unknown format %q", format)
			}
			req, err := planRequest(goal, intensity, calories)
			if err != nil {
				return err
			}

			raw, err := readCompletion(cmd, args, archiveDir, requestID)
			if err != nil {
				return err
			}

			table := nutrition.DefaultReferenceTable()
			if tablePath != "" {
				if table, err = nutrition.LoadReferenceTable(tablePath); err != nil {
					return err
				}
			}

			plan, report, err := nutrition.NewNormalizer(table).FromCompletion(raw, nutrition.Context{
				Goal:          req.Goal,
				Intensity:     req.Intensity,
				DailyCalories: req.DailyCalories,
			})
			if err != nil {
				return err
			}
			if err := nutrition.Validate(plan); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format == "text" {
				app.WritePlan(out, plan)
			} else {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(plan); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Recovery: %s\n", report.Strategy)
			app.WriteReport(cmd.ErrOrStderr(), report)
			return nil
		},
	}

	cmd.Flags().StringVar(&goal, "goal", string(nutrition.GoalMaintain), "goal used for the reference distribution")
	cmd.Flags().StringVar(&intensity, "intensity", string(nutrition.IntensityModerate), "intensity used for the reference distribution")
	cmd.Flags().Float64Var(&calories, "calories", 0, "daily calories to use when the completion has none")
	cmd.Flags().StringVar(&tablePath, "table", envOr("DISTRIBUTION_TABLE_PATH", ""), "YAML reference distribution table")
	cmd.Flags().StringVar(&archiveDir, "archive", envOr("COMPLETION_ARCHIVE_PATH", "data/completions"), "completion archive directory")
	cmd.Flags().StringVar(&requestID, "request-id", "", "read the latest archived completion of this request")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or text")
	return cmd
}

func readCompletion(cmd *cobra.Command, args []string, archiveDir, requestID string) (string, error) {
	if requestID != "" {
		archive, err := storage.NewCompletionArchive(archiveDir)
		if err != nil {
			return "", err
		}
		return archive.Load(requestID)
	}

	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to read completion: %w", err)
	}
	return string(data), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
