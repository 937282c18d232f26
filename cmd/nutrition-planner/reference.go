package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"nutrition-planner/internal/nutrition"
)

func newReferenceCmd() *cobra.Command {
	var goal, intensity, tablePath, format string

	cmd := &cobra.Command{
		Use:   "reference",
		Short: "Print the reference meal distribution for a goal and intensity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			table := nutrition.DefaultReferenceTable()
			if tablePath != "" {
				var err error
				if table, err = nutrition.LoadReferenceTable(tablePath); err != nil {
					return err
				}
			}
			d := table.Lookup(nutrition.Goal(goal), nutrition.Intensity(intensity))

			out := cmd.OutOrStdout()
			switch format {
			case "yaml":
				enc := yaml.NewEncoder(out)
				if err := enc.Encode(d); err != nil {
					return err
				}
				return enc.Close()
			case "json":
				return json.NewEncoder(out).Encode(d)
			case "text":
				_, err := fmt.Fprintf(out, "breakfast %d%%, lunch %d%%, snack %d%%, dinner %d%%\n",
					d.Breakfast, d.Lunch, d.Snack, d.Dinner)
				return err
			}
			return fmt.Errorf("unknown format %q", format)
		},
	}

	cmd.Flags().StringVar(&goal, "goal", string(nutrition.GoalMaintain), "goal")
	cmd.Flags().StringVar(&intensity, "intensity", string(nutrition.IntensityModerate), "intensity")
	cmd.Flags().StringVar(&tablePath, "table", envOr("DISTRIBUTION_TABLE_PATH", ""), "YAML reference distribution table")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json or yaml")
	return cmd
}
