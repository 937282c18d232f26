package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nutrition-planner/internal/app"
	"nutrition-planner/internal/config"
	"nutrition-planner/internal/logger"
	"nutrition-planner/internal/nutrition"
	"nutrition-planner/internal/planner"
)

// setup loads the configuration and wires the application.
func setup(cmd *cobra.Command) (*app.App, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	a, err := app.New(cmd.Context(), cfg, log)
	if err != nil {
		log.Sync()
		return nil, nil, err
	}
	return a, log, nil
}

func newGenerateCmd() *cobra.Command {
	var (
		goal, intensity string
		calories        float64
		userID          string
		preferences     string
		asJSON          bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate, normalize and store a weekly plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := planRequest(goal, intensity, calories)
			if err != nil {
				return err
			}
			req.UserID = userID
			req.Preferences = preferences

			a, log, err := setup(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer a.Close()

			if !asJSON {
				return a.GeneratePlan(cmd.Context(), req, cmd.OutOrStdout())
			}

			result, err := a.Planner().GeneratePlan(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("failed to generate plan: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result.Plan)
		},
	}

	cmd.Flags().StringVar(&goal, "goal", string(nutrition.GoalMaintain), "perder_grasa, mantener, ganar_masa or rendimiento")
	cmd.Flags().StringVar(&intensity, "intensity", string(nutrition.IntensityModerate), "baja, moderada or alta")
	cmd.Flags().Float64Var(&calories, "calories", 0, "daily calorie target (0 lets the model choose)")
	cmd.Flags().StringVar(&userID, "user", "cli", "user id the plan is stored under")
	cmd.Flags().StringVar(&preferences, "preferences", "", "free-text preferences and restrictions")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the canonical plan as JSON")
	return cmd
}

func planRequest(goal, intensity string, calories float64) (planner.Request, error) {
	g, ok := nutrition.ParseGoal(goal)
	if !ok {
		return planner.Request{}, fmt.Errorf("unknown goal %q", goal)
	}
	i, ok := nutrition.ParseIntensity(intensity)
	if !ok {
		return planner.Request{}, fmt.Errorf("unknown intensity %q", intensity)
	}
	if calories < 0 {
		return planner.Request{}, fmt.Errorf("invalid calories %v", calories)
	}
	return planner.Request{Goal: g, Intensity: i, DailyCalories: calories}, nil
}
