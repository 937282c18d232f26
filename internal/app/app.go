package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"nutrition-planner/internal/config"
	"nutrition-planner/internal/database"
	"nutrition-planner/internal/jsonrecover"
	"nutrition-planner/internal/llm"
	"nutrition-planner/internal/metrics"
	"nutrition-planner/internal/nutrition"
	"nutrition-planner/internal/planner"
	"nutrition-planner/internal/storage"
)

// App holds the application's dependencies.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	db           *database.DB
	textGen      llm.TextGenerator
	table        *nutrition.ReferenceTable
	metricsStore *metrics.Store
	planRepo     *planner.PlanRepository
	archive      *storage.CompletionArchive
	planner      *planner.Planner
}

// New builds the provider client from cfg and wires the application.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	textGen, err := llm.NewFromConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s client: %w", cfg.LLMProvider, err)
	}
	a, err := NewWithGenerator(cfg, logger, textGen)
	if err != nil {
		if c, ok := textGen.(llm.Closer); ok {
			c.Close()
		}
		return nil, err
	}
	return a, nil
}

// NewWithGenerator wires the application around an existing TextGenerator.
func NewWithGenerator(cfg *config.Config, logger *zap.Logger, textGen llm.TextGenerator) (*App, error) {
	table := nutrition.DefaultReferenceTable()
	if cfg.DistributionTablePath != "" {
		t, err := nutrition.LoadReferenceTable(cfg.DistributionTablePath)
		if err != nil {
			return nil, err
		}
		table = t
		logger.Info("loaded distribution table", zap.String("path", cfg.DistributionTablePath))
	}

	db, err := database.NewDB(cfg.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	archive, err := storage.NewCompletionArchive(cfg.ArchivePath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize completion archive: %w", err)
	}

	a := &App{
		cfg:          cfg,
		logger:       logger,
		db:           db,
		textGen:      textGen,
		table:        table,
		metricsStore: metrics.NewStore(db.SQL),
		planRepo:     planner.NewPlanRepository(db.SQL),
		archive:      archive,
	}
	a.planner = planner.NewPlanner(textGen,
		planner.WithRepository(a.planRepo),
		planner.WithUsageRecorder(a.metricsStore),
		planner.WithArchive(archive),
		planner.WithLogger(logger.Named("planner")),
		planner.WithTimeout(cfg.CompletionTimeout),
		planner.WithReferenceTable(table),
	)
	return a, nil
}

// Close releases the database and the provider client.
func (a *App) Close() error {
	if c, ok := a.textGen.(llm.Closer); ok {
		if err := c.Close(); err != nil {
			a.logger.Warn("failed to close provider client", zap.Error(err))
		}
	}
	return a.db.Close()
}

func (a *App) Planner() *planner.Planner { return a.planner }
func (a *App) Plans() *planner.PlanRepository { return a.planRepo }
func (a *App) Metrics() *metrics.Store { return a.metricsStore }
func (a *App) Archive() *storage.CompletionArchive { return a.archive }
func (a *App) ReferenceTable() *nutrition.ReferenceTable { return a.table }
func (a *App) Config() *config.Config { return a.cfg }

// GeneratePlan creates a plan for req and prints it to w.
func (a *App) GeneratePlan(ctx context.Context, req planner.Request, w io.Writer) error {
	fmt.Fprintf(w, "Generating %s/%s plan...\n", req.Goal, req.Intensity)

	result, err := a.planner.GeneratePlan(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to generate plan: %w", err)
	}

	WritePlan(w, result.Plan)
	fmt.Fprintf(w, "\nPlan #%d (request %s, recovery: %s, tokens: %d, %s)\n",
		result.PlanID, result.Meta.RequestID, result.Strategy,
		result.Meta.Usage.TotalTokens, result.Meta.Latency.Round(time.Millisecond))
	WriteReport(w, result.Report)
	return nil
}

// ReplayArchived re-runs recovery and normalization over an archived
// completion without calling the provider.
func (a *App) ReplayArchived(requestID string, nctx nutrition.Context) (*nutrition.WeeklyNutritionPlan, nutrition.Report, error) {
	raw, err := a.archive.Load(requestID)
	if err != nil {
		return nil, nutrition.Report{}, err
	}
	return nutrition.NewNormalizer(a.table).FromCompletion(raw, nctx)
}

// WritePlan prints a plan as plain text.
func WritePlan(w io.Writer, plan *nutrition.WeeklyNutritionPlan) {
	d := plan.MealDistributionPercent
	fmt.Fprintln(w, "\n=== WEEKLY NUTRITION PLAN ===")
	fmt.Fprintf(w, "Daily calories: %.0f kcal\n", plan.DailyCalories)
	if plan.Macros != (nutrition.Macros{}) {
		fmt.Fprintf(w, "Macros: protein %s, fat %s, carbs %s\n", plan.Macros.Protein, plan.Macros.Fat, plan.Macros.Carbs)
	}
	fmt.Fprintf(w, "Distribution: breakfast %d%%, lunch %d%%, snack %d%%, dinner %d%%\n",
		d.Breakfast, d.Lunch, d.Snack, d.Dinner)

	for _, day := range plan.WeeklySchedule {
		fmt.Fprintf(w, "\n%s\n", day.DayName)
		for _, m := range day.Meals {
			fmt.Fprintf(w, "  %-5s %-10s %s\n", m.Time, m.Category, strings.Join(m.Options, " | "))
		}
	}

	if plan.ShoppingList != nil {
		fmt.Fprintln(w, "\n=== SHOPPING LIST ===")
		if items := plan.ShoppingList.Items(); items != nil {
			for _, item := range items {
				fmt.Fprintf(w, "- %s\n", display(item))
			}
		} else {
			fmt.Fprintln(w, display(*plan.ShoppingList))
		}
	}
	if plan.Motivation != nil {
		fmt.Fprintf(w, "\n%s\n", display(*plan.Motivation))
	}
}

// display renders strings without JSON quoting.
func display(v jsonrecover.Value) string {
	if s, ok := v.Text(); ok {
		return s
	}
	return v.String()
}

// WriteReport prints what the normalizer had to repair.
func WriteReport(w io.Writer, report nutrition.Report) {
	if len(report.SynthesizedDays) > 0 {
		days := make([]string, len(report.SynthesizedDays))
		for i, d := range report.SynthesizedDays {
			days[i] = string(d)
		}
		fmt.Fprintf(w, "Synthesized days: %s\n", strings.Join(days, ", "))
	}
	if report.DroppedDays > 0 {
		fmt.Fprintf(w, "Dropped days: %d\n", report.DroppedDays)
	}
	if report.PlaceholderSlots > 0 {
		fmt.Fprintf(w, "Placeholder slots: %d\n", report.PlaceholderSlots)
	}
	fmt.Fprintf(w, "Distribution: %s (deviation %.1f)\n", report.Distribution, report.DistributionDeviation)
}
