package planner

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"nutrition-planner/internal/database"
	"nutrition-planner/internal/jsonrecover"
	"nutrition-planner/internal/llm"
	"nutrition-planner/internal/metrics"
	"nutrition-planner/internal/nutrition"
	"nutrition-planner/internal/shared"
	"nutrition-planner/internal/storage"
)

type MockTextGenerator struct {
	content string
	err     error
	prompts []string
}

func (m *MockTextGenerator) GenerateContent(ctx context.Context, prompt string) (llm.ContentResponse, error) {
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return llm.ContentResponse{}, m.err
	}
	return llm.ContentResponse{
		Content: m.content,
		Usage:   shared.TokenUsage{PromptTokens: 900, CompletionTokens: 1200, TotalTokens: 2100, Model: "mock-model"},
	}, nil
}

type blockingGenerator struct{}

func (blockingGenerator) GenerateContent(ctx context.Context, _ string) (llm.ContentResponse, error) {
	<-ctx.Done()
	return llm.ContentResponse{}, ctx.Err()
}

type recordedUsage struct {
	metas []shared.AgentMeta
}

func (r *recordedUsage) RecordMeta(_ context.Context, meta shared.AgentMeta) error {
	r.metas = append(r.metas, meta)
	return nil
}

type fixture struct {
	planner *Planner
	gen     *MockTextGenerator
	repo    *PlanRepository
	archive *storage.CompletionArchive
	usage   *recordedUsage
}

func newFixture(t *testing.T, content string) *fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := database.NewDB(filepath.Join(dir, "planner.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	archive, err := storage.NewCompletionArchive(filepath.Join(dir, "completions"))
	require.NoError(t, err)

	f := &fixture{
		gen:     &MockTextGenerator{content: content},
		repo:    NewPlanRepository(db.SQL),
		archive: archive,
		usage:   &recordedUsage{},
	}
	f.planner = NewPlanner(f.gen,
		WithRepository(f.repo),
		WithArchive(archive),
		WithUsageRecorder(f.usage),
		WithLogger(zaptest.NewLogger(t)),
	)
	ids := 0
	f.planner.newID = func() string {
		ids++
		return "req-" + strings.Repeat("x", ids)
	}
	return f
}

// Cut off inside the lunch options, as a provider hitting its token cap would.
const truncatedCompletion = "```json\n" + `{
  "dailyCalories": 2800,
  "macros": {"protein": "160g", "fat": "80g", "carbs": "350g"},
  "mealDistributionPercent": {"breakfast": 25, "lunch": 35, "snack": 15, "dinner": 25},
  "weeklySchedule": [
    {"dayName": "Lunes", "meals": [
      {"category": "Desayuno", "time": "07:30", "options": ["Avena con fruta", "Tostadas con huevo"]},
      {"category": "Almuerzo", "options": ["Arroz con pol`

func TestGeneratePlan(t *testing.T) {
	f := newFixture(t, truncatedCompletion)
	ctx := context.Background()
	before := testutil.ToFloat64(metrics.PlanOutcomes.WithLabelValues(metrics.OutcomeSuccess))

	result, err := f.planner.GeneratePlan(ctx, Request{
		UserID:    "42",
		Goal:      "gain_muscle",
		Intensity: nutrition.IntensityModerate,
	})
	require.NoError(t, err)

	require.NotNil(t, result.Plan)
	require.NoError(t, nutrition.Validate(result.Plan))
	assert.Equal(t, 2800.0, result.Plan.DailyCalories)
	assert.Equal(t, jsonrecover.StrategyTruncation, result.Strategy)
	assert.Len(t, result.Report.SynthesizedDays, 6)
	assert.Equal(t, nutrition.DistributionRenormalized, result.Report.Distribution)
	assert.Equal(t, "07:30", result.Plan.WeeklySchedule[0].Meals[0].Time)

	assert.Equal(t, AgentName, result.Meta.AgentName)
	assert.Equal(t, "req-x", result.Meta.RequestID)
	assert.Equal(t, "mock-model", result.Meta.Usage.Model)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.PlanOutcomes.WithLabelValues(metrics.OutcomeSuccess)))

	// The prompt carries the request and the reference split.
	require.Len(t, f.gen.prompts, 1)
	assert.Contains(t, f.gen.prompts[0], "Goal: ganar_masa")
	assert.Contains(t, f.gen.prompts[0], "breakfast 27, lunch 37, snack 13, dinner 23")
	assert.Contains(t, f.gen.prompts[0], "estimate one")

	require.Len(t, f.usage.metas, 1)
	assert.Equal(t, 900, f.usage.metas[0].Usage.PromptTokens)

	raw, err := f.archive.Load("req-x")
	require.NoError(t, err)
	assert.Equal(t, truncatedCompletion, raw)

	require.NotZero(t, result.PlanID)
	stored, err := f.repo.Get(ctx, result.PlanID)
	require.NoError(t, err)
	assert.Equal(t, "42", stored.UserID)
	assert.Equal(t, nutrition.GoalGainMuscle, stored.Goal)
	assert.Equal(t, result.Plan.WeeklySchedule, stored.Plan.WeeklySchedule)
	assert.Equal(t, result.Plan.MealDistributionPercent, stored.Plan.MealDistributionPercent)
	assert.Equal(t, result.Report.Strategy, stored.Report.Strategy)
}

func TestGeneratePlan_UsesRequestCalories(t *testing.T) {
	f := newFixture(t, `{"weeklySchedule": [{"dayName": "Monday", "meals": [{"category": "Dinner", "options": ["Salmon"]}]}]}`)

	result, err := f.planner.GeneratePlan(context.Background(), Request{
		Goal:          nutrition.GoalLoseFat,
		Intensity:     nutrition.IntensityLow,
		DailyCalories: 1900,
		Preferences:   "no dairy",
	})
	require.NoError(t, err)
	assert.Equal(t, 1900.0, result.Plan.DailyCalories)
	assert.Equal(t, nutrition.DistributionReferenceAbsent, result.Report.Distribution)
	assert.Contains(t, f.gen.prompts[0], "Daily calorie target: 1900 kcal")
	assert.Contains(t, f.gen.prompts[0], "no dairy")
}

func TestGeneratePlan_MissingCalories(t *testing.T) {
	f := newFixture(t, `{"weeklySchedule": [{"dayName": "Monday", "meals": [{"category": "Dinner", "options": ["Salmon"]}]}]}`)
	recovered := testutil.ToFloat64(metrics.PlanRecoveries.WithLabelValues(string(jsonrecover.StrategyDirect)))

	result, err := f.planner.GeneratePlan(context.Background(), Request{
		UserID:    "42",
		Goal:      nutrition.GoalMaintain,
		Intensity: nutrition.IntensityHigh,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, nutrition.ErrMissingAnchorFields))
	assert.Nil(t, result.Plan)
	assert.Equal(t, jsonrecover.StrategyDirect, result.Strategy)
	// The completion parsed, so it counts under its strategy even though
	// normalization failed.
	assert.Equal(t, recovered+1, testutil.ToFloat64(metrics.PlanRecoveries.WithLabelValues(string(jsonrecover.StrategyDirect))))

	plans, err := f.repo.ListRecentByUserID(context.Background(), "42", 10)
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestGeneratePlan_Unparseable(t *testing.T) {
	f := newFixture(t, "Lo siento, no puedo generar el plan.")
	before := testutil.ToFloat64(metrics.PlanOutcomes.WithLabelValues(metrics.OutcomeParseFailure))

	result, err := f.planner.GeneratePlan(context.Background(), Request{
		Goal:      nutrition.GoalMaintain,
		Intensity: nutrition.IntensityModerate,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, jsonrecover.ErrUnparseable))

	var perr *jsonrecover.ParseError
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Excerpt, "Lo siento")
	assert.Equal(t, "req-x", result.Meta.RequestID)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.PlanOutcomes.WithLabelValues(metrics.OutcomeParseFailure)))

	// The raw text is kept for offline replay even when recovery fails.
	assert.True(t, f.archive.Exists("req-x"))
}

func TestGeneratePlan_ProviderError(t *testing.T) {
	f := newFixture(t, "")
	f.gen.err = errors.New("quota exceeded")

	_, err := f.planner.GeneratePlan(context.Background(), Request{
		Goal:      nutrition.GoalPerformance,
		Intensity: nutrition.IntensityHigh,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Equal(t, metrics.OutcomeProviderError, metrics.Outcome(err))
	assert.Empty(t, f.usage.metas)
	assert.False(t, f.archive.Exists("req-x"))
}

func TestGeneratePlan_InvalidRequest(t *testing.T) {
	f := newFixture(t, "{}")

	tests := []struct {
		name string
		req  Request
	}{
		{"unknown goal", Request{Goal: "bulk", Intensity: nutrition.IntensityLow}},
		{"unknown intensity", Request{Goal: nutrition.GoalMaintain, Intensity: "extreme"}},
		{"negative calories", Request{Goal: nutrition.GoalMaintain, Intensity: nutrition.IntensityLow, DailyCalories: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.planner.GeneratePlan(context.Background(), tt.req)
			assert.True(t, errors.Is(err, ErrInvalidRequest))
		})
	}
	assert.Empty(t, f.gen.prompts)
}

func TestGeneratePlan_Timeout(t *testing.T) {
	p := NewPlanner(blockingGenerator{}, WithTimeout(20*time.Millisecond))

	_, err := p.GeneratePlan(context.Background(), Request{
		Goal:      nutrition.GoalMaintain,
		Intensity: nutrition.IntensityLow,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestBuildPrompt(t *testing.T) {
	prompt, err := buildPrompt(promptData{
		Goal:          nutrition.GoalLoseFat,
		Intensity:     nutrition.IntensityHigh,
		DailyCalories: 2100,
		Reference:     nutrition.Distribution{Breakfast: 25, Lunch: 35, Snack: 15, Dinner: 25},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(prompt, "# Nutritionist Agent Prompt"))
	assert.Contains(t, prompt, "Goal: perder_grasa")
	assert.Contains(t, prompt, "Training intensity: alta")
	assert.Contains(t, prompt, "2100 kcal")
	assert.NotContains(t, prompt, "Preferences")
}
