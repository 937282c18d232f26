package acceptance_tests

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nutrition-planner/internal/app"
	"nutrition-planner/internal/config"
	"nutrition-planner/internal/jsonrecover"
	"nutrition-planner/internal/llm"
	"nutrition-planner/internal/nutrition"
	"nutrition-planner/internal/planner"
)

// --- Mock LLM Client ---
type mockLLMClient struct {
	content              string
	generateContentCalls int
}

func (m *mockLLMClient) GenerateContent(ctx context.Context, prompt string) (llm.ContentResponse, error) {
	m.generateContentCalls++
	return llm.ContentResponse{Content: m.content}, nil
}

const fullCompletion = "```json\n" + `{
  "calorias_diarias": 2650,
  "macronutrientes": {"proteinas": "165g", "grasas": "75g", "carbohidratos": "320g"},
  "distribucion_comidas": {"desayuno": 26, "almuerzo": 36, "merienda": 14, "cena": 24},
  "plan_semanal": [
    {"dia": "Lunes", "comidas": [
      {"nombre": "Desayuno", "hora": "07:30", "opciones": ["Avena con plátano", "Tostadas con huevo"]},
      {"nombre": "Almuerzo", "hora": "13:30", "opciones": ["Pollo con arroz", "Lentejas"]},
      {"nombre": "Merienda", "opciones": ["Yogur griego"]},
      {"nombre": "Cena", "hora": "21:00", "opciones": ["Salmón con verduras"]}
    ]},
    {"dia": "Martes", "comidas": [
      {"nombre": "Desayuno", "opciones": ["Batido de proteínas"]},
      {"nombre": "Almuerzo", "opciones": ["Ternera con patata"]},
      {"nombre": "Cena", "opciones": ["Tortilla francesa"]},
      {"nombre": "Pre-entreno", "opciones": ["Plátano"]}
    ]},
    {"dia": "Miércoles", "comidas": [
      {"nombre": "Desayuno", "opciones": ["Huevos revueltos"]},
      {"nombre": "Almuerzo", "opciones": ["Pasta integral con atún"]},
      {"nombre": "Merienda", "opciones": ["Frutos secos"]},
      {"nombre": "Cena", "opciones": ["Merluza al horno"]}
    ]}
  ],
  "lista_compras": ["avena", "pollo", "arroz", "salmón"],
  "motivacion": "¡Constancia!"
}` + "\n```"

func newApp(t *testing.T, client llm.TextGenerator) *app.App {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		DatabasePath:      filepath.Join(dir, "nutrition.db"),
		ArchivePath:       filepath.Join(dir, "completions"),
		CompletionTimeout: 5 * time.Second,
	}
	a, err := app.NewWithGenerator(cfg, zap.NewNop(), client)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

// TestRecoveryAcceptance_FullCompletion drives a complete Spanish-keyed
// completion through the planner, the store and an offline replay.
func TestRecoveryAcceptance_FullCompletion(t *testing.T) {
	ctx := context.Background()
	client := &mockLLMClient{content: fullCompletion}
	a := newApp(t, client)

	result, err := a.Planner().GeneratePlan(ctx, planner.Request{
		UserID:    "athlete",
		Goal:      nutrition.GoalGainMuscle,
		Intensity: nutrition.IntensityModerate,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, client.generateContentCalls)

	plan := result.Plan
	require.NoError(t, nutrition.Validate(plan))
	assert.Equal(t, jsonrecover.StrategyDirect, result.Strategy)
	assert.Equal(t, 2650.0, plan.DailyCalories)
	assert.Equal(t, "165g", plan.Macros.Protein)
	assert.Equal(t, nutrition.Distribution{Breakfast: 26, Lunch: 36, Snack: 14, Dinner: 24}, plan.MealDistributionPercent)
	assert.Equal(t, []nutrition.Day{nutrition.Thursday, nutrition.Friday, nutrition.Saturday, nutrition.Sunday}, result.Report.SynthesizedDays)

	tuesday, ok := plan.Day(nutrition.Tuesday)
	require.True(t, ok)
	assert.Equal(t, []string{nutrition.PlaceholderOption}, tuesday.Meals[2].Options)
	require.Len(t, tuesday.Extras(), 1)
	assert.Equal(t, nutrition.MealCategory("Pre-entreno"), tuesday.Extras()[0].Category)

	// Thursday is cloned from Monday with every option list rotated.
	thursday, _ := plan.Day(nutrition.Thursday)
	assert.Equal(t, []string{"Tostadas con huevo", "Avena con plátano"}, thursday.Meals[0].Options)

	stored, err := a.Plans().Get(ctx, result.PlanID)
	require.NoError(t, err)
	assert.Equal(t, plan.WeeklySchedule, stored.Plan.WeeklySchedule)

	replayed, _, err := a.ReplayArchived(result.Meta.RequestID, nutrition.Context{
		Goal:      nutrition.GoalGainMuscle,
		Intensity: nutrition.IntensityModerate,
	})
	require.NoError(t, err)
	assert.Equal(t, plan.WeeklySchedule, replayed.WeeklySchedule)
}

// TestRecoveryAcceptance_EveryTruncation cuts the completion at every byte
// and checks the planner either returns a valid plan or one of the engine's
// defined failures.
func TestRecoveryAcceptance_EveryTruncation(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping exhaustive truncation run in short mode")
	}

	ctx := context.Background()
	client := &mockLLMClient{}
	a := newApp(t, client)

	successes := 0
	for cut := 0; cut <= len(fullCompletion); cut++ {
		client.content = fullCompletion[:cut]
		result, err := a.Planner().GeneratePlan(ctx, planner.Request{
			Goal:      nutrition.GoalPerformance,
			Intensity: nutrition.IntensityHigh,
		})
		if err != nil {
			known := errors.Is(err, jsonrecover.ErrUnparseable) ||
				errors.Is(err, nutrition.ErrMissingSchedule) ||
				errors.Is(err, nutrition.ErrMissingAnchorFields)
			require.True(t, known, "cut %d: unexpected error %v", cut, err)
			continue
		}

		successes++
		require.NoError(t, nutrition.Validate(result.Plan), "cut %d", cut)
		assert.Equal(t, 2650.0, result.Plan.DailyCalories, "cut %d", cut)
	}
	assert.Greater(t, successes, len(fullCompletion)/2)
}
