package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"nutrition-planner/internal/config"
	"nutrition-planner/internal/llm"
	"nutrition-planner/internal/nutrition"
	"nutrition-planner/internal/planner"
	"nutrition-planner/internal/shared"
)

type mockTextGen struct {
	res string
}

func (m *mockTextGen) GenerateContent(ctx context.Context, prompt string) (llm.ContentResponse, error) {
	return llm.ContentResponse{
		Content: m.res,
		Usage:   shared.TokenUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30, Model: "mock"},
	}, nil
}

const completion = `{
  "calorias_diarias": "2300 kcal",
  "macros": {"proteinas": "140g", "grasas": "70g", "carbohidratos": "260g"},
  "plan_semanal": [
    {"dia": "Miércoles", "comidas": [
      {"nombre": "Cena", "hora": "21:00", "opciones": ["Tortilla de patatas"]},
      {"nombre": "Desayuno", "opciones": ["Yogur con granola"]}
    ]}
  ],
  "lista_compras": ["patatas", "huevos"],
  "motivacion": "¡Vamos!",
}`

func newTestApp(t *testing.T, res string) *App {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		DatabasePath:      filepath.Join(dir, "nutrition.db"),
		ArchivePath:       filepath.Join(dir, "completions"),
		CompletionTimeout: time.Second,
	}
	a, err := NewWithGenerator(cfg, zaptest.NewLogger(t), &mockTextGen{res: res})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestApp_GeneratePlan(t *testing.T) {
	a := newTestApp(t, completion)
	ctx := context.Background()

	var out bytes.Buffer
	err := a.GeneratePlan(ctx, planner.Request{UserID: "cli", Goal: nutrition.GoalLoseFat, Intensity: nutrition.IntensityHigh}, &out)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Daily calories: 2300 kcal")
	assert.Contains(t, text, "Macros: protein 140g, fat 70g, carbs 260g")
	assert.Contains(t, text, "Wednesday")
	assert.Contains(t, text, "21:00 Dinner")
	assert.Contains(t, text, "- patatas")
	assert.Contains(t, text, "¡Vamos!")
	assert.Contains(t, text, "recovery: trailing-comma")
	assert.Contains(t, text, "Synthesized days: Monday, Tuesday, Thursday, Friday, Saturday, Sunday")
	assert.Contains(t, text, "Distribution: reference-absent")

	plans, err := a.Plans().ListRecentByUserID(ctx, "cli", 5)
	require.NoError(t, err)
	require.Len(t, plans, 1)

	usage, err := a.Metrics().GetDailyUsage(ctx, 1)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, 1, usage[0].TotalExecution)

	// The archived completion replays to the same plan offline.
	replayed, report, err := a.ReplayArchived(plans[0].RequestID, nutrition.Context{
		Goal:      nutrition.GoalLoseFat,
		Intensity: nutrition.IntensityHigh,
	})
	require.NoError(t, err)
	assert.Equal(t, plans[0].Plan.WeeklySchedule, replayed.WeeklySchedule)
	assert.Equal(t, plans[0].Report.SynthesizedDays, report.SynthesizedDays)
}

func TestApp_ReplayUnknownRequest(t *testing.T) {
	a := newTestApp(t, completion)
	_, _, err := a.ReplayArchived("missing", nutrition.Context{})
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestApp_GeneratePlanFailure(t *testing.T) {
	a := newTestApp(t, "I am unable to comply.")

	var out bytes.Buffer
	err := a.GeneratePlan(context.Background(), planner.Request{Goal: nutrition.GoalMaintain, Intensity: nutrition.IntensityLow}, &out)
	require.Error(t, err)
	assert.NotContains(t, out.String(), "WEEKLY NUTRITION PLAN")
}

func TestApp_Cleanup(t *testing.T) {
	a := newTestApp(t, completion)
	ctx := context.Background()

	require.NoError(t, a.Archive().Save("old", time.Now().AddDate(0, 0, -40), "{}"))
	require.NoError(t, a.Archive().Save("new", time.Now(), "{}"))

	res, err := a.Cleanup(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Completions)
	assert.False(t, a.Archive().Exists("old"))
	assert.True(t, a.Archive().Exists("new"))

	_, err = a.Cleanup(ctx, -1)
	assert.Error(t, err)
}

func TestNewWithGenerator_DistributionTable(t *testing.T) {
	dir := t.TempDir()
	tablePath := filepath.Join(dir, "table.yaml")
	require.NoError(t, os.WriteFile(tablePath, []byte(`
default: {breakfast: 20, lunch: 40, snack: 10, dinner: 30}
goals:
  mantener:
    baja: {breakfast: 30, lunch: 30, snack: 10, dinner: 30}
`), 0644))

	cfg := &config.Config{
		DatabasePath:          filepath.Join(dir, "nutrition.db"),
		ArchivePath:           filepath.Join(dir, "completions"),
		DistributionTablePath: tablePath,
	}
	a, err := NewWithGenerator(cfg, zaptest.NewLogger(t), &mockTextGen{})
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, 30, a.ReferenceTable().Lookup(nutrition.GoalMaintain, nutrition.IntensityLow).Breakfast)

	cfg.DistributionTablePath = filepath.Join(dir, "missing.yaml")
	_, err = NewWithGenerator(cfg, zaptest.NewLogger(t), &mockTextGen{})
	assert.Error(t, err)
}
