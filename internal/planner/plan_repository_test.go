package planner

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nutrition-planner/internal/database"
	"nutrition-planner/internal/jsonrecover"
	"nutrition-planner/internal/nutrition"
)

func newTestRepository(t *testing.T) *PlanRepository {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "plans.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPlanRepository(db.SQL)
}

func samplePlan(t *testing.T, calories float64) (*nutrition.WeeklyNutritionPlan, nutrition.Report) {
	t.Helper()
	plan, report, err := nutrition.NewNormalizer(nil).FromCompletion(
		`{"dailyCalories": 1, "shoppingList": ["avena", "huevos"], "weeklySchedule": [{"dayName": "Monday", "meals": [{"category": "Breakfast", "options": ["Oats"]}]}]}`,
		nutrition.Context{Goal: nutrition.GoalMaintain, Intensity: nutrition.IntensityLow},
	)
	require.NoError(t, err)
	plan.DailyCalories = calories
	return plan, report
}

func TestPlanRepository_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	plan, report := samplePlan(t, 2400)

	id, err := repo.Save(ctx, StoredPlan{
		RequestID: "req-1",
		UserID:    "7",
		Goal:      nutrition.GoalMaintain,
		Intensity: nutrition.IntensityLow,
		Plan:      plan,
		Report:    report,
		CreatedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, nutrition.IntensityLow, got.Intensity)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), got.CreatedAt)
	assert.Equal(t, 2400.0, got.Plan.DailyCalories)
	assert.Equal(t, plan.WeeklySchedule, got.Plan.WeeklySchedule)
	assert.Equal(t, jsonrecover.StrategyDirect, got.Report.Strategy)
	assert.Equal(t, report.SynthesizedDays, got.Report.SynthesizedDays)

	require.NotNil(t, got.Plan.ShoppingList)
	assert.Equal(t, 2, got.Plan.ShoppingList.Len())
}

func TestPlanRepository_GetNotFound(t *testing.T) {
	_, err := newTestRepository(t).Get(context.Background(), 99)
	assert.True(t, errors.Is(err, ErrPlanNotFound))
}

func TestPlanRepository_SaveRejectsDuplicateRequest(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	plan, report := samplePlan(t, 2000)

	_, err := repo.Save(ctx, StoredPlan{RequestID: "dup", UserID: "1", Plan: plan, Report: report})
	require.NoError(t, err)
	_, err = repo.Save(ctx, StoredPlan{RequestID: "dup", UserID: "1", Plan: plan, Report: report})
	assert.Error(t, err)

	_, err = repo.Save(ctx, StoredPlan{RequestID: "nil-plan", UserID: "1"})
	assert.Error(t, err)
}

func TestPlanRepository_ListRecentByUserID(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	base := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)

	for i, user := range []string{"a", "a", "b", "a"} {
		plan, report := samplePlan(t, float64(2000+i*100))
		_, err := repo.Save(ctx, StoredPlan{
			RequestID: "req-" + string(rune('0'+i)),
			UserID:    user,
			Plan:      plan,
			Report:    report,
			CreatedAt: base.AddDate(0, 0, i),
		})
		require.NoError(t, err)
	}

	plans, err := repo.ListRecentByUserID(ctx, "a", 2)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "req-3", plans[0].RequestID)
	assert.Equal(t, "req-1", plans[1].RequestID)
	assert.Equal(t, 2300.0, plans[0].Plan.DailyCalories)

	plans, err = repo.ListRecentByUserID(ctx, "nobody", 5)
	require.NoError(t, err)
	assert.Empty(t, plans)
}
