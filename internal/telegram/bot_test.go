package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutrition-planner/internal/jsonrecover"
	"nutrition-planner/internal/metrics"
	"nutrition-planner/internal/nutrition"
)

func testPlan(t *testing.T, completion string) *nutrition.WeeklyNutritionPlan {
	t.Helper()
	plan, _, err := nutrition.NewNormalizer(nil).FromCompletion(completion, nutrition.Context{
		Goal:      nutrition.GoalMaintain,
		Intensity: nutrition.IntensityModerate,
	})
	require.NoError(t, err)
	return plan
}

func TestFormatPlanMessages(t *testing.T) {
	plan := testPlan(t, `{
		"dailyCalories": 2200,
		"macros": {"protein": "130g", "fat": "70g", "carbs": "250g"},
		"weeklySchedule": [{"dayName": "Monday", "meals": [
			{"category": "Breakfast", "time": "07:00", "options": ["Oats", "Eggs *scrambled*"]},
			{"category": "Post_workout shake", "options": ["Whey"]}
		]}],
		"motivation": "Keep going"
	}`)

	parts := formatPlanMessages(plan)
	require.Len(t, parts, 1)
	out := parts[0]

	assert.Contains(t, out, "📅 *Weekly Nutrition Plan*")
	assert.Contains(t, out, "🔥 *2200 kcal/day*")
	assert.Contains(t, out, "130g protein")
	assert.Contains(t, out, "*Monday*")
	assert.Contains(t, out, "*Sunday*")
	assert.Contains(t, out, "• 07:00 Breakfast: Oats / Eggs \\*scrambled\\*")
	assert.Contains(t, out, "Post\\_workout shake: Whey")
	assert.Contains(t, out, "💪 _Keep going_")
}

func TestFormatDay_EscapesModelText(t *testing.T) {
	out := formatDay(nutrition.DayPlan{
		DayName: nutrition.Friday,
		Meals: []nutrition.MealSlot{
			{Time: "after_training *late*", Category: nutrition.Dinner, Options: []string{"Rice_bowl"}},
		},
	})

	assert.Equal(t, "\n*Friday*\n• after\\_training \\*late\\* Dinner: Rice\\_bowl\n", out)
}

func TestFormatPlanMessages_SplitsLongPlans(t *testing.T) {
	long := strings.Repeat("very long option text ", 10)
	var days []string
	for _, d := range nutrition.Week {
		var meals []string
		for _, c := range nutrition.MealCategories {
			meals = append(meals, fmt.Sprintf(`{"category": %q, "options": [%q, %q]}`, c, long, long))
		}
		days = append(days, fmt.Sprintf(`{"dayName": %q, "meals": [%s]}`, d, strings.Join(meals, ",")))
	}
	plan := testPlan(t, fmt.Sprintf(`{"dailyCalories": 2000, "weeklySchedule": [%s]}`, strings.Join(days, ",")))

	parts := formatPlanMessages(plan)
	require.Greater(t, len(parts), 1)

	seen := 0
	for _, p := range parts {
		assert.LessOrEqual(t, len(p), maxMessageLen)
		for _, d := range nutrition.Week {
			seen += strings.Count(p, "*"+string(d)+"*")
		}
	}
	assert.Equal(t, len(nutrition.Week), seen, "every day appears exactly once")
}

func TestFormatShoppingList(t *testing.T) {
	tests := []struct {
		name     string
		list     string
		contains []string
	}{
		{"flat list", `["Rice", "Chicken_breast"]`, []string{"• Rice", "• Chicken\\_breast"}},
		{"categories", `{"Proteins": ["Eggs"], "Grains": ["Oats"]}`, []string{"*Proteins*", "• Eggs", "*Grains*", "• Oats"}},
		{"objects", `[{"item": "Milk", "qty": "1L"}]`, []string{"• Milk 1L"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := testPlan(t, `{"dailyCalories": 2000, "shoppingList": `+tt.list+`, "weeklySchedule": [{"dayName": "Monday", "meals": [{"category": "Lunch", "options": ["Rice"]}]}]}`)
			out := formatShoppingList(plan)
			assert.True(t, strings.HasPrefix(out, "🛒 *Shopping List*"))
			for _, c := range tt.contains {
				assert.Contains(t, out, c)
			}
		})
	}

	plan := testPlan(t, `{"dailyCalories": 2000, "weeklySchedule": [{"dayName": "Monday", "meals": [{"category": "Lunch", "options": ["Rice"]}]}]}`)
	assert.Empty(t, formatShoppingList(plan))
}

func TestParsePlanArgs(t *testing.T) {
	tests := []struct {
		args        string
		goal        nutrition.Goal
		intensity   nutrition.Intensity
		calories    float64
		preferences string
		wantErr     bool
	}{
		{args: "ganar_masa moderada", goal: nutrition.GoalGainMuscle, intensity: nutrition.IntensityModerate},
		{args: "lose-fat HIGH 1800", goal: nutrition.GoalLoseFat, intensity: nutrition.IntensityHigh, calories: 1800},
		{args: "mantener baja 2100kcal sin lactosa", goal: nutrition.GoalMaintain, intensity: nutrition.IntensityLow, calories: 2100, preferences: "sin lactosa"},
		{args: "rendimiento alta vegan", goal: nutrition.GoalPerformance, intensity: nutrition.IntensityHigh, preferences: "vegan"},
		{args: "mantener", wantErr: true},
		{args: "bulk alta", wantErr: true},
		{args: "mantener extreme", wantErr: true},
		{args: "mantener alta -200", wantErr: true},
		{args: "mantener alta NaN", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.args, func(t *testing.T) {
			req, err := parsePlanArgs(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.goal, req.Goal)
			assert.Equal(t, tt.intensity, req.Intensity)
			assert.Equal(t, tt.calories, req.DailyCalories)
			assert.Equal(t, tt.preferences, req.Preferences)
		})
	}
}

func TestIsAllowed(t *testing.T) {
	assert.True(t, isAllowed([]int64{1, 2}, 2))
	assert.False(t, isAllowed([]int64{1, 2}, 3))
	assert.False(t, isAllowed(nil, 1))
}

func TestFailureText(t *testing.T) {
	malformed := fmt.Errorf("failed to recover plan: %w", &jsonrecover.ParseError{Excerpt: "oops"})
	assert.Contains(t, failureText(malformed), "malformed")
	assert.Contains(t, failureText(&nutrition.NormalizationError{Reason: nutrition.ReasonMissingSchedule}), "malformed")
	assert.Contains(t, failureText(context.DeadlineExceeded), "too long")
	assert.NotContains(t, failureText(errors.New("401 invalid api key")), "api key")
}

func TestFormatMetrics(t *testing.T) {
	out := formatMetrics(
		[]metrics.DailyUsage{{Date: "2026-03-02", TotalPrompt: 1000, TotalCompletion: 500, TotalExecution: 3, Truncated: 1}},
		metrics.SysHealth{AllocMB: 12, SysMB: 40, Goroutines: 9, DatabaseSize: "1.2 MB"},
	)
	assert.Contains(t, out, "• *2026-03-02*: 1500 tokens (3 execs, 1 truncated)")
	assert.Contains(t, out, "• Goroutines: 9")
	assert.Contains(t, out, "• Database: 1.2 MB")

	assert.Contains(t, formatMetrics(nil, metrics.SysHealth{}), "_No data yet_")
}
