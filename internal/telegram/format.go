package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"nutrition-planner/internal/jsonrecover"
	"nutrition-planner/internal/metrics"
	"nutrition-planner/internal/nutrition"
)

// maxMessageLen stays under Telegram's 4096 character limit.
const maxMessageLen = 4000

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

// formatPlanMessages renders a plan as one or more Markdown messages. Days
// are never split across messages.
func formatPlanMessages(plan *nutrition.WeeklyNutritionPlan) []string {
	var header strings.Builder
	header.WriteString("📅 *Weekly Nutrition Plan*\n\n")
	fmt.Fprintf(&header, "🔥 *%.0f kcal/day*\n", plan.DailyCalories)
	if m := plan.Macros; m != (nutrition.Macros{}) {
		fmt.Fprintf(&header, "🥩 %s protein · 🥑 %s fat · 🍚 %s carbs\n",
			escape(m.Protein), escape(m.Fat), escape(m.Carbs))
	}
	d := plan.MealDistributionPercent
	fmt.Fprintf(&header, "📊 Breakfast %d%% · Lunch %d%% · Snack %d%% · Dinner %d%%\n",
		d.Breakfast, d.Lunch, d.Snack, d.Dinner)

	parts := []string{}
	current := header.String()
	for _, day := range plan.WeeklySchedule {
		block := formatDay(day)
		if len(current)+len(block) > maxMessageLen {
			parts = append(parts, current)
			current = ""
		}
		current += block
	}
	if plan.Motivation != nil {
		block := "\n💪 _" + escape(plainText(*plan.Motivation)) + "_\n"
		if len(current)+len(block) > maxMessageLen {
			parts = append(parts, current)
			current = ""
		}
		current += block
	}
	return append(parts, current)
}

func formatDay(day nutrition.DayPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n*%s*\n", day.DayName)
	for _, m := range day.Meals {
		fmt.Fprintf(&b, "• %s %s: %s\n", escape(m.Time), escape(string(m.Category)), escape(strings.Join(m.Options, " / ")))
	}
	return b.String()
}

// formatShoppingList returns "" when the plan carries no list.
func formatShoppingList(plan *nutrition.WeeklyNutritionPlan) string {
	if plan.ShoppingList == nil || plan.ShoppingList.IsNull() {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("🛒 *Shopping List*\n\n")
	writeShoppingValue(&sb, *plan.ShoppingList)
	out := sb.String()
	if len(out) > maxMessageLen {
		// Cut on a line boundary so no Markdown entity is left open.
		out = out[:strings.LastIndexByte(out[:maxMessageLen], '\n')+1] + "…"
	}
	return out
}

// writeShoppingValue accepts a flat list, a list of objects or an object of
// categories, the shapes models actually produce.
func writeShoppingValue(sb *strings.Builder, v jsonrecover.Value) {
	switch v.Kind() {
	case jsonrecover.Array:
		for _, item := range v.Items() {
			fmt.Fprintf(sb, "• %s\n", escape(plainText(item)))
		}
	case jsonrecover.Object:
		for _, m := range v.Members() {
			fmt.Fprintf(sb, "\n*%s*\n", escape(m.Key))
			writeShoppingValue(sb, m.Value)
		}
	default:
		fmt.Fprintf(sb, "%s\n", escape(plainText(v)))
	}
}

func plainText(v jsonrecover.Value) string {
	if s, ok := v.Text(); ok {
		return s
	}
	if v.Kind() == jsonrecover.Object {
		var parts []string
		for _, m := range v.Members() {
			parts = append(parts, plainText(m.Value))
		}
		return strings.Join(parts, " ")
	}
	return v.String()
}

func formatMetrics(usage []metrics.DailyUsage, health metrics.SysHealth) string {
	var sb strings.Builder
	sb.WriteString("📊 *Usage & Health Report*\n\n")

	sb.WriteString("🗓 *Recent LLM Activity*\n")
	if len(usage) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, d := range usage {
		fmt.Fprintf(&sb, "• *%s*: %d tokens (%d execs", d.Date, d.TotalPrompt+d.TotalCompletion, d.TotalExecution)
		if d.Truncated > 0 {
			fmt.Fprintf(&sb, ", %d truncated", d.Truncated)
		}
		sb.WriteString(")\n")
	}

	sb.WriteString("\n🧠 *System Health*\n")
	fmt.Fprintf(&sb, "• RAM: %dMB (Alloc) / %dMB (Sys)\n", health.AllocMB, health.SysMB)
	fmt.Fprintf(&sb, "• Goroutines: %d\n", health.Goroutines)
	fmt.Fprintf(&sb, "• Database: %s\n", health.DatabaseSize)
	return sb.String()
}
