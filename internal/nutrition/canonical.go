// Package nutrition normalizes recovered completions into canonical weekly
// nutrition plans.
package nutrition

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MealCategory is one of the four fixed meal slots. Extra meals carry their
// original free-text name in the same field.
type MealCategory string

const (
	Breakfast MealCategory = "Breakfast"
	Lunch     MealCategory = "Lunch"
	Snack     MealCategory = "Snack"
	Dinner    MealCategory = "Dinner"
)

// MealCategories is the fixed order of the canonical meal slots.
var MealCategories = [4]MealCategory{Breakfast, Lunch, Snack, Dinner}

// Day is a canonical week day.
type Day string

const (
	Monday    Day = "Monday"
	Tuesday   Day = "Tuesday"
	Wednesday Day = "Wednesday"
	Thursday  Day = "Thursday"
	Friday    Day = "Friday"
	Saturday  Day = "Saturday"
	Sunday    Day = "Sunday"
)

// Week is the fixed order of weeklySchedule entries.
var Week = [7]Day{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

var mealPatterns = []struct {
	category MealCategory
	needles  []string
}{
	{Breakfast, []string{"desayuno", "breakfast"}},
	{Lunch, []string{"almuerzo", "lunch"}},
	{Snack, []string{"snack", "merienda", "colacion"}},
	{Dinner, []string{"cena", "dinner", "supper"}},
}

var dayPatterns = []struct {
	day     Day
	needles []string
}{
	{Monday, []string{"lunes", "monday"}},
	{Tuesday, []string{"martes", "tuesday"}},
	{Wednesday, []string{"miercoles", "wednesday"}},
	{Thursday, []string{"jueves", "thursday"}},
	{Friday, []string{"viernes", "friday"}},
	{Saturday, []string{"sabado", "saturday"}},
	{Sunday, []string{"domingo", "sunday"}},
}

var defaultTimes = map[MealCategory]string{
	Breakfast: "08:00",
	Lunch:     "13:00",
	Snack:     "17:00",
	Dinner:    "20:30",
}

// CanonicalMeal maps a free-text meal name to its category. Matching is a
// case- and diacritic-insensitive substring test, checked in slot order, so
// "Pre-dinner snack" is a Snack.
func CanonicalMeal(name string) (MealCategory, bool) {
	folded := fold(name)
	if folded == "" {
		return "", false
	}
	for _, p := range mealPatterns {
		for _, needle := range p.needles {
			if strings.Contains(folded, needle) {
				return p.category, true
			}
		}
	}
	return "", false
}

// CanonicalDay maps a day name in Spanish or English to its canonical Day.
func CanonicalDay(name string) (Day, bool) {
	folded := fold(name)
	if folded == "" {
		return "", false
	}
	for _, p := range dayPatterns {
		for _, needle := range p.needles {
			if strings.Contains(folded, needle) {
				return p.day, true
			}
		}
	}
	return "", false
}

// DefaultTime returns the time assigned to a canonical slot that has none.
func DefaultTime(c MealCategory) string {
	return defaultTimes[c]
}

// fold lowercases s and strips combining marks ("Miércoles" -> "miercoles").
func fold(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	// transform.Chain keeps state, so each call builds its own.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// foldKey folds a JSON member name for alias lookup: "plan_semanal",
// "planSemanal" and "Plan semanal" all become "plansemanal".
func foldKey(s string) string {
	f := fold(s)
	var b strings.Builder
	b.Grow(len(f))
	for _, r := range f {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
