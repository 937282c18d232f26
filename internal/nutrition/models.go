package nutrition

import "nutrition-planner/internal/jsonrecover"

// PlaceholderOption fills a meal slot that came back without options.
const PlaceholderOption = "Balanced option of your choice"

// ExtraMealName names an extra meal whose entry carried no name at all.
const ExtraMealName = "Extra"

// Macros holds unit-suffixed magnitudes exactly as the generator wrote them.
type Macros struct {
	Protein string `json:"protein"`
	Fat     string `json:"fat"`
	Carbs   string `json:"carbs"`
}

// MealSlot is one meal of a day.
type MealSlot struct {
	Time            string       `json:"time"`
	Category        MealCategory `json:"category"`
	Options         []string     `json:"options"`
	CalorieEstimate *float64     `json:"calorieEstimate,omitempty"`
	GramWeight      *float64     `json:"gramWeight,omitempty"`
}

func (m MealSlot) clone() MealSlot {
	out := m
	out.Options = append([]string(nil), m.Options...)
	if m.CalorieEstimate != nil {
		v := *m.CalorieEstimate
		out.CalorieEstimate = &v
	}
	if m.GramWeight != nil {
		v := *m.GramWeight
		out.GramWeight = &v
	}
	return out
}

// DayPlan is one day of the week. Meals[0:4] are Breakfast, Lunch, Snack
// and Dinner in that order; extras follow.
type DayPlan struct {
	DayName Day        `json:"dayName"`
	Meals   []MealSlot `json:"meals"`
}

// Extras returns the meals after the four canonical slots.
func (d DayPlan) Extras() []MealSlot {
	if len(d.Meals) <= len(MealCategories) {
		return nil
	}
	return d.Meals[len(MealCategories):]
}

// rotated returns a deep copy of d named day, with every slot's options
// rotated left by one.
func (d DayPlan) rotated(day Day) DayPlan {
	out := DayPlan{DayName: day, Meals: make([]MealSlot, len(d.Meals))}
	for i, m := range d.Meals {
		c := m.clone()
		if len(c.Options) > 1 {
			c.Options = append(c.Options[1:], c.Options[0])
		}
		out.Meals[i] = c
	}
	return out
}

// WeeklyNutritionPlan is the canonical plan. WeeklySchedule always holds the
// seven days Monday..Sunday and MealDistributionPercent always sums to 100.
type WeeklyNutritionPlan struct {
	DailyCalories           float64            `json:"dailyCalories"`
	Macros                  Macros             `json:"macros"`
	MealDistributionPercent Distribution       `json:"mealDistributionPercent"`
	WeeklySchedule          []DayPlan          `json:"weeklySchedule"`
	ShoppingList            *jsonrecover.Value `json:"shoppingList,omitempty"`
	WeeklyProgression       *jsonrecover.Value `json:"weeklyProgression,omitempty"`
	Motivation              *jsonrecover.Value `json:"motivation,omitempty"`
}

// Day returns the plan for a canonical day.
func (p *WeeklyNutritionPlan) Day(day Day) (DayPlan, bool) {
	for _, d := range p.WeeklySchedule {
		if d.DayName == day {
			return d, true
		}
	}
	return DayPlan{}, false
}
