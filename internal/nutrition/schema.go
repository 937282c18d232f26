package nutrition

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed plan_schema.json
var planSchemaJSON []byte

// ErrInvalidPlan is wrapped by every Validate failure.
var ErrInvalidPlan = errors.New("plan violates the canonical schema")

var planSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(planSchemaJSON))
})

// ValidateSchema checks a JSON document against the embedded plan schema.
func ValidateSchema(document []byte) error {
	schema, err := planSchema()
	if err != nil {
		return fmt.Errorf("failed to load plan schema: %w", err)
	}
	return checkResult(schema.Validate(gojsonschema.NewBytesLoader(document)))
}

// Validate checks a plan against the embedded schema and the invariants a
// schema cannot express: the distribution sums to 100, days are unique and
// in week order, and each day opens with the four canonical slots.
func Validate(plan *WeeklyNutritionPlan) error {
	if plan == nil {
		return fmt.Errorf("%w: nil plan", ErrInvalidPlan)
	}
	schema, err := planSchema()
	if err != nil {
		return fmt.Errorf("failed to load plan schema: %w", err)
	}
	if err := checkResult(schema.Validate(gojsonschema.NewGoLoader(plan))); err != nil {
		return err
	}

	if sum := plan.MealDistributionPercent.Sum(); sum != 100 {
		return fmt.Errorf("%w: meal distribution sums to %d", ErrInvalidPlan, sum)
	}
	for i, day := range plan.WeeklySchedule {
		if day.DayName != Week[i] {
			return fmt.Errorf("%w: day %d is %q, want %q", ErrInvalidPlan, i, day.DayName, Week[i])
		}
		for j, c := range MealCategories {
			if day.Meals[j].Category != c {
				return fmt.Errorf("%w: %s meal %d is %q, want %q", ErrInvalidPlan, day.DayName, j, day.Meals[j].Category, c)
			}
		}
	}
	return nil
}

func checkResult(result *gojsonschema.Result, err error) error {
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}
	errs := make([]string, len(result.Errors()))
	for i, desc := range result.Errors() {
		errs[i] = desc.String()
	}
	return fmt.Errorf("%w: %s", ErrInvalidPlan, strings.Join(errs, "; "))
}
