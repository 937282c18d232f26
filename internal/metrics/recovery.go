package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"nutrition-planner/internal/jsonrecover"
	"nutrition-planner/internal/nutrition"
)

var (
	PlanRecoveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plan_recoveries_total",
			Help: "Completions parsed, by recovery strategy",
		},
		[]string{"strategy"},
	)

	PlanOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plan_outcomes_total",
			Help: "Plan generation outcomes",
		},
		[]string{"outcome"},
	)

	PlanSynthesizedDays = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plan_synthesized_days_total",
			Help: "Week days cloned from other days because the completion omitted them",
		},
	)

	PlanPlaceholderSlots = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plan_placeholder_slots_total",
			Help: "Canonical meal slots filled with a placeholder",
		},
	)

	PlanDistributionDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plan_distribution_decisions_total",
			Help: "How the meal distribution of each plan was chosen",
		},
		[]string{"decision"},
	)

	PlanGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plan_generation_duration_seconds",
			Help:    "Duration of the completion call and normalization",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		[]string{"model"},
	)
)

// Outcome labels for PlanOutcomes.
const (
	OutcomeSuccess             = "success"
	OutcomeParseFailure        = "parse_failure"
	OutcomeMissingSchedule     = "missing_schedule"
	OutcomeMissingAnchorFields = "missing_anchor_fields"
	OutcomeProviderError       = "provider_error"
	OutcomeInvalidPlan         = "invalid_plan"
)

// ObserveRecovery counts a parsed completion under its recovery strategy,
// whether or not it goes on to normalize. Unparsed completions carry no
// strategy and are not counted.
func ObserveRecovery(strategy jsonrecover.Strategy) {
	if strategy != "" {
		PlanRecoveries.WithLabelValues(string(strategy)).Inc()
	}
}

// ObserveReport counts the repairs described by the report of a plan that
// passed normalization and validation.
func ObserveReport(report nutrition.Report) {
	PlanSynthesizedDays.Add(float64(len(report.SynthesizedDays)))
	PlanPlaceholderSlots.Add(float64(report.PlaceholderSlots))
	if report.Distribution != "" {
		PlanDistributionDecisions.WithLabelValues(string(report.Distribution)).Inc()
	}
}

// Outcome maps an engine error to its PlanOutcomes label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, jsonrecover.ErrUnparseable):
		return OutcomeParseFailure
	case errors.Is(err, nutrition.ErrMissingSchedule):
		return OutcomeMissingSchedule
	case errors.Is(err, nutrition.ErrMissingAnchorFields):
		return OutcomeMissingAnchorFields
	case errors.Is(err, nutrition.ErrInvalidPlan):
		return OutcomeInvalidPlan
	}
	return OutcomeProviderError
}
