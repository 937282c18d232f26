package planner

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"text/template"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nutrition-planner/internal/jsonrecover"
	"nutrition-planner/internal/llm"
	"nutrition-planner/internal/metrics"
	"nutrition-planner/internal/nutrition"
	"nutrition-planner/internal/shared"
	"nutrition-planner/internal/storage"
)

//go:embed nutritionist_prompt.md
var nutritionistPrompt string

var promptTemplate = template.Must(template.New("nutritionist").Parse(nutritionistPrompt))

// AgentName labels the metrics recorded for plan generation.
const AgentName = "Nutritionist"

const defaultTimeout = 60 * time.Second

// ErrInvalidRequest is returned for a goal or intensity outside the table.
var ErrInvalidRequest = errors.New("invalid plan request")

// Request describes the plan a user asked for.
type Request struct {
	UserID    string
	Goal      nutrition.Goal
	Intensity nutrition.Intensity
	// DailyCalories is optional; zero lets the model estimate one.
	DailyCalories float64
	Preferences   string
}

// Result is a generated plan together with what it took to get it.
type Result struct {
	Plan     *nutrition.WeeklyNutritionPlan
	PlanID   int64
	Meta     shared.AgentMeta
	Strategy jsonrecover.Strategy
	Report   nutrition.Report
}

// UsageRecorder stores token usage for a completion call.
type UsageRecorder interface {
	RecordMeta(ctx context.Context, meta shared.AgentMeta) error
}

type promptData struct {
	Goal          nutrition.Goal
	Intensity     nutrition.Intensity
	DailyCalories float64
	Preferences   string
	Reference     nutrition.Distribution
}

// Planner handles the generation of nutrition plans.
type Planner struct {
	textGen    llm.TextGenerator
	normalizer *nutrition.Normalizer
	repo       *PlanRepository
	usage      UsageRecorder
	archive    *storage.CompletionArchive
	logger     *zap.Logger
	timeout    time.Duration
	table      *nutrition.ReferenceTable
	newID      func() string
}

// Option configures a Planner.
type Option func(*Planner)

// WithRepository persists every successful plan.
func WithRepository(repo *PlanRepository) Option {
	return func(p *Planner) { p.repo = repo }
}

// WithUsageRecorder records token usage for every completion call.
func WithUsageRecorder(u UsageRecorder) Option {
	return func(p *Planner) { p.usage = u }
}

// WithArchive keeps the raw completion text of every call.
func WithArchive(a *storage.CompletionArchive) Option {
	return func(p *Planner) { p.archive = a }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(p *Planner) { p.logger = l }
}

// WithTimeout bounds the completion call.
func WithTimeout(d time.Duration) Option {
	return func(p *Planner) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithReferenceTable replaces the embedded distribution table.
func WithReferenceTable(t *nutrition.ReferenceTable) Option {
	return func(p *Planner) {
		if t != nil {
			p.table = t
		}
	}
}

// NewPlanner creates a new Planner instance.
func NewPlanner(textGen llm.TextGenerator, opts ...Option) *Planner {
	p := &Planner{
		textGen: textGen,
		logger:  zap.NewNop(),
		timeout: defaultTimeout,
		table:   nutrition.DefaultReferenceTable(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.normalizer = nutrition.NewNormalizer(p.table)
	return p
}

// GeneratePlan asks the model for a plan, recovers and normalizes the
// answer and stores the result. Parse and normalization failures are
// terminal for the request and are not retried.
func (p *Planner) GeneratePlan(ctx context.Context, req Request) (Result, error) {
	goal, ok := nutrition.ParseGoal(string(req.Goal))
	if !ok {
		return Result{}, fmt.Errorf("%w: unknown goal %q", ErrInvalidRequest, req.Goal)
	}
	intensity, ok := nutrition.ParseIntensity(string(req.Intensity))
	if !ok {
		return Result{}, fmt.Errorf("%w: unknown intensity %q", ErrInvalidRequest, req.Intensity)
	}
	if req.DailyCalories < 0 {
		return Result{}, fmt.Errorf("%w: negative daily calories", ErrInvalidRequest)
	}
	req.Goal, req.Intensity = goal, intensity

	result, err := p.generate(ctx, req)
	metrics.PlanOutcomes.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		return result, err
	}

	if p.repo != nil {
		id, err := p.repo.Save(ctx, StoredPlan{
			RequestID: result.Meta.RequestID,
			UserID:    req.UserID,
			Goal:      goal,
			Intensity: intensity,
			Plan:      result.Plan,
			Report:    result.Report,
		})
		if err != nil {
			return result, fmt.Errorf("failed to save plan %s: %w", result.Meta.RequestID, err)
		}
		result.PlanID = id
	}
	return result, nil
}

func (p *Planner) generate(ctx context.Context, req Request) (Result, error) {
	requestID := p.newID()
	log := p.logger.With(
		zap.String("request_id", requestID),
		zap.String("goal", string(req.Goal)),
		zap.String("intensity", string(req.Intensity)),
	)

	prompt, err := buildPrompt(promptData{
		Goal:          req.Goal,
		Intensity:     req.Intensity,
		DailyCalories: req.DailyCalories,
		Preferences:   req.Preferences,
		Reference:     p.table.Lookup(req.Goal, req.Intensity),
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to build prompt: %w", err)
	}

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	resp, err := p.textGen.GenerateContent(callCtx, prompt)
	cancel()
	meta := shared.AgentMeta{
		AgentName: AgentName,
		RequestID: requestID,
		Usage:     resp.Usage,
		Latency:   time.Since(start),
		Truncated: resp.Truncated,
	}
	if err != nil {
		log.Error("completion failed", zap.Error(err), zap.Duration("latency", meta.Latency))
		return Result{Meta: meta}, fmt.Errorf("failed to generate plan from LLM: %w", err)
	}
	p.recordUsage(ctx, log, meta)
	p.archiveCompletion(log, requestID, start, resp.Content)

	plan, report, err := p.normalizer.FromCompletion(resp.Content, nutrition.Context{
		Goal:                 req.Goal,
		Intensity:            req.Intensity,
		DailyCalories:        req.DailyCalories,
		RequireDailyCalories: true,
	})
	metrics.ObserveRecovery(report.Strategy)
	result := Result{Meta: meta, Strategy: report.Strategy, Report: report}
	if err != nil {
		var parseErr *jsonrecover.ParseError
		if errors.As(err, &parseErr) {
			log.Error("completion could not be parsed",
				zap.String("excerpt", parseErr.Excerpt),
				zap.Int("length", parseErr.Length),
				zap.Bool("truncated", meta.Truncated),
			)
		} else {
			log.Error("completion could not be normalized",
				zap.Error(err),
				zap.String("strategy", string(report.Strategy)),
			)
		}
		return result, fmt.Errorf("failed to recover plan %s: %w", requestID, err)
	}

	if err := nutrition.Validate(plan); err != nil {
		log.Error("normalized plan failed validation", zap.Error(err))
		return result, fmt.Errorf("failed to validate plan %s: %w", requestID, err)
	}

	metrics.ObserveReport(report)
	metrics.PlanGenerationDuration.WithLabelValues(modelLabel(meta.Usage.Model)).Observe(time.Since(start).Seconds())

	log.Info("plan generated",
		zap.String("strategy", string(report.Strategy)),
		zap.Int("synthesized_days", len(report.SynthesizedDays)),
		zap.Int("placeholder_slots", report.PlaceholderSlots),
		zap.String("distribution", string(report.Distribution)),
		zap.Duration("latency", meta.Latency),
	)

	result.Plan = plan
	return result, nil
}

func (p *Planner) recordUsage(ctx context.Context, log *zap.Logger, meta shared.AgentMeta) {
	if p.usage == nil {
		return
	}
	if err := p.usage.RecordMeta(ctx, meta); err != nil {
		log.Warn("failed to record usage", zap.Error(err))
	}
}

func (p *Planner) archiveCompletion(log *zap.Logger, requestID string, at time.Time, raw string) {
	if p.archive == nil {
		return
	}
	if err := p.archive.Save(requestID, at, raw); err != nil {
		log.Warn("failed to archive completion", zap.Error(err))
	}
}

func modelLabel(model string) string {
	if model == "" {
		return "unknown"
	}
	return model
}

func buildPrompt(data promptData) (string, error) {
	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
