package planner

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"nutrition-planner/internal/nutrition"
)

// ErrPlanNotFound is returned by Get for an unknown id.
var ErrPlanNotFound = errors.New("meal plan not found")

// StoredPlan is a normalized plan as kept in the database.
type StoredPlan struct {
	ID        int64
	RequestID string
	UserID    string
	Goal      nutrition.Goal
	Intensity nutrition.Intensity
	Plan      *nutrition.WeeklyNutritionPlan
	Report    nutrition.Report
	CreatedAt time.Time
}

// PlanRepository is a database-backed repository for meal plans.
type PlanRepository struct {
	db *sql.DB
}

// NewPlanRepository creates a new PlanRepository.
func NewPlanRepository(db *sql.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// Save inserts a plan and returns its id. A zero CreatedAt is stamped now.
func (r *PlanRepository) Save(ctx context.Context, p StoredPlan) (int64, error) {
	if p.Plan == nil {
		return 0, fmt.Errorf("failed to save plan %s: nil plan", p.RequestID)
	}
	planJSON, err := json.Marshal(p.Plan)
	if err != nil {
		return 0, fmt.Errorf("failed to encode plan: %w", err)
	}
	reportJSON, err := json.Marshal(p.Report)
	if err != nil {
		return 0, fmt.Errorf("failed to encode report: %w", err)
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO meal_plans (request_id, user_id, goal, intensity, daily_calories, recovery_strategy, plan_json, report_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.RequestID, p.UserID, string(p.Goal), string(p.Intensity), p.Plan.DailyCalories,
		string(p.Report.Strategy), string(planJSON), string(reportJSON), createdAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert meal plan: %w", err)
	}
	return res.LastInsertId()
}

const selectPlan = `
	SELECT id, request_id, user_id, goal, intensity, plan_json, report_json, created_at
	FROM meal_plans`

// Get returns the plan with the given id.
func (r *PlanRepository) Get(ctx context.Context, id int64) (*StoredPlan, error) {
	row := r.db.QueryRowContext(ctx, selectPlan+` WHERE id = ?`, id)
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrPlanNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meal plan %d: %w", id, err)
	}
	return p, nil
}

// ListRecentByUserID retrieves the N most recent meal plans for a given user.
func (r *PlanRepository) ListRecentByUserID(ctx context.Context, userID string, limit int) ([]StoredPlan, error) {
	rows, err := r.db.QueryContext(ctx, selectPlan+`
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent meal plans for user %s: %w", userID, err)
	}
	defer rows.Close()

	var plans []StoredPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meal plan: %w", err)
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(s scanner) (*StoredPlan, error) {
	var (
		p                    StoredPlan
		goal, intensity      string
		planJSON, reportJSON string
		createdAt            int64
	)
	if err := s.Scan(&p.ID, &p.RequestID, &p.UserID, &goal, &intensity, &planJSON, &reportJSON, &createdAt); err != nil {
		return nil, err
	}
	p.Goal = nutrition.Goal(goal)
	p.Intensity = nutrition.Intensity(intensity)
	p.CreatedAt = time.Unix(createdAt, 0).UTC()

	p.Plan = &nutrition.WeeklyNutritionPlan{}
	if err := json.Unmarshal([]byte(planJSON), p.Plan); err != nil {
		return nil, fmt.Errorf("failed to decode plan %d: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(reportJSON), &p.Report); err != nil {
		return nil, fmt.Errorf("failed to decode report %d: %w", p.ID, err)
	}
	return &p, nil
}
