package repositories

import (
	"context"
	"errors"
	"fmt"

	"billflow/internal/common"
	"billflow/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type PlanRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.PricingPlan, error)
	GetByTierAndCycle(ctx context.Context, tier models.PlanTier, cycle models.BillingCycle) (*models.PricingPlan, error)
	ListActive(ctx context.Context) ([]*models.PricingPlan, error)
}

type planRepo struct {
	db DB
}

func NewPlanRepository(db DB) PlanRepository {
	return &planRepo{db: db}
}

const planColumns = `id, name, description, tier, billing_cycle, price, currency, features, trial_days, setup_fee, active, api_call_limit, token_limit, storage_limit_bytes, rate_limit_per_minute, metadata, created_at, updated_at`

func scanPlan(row pgx.Row) (*models.PricingPlan, error) {
	plan := &models.PricingPlan{}
	err := row.Scan(&plan.ID, &plan.Name, &plan.Description, &plan.Tier, &plan.BillingCycle, &plan.Price, &plan.Currency, &plan.Features, &plan.TrialDays, &plan.SetupFee, &plan.Active, &plan.APICallLimit, &plan.TokenLimit, &plan.StorageLimitBytes, &plan.RateLimitPerMinute, &plan.Metadata, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (r *planRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PricingPlan, error) {
	query := `
		SELECT ` + planColumns + `
		FROM pricing_plans
		WHERE id = $1
	`
	plan, err := scanPlan(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("plan %s: %w", id, common.ErrPlanNotFound)
	}
	return plan, err
}

func (r *planRepo) GetByTierAndCycle(ctx context.Context, tier models.PlanTier, cycle models.BillingCycle) (*models.PricingPlan, error) {
	query := `
		SELECT ` + planColumns + `
		FROM pricing_plans
		WHERE tier = $1 AND billing_cycle = $2 AND active = true
	`
	plan, err := scanPlan(r.db.QueryRow(ctx, query, tier, cycle))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("no active %s %s plan: %w", tier, cycle, common.ErrPlanNotFound)
	}
	return plan, err
}

func (r *planRepo) ListActive(ctx context.Context) ([]*models.PricingPlan, error) {
	query := `
		SELECT ` + planColumns + `
		FROM pricing_plans
		WHERE active = true
		ORDER BY tier, billing_cycle
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []*models.PricingPlan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}
