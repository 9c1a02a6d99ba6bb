package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"billflow/internal/common"
	"billflow/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type SubscriptionRepository interface {
	Create(ctx context.Context, subscription *models.Subscription) error
	GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Subscription, error)
	GetCurrentByUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	GetByGatewayID(ctx context.Context, gatewayID string) (*models.Subscription, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Subscription, error)
	UpdateGuarded(ctx context.Context, subscription *models.Subscription, expected models.SubscriptionStatus) error
	ListExpiryCandidates(ctx context.Context, now time.Time, limit int) ([]*models.Subscription, error)
	ListGraceExpired(ctx context.Context, now time.Time, limit int) ([]*models.Subscription, error)
}

type subscriptionRepo struct {
	db DB
}

func NewSubscriptionRepository(db DB) SubscriptionRepository {
	return &subscriptionRepo{db: db}
}

const subscriptionColumns = `id, user_id, plan_id, plan_tier, status, current_period_start, current_period_end, trial_start, trial_end, cancel_at_period_end, cancelled_at, auto_renew, unit_price, quantity, payment_method_id, gateway_subscription_id, grace_period_end, created_at, updated_at`

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	s := &models.Subscription{}
	err := row.Scan(&s.ID, &s.UserID, &s.PlanID, &s.PlanTier, &s.Status, &s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.TrialStart, &s.TrialEnd, &s.CancelAtPeriodEnd, &s.CancelledAt, &s.AutoRenew, &s.UnitPrice, &s.Quantity, &s.PaymentMethodID, &s.GatewaySubscriptionID, &s.GracePeriodEnd, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *subscriptionRepo) Create(ctx context.Context, subscription *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (id, user_id, plan_id, plan_tier, status, current_period_start, current_period_end, trial_start, trial_end, cancel_at_period_end, cancelled_at, auto_renew, unit_price, quantity, payment_method_id, gateway_subscription_id, grace_period_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query, subscription.ID, subscription.UserID, subscription.PlanID, subscription.PlanTier, subscription.Status, subscription.CurrentPeriodStart, subscription.CurrentPeriodEnd, subscription.TrialStart, subscription.TrialEnd, subscription.CancelAtPeriodEnd, subscription.CancelledAt, subscription.AutoRenew, subscription.UnitPrice, subscription.Quantity, subscription.PaymentMethodID, subscription.GatewaySubscriptionID, subscription.GracePeriodEnd)
	return err
}

func (r *subscriptionRepo) GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1 AND id = $2
	`
	s, err := scanSubscription(r.db.QueryRow(ctx, query, userID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("subscription %s: %w", id, common.ErrNotFound)
	}
	return s, err
}

// GetCurrentByUser returns the user's most recent non-terminal subscription,
// or nil when the user has none.
func (r *subscriptionRepo) GetCurrentByUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1 AND status NOT IN ('cancelled', 'expired')
		ORDER BY created_at DESC
		LIMIT 1
	`
	s, err := scanSubscription(r.db.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (r *subscriptionRepo) GetByGatewayID(ctx context.Context, gatewayID string) (*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE gateway_subscription_id = $1
	`
	s, err := scanSubscription(r.db.QueryRow(ctx, query, gatewayID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("gateway subscription %s: %w", gatewayID, common.ErrNotFound)
	}
	return s, err
}

func (r *subscriptionRepo) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subscriptions []*models.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subscriptions = append(subscriptions, s)
	}
	return subscriptions, rows.Err()
}

// UpdateGuarded writes the subscription only when the stored status still
// matches expected. A lost race surfaces as ErrConflict instead of a silent
// overwrite.
func (r *subscriptionRepo) UpdateGuarded(ctx context.Context, subscription *models.Subscription, expected models.SubscriptionStatus) error {
	query := `
		UPDATE subscriptions
		SET plan_id = $1, plan_tier = $2, status = $3, current_period_start = $4, current_period_end = $5, trial_start = $6, trial_end = $7, cancel_at_period_end = $8, cancelled_at = $9, auto_renew = $10, unit_price = $11, quantity = $12, payment_method_id = $13, gateway_subscription_id = $14, grace_period_end = $15, updated_at = NOW()
		WHERE user_id = $16 AND id = $17 AND status = $18
	`
	tag, err := r.db.Exec(ctx, query, subscription.PlanID, subscription.PlanTier, subscription.Status, subscription.CurrentPeriodStart, subscription.CurrentPeriodEnd, subscription.TrialStart, subscription.TrialEnd, subscription.CancelAtPeriodEnd, subscription.CancelledAt, subscription.AutoRenew, subscription.UnitPrice, subscription.Quantity, subscription.PaymentMethodID, subscription.GatewaySubscriptionID, subscription.GracePeriodEnd, subscription.UserID, subscription.ID, expected)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("subscription %s no longer in state %s: %w", subscription.ID, expected, common.ErrConflict)
	}
	return nil
}

// ListExpiryCandidates returns non-terminal subscriptions whose period has
// ended, including trials that ran out.
func (r *subscriptionRepo) ListExpiryCandidates(ctx context.Context, now time.Time, limit int) ([]*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE status IN ('trial', 'active', 'past_due', 'unpaid') AND current_period_end <= $1
		ORDER BY current_period_end ASC
		LIMIT $2
	`
	return r.listByQuery(ctx, query, now, limit)
}

func (r *subscriptionRepo) ListGraceExpired(ctx context.Context, now time.Time, limit int) ([]*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE status = 'past_due' AND grace_period_end IS NOT NULL AND grace_period_end <= $1
		ORDER BY grace_period_end ASC
		LIMIT $2
	`
	return r.listByQuery(ctx, query, now, limit)
}

func (r *subscriptionRepo) listByQuery(ctx context.Context, query string, now time.Time, limit int) ([]*models.Subscription, error) {
	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subscriptions []*models.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subscriptions = append(subscriptions, s)
	}
	return subscriptions, rows.Err()
}
