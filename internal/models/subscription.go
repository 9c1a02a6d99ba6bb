package models

import (
	"time"

	"billflow/internal/common"

	"github.com/google/uuid"
)

// SubscriptionStatus is a subscription lifecycle state.
type SubscriptionStatus string

const (
	SubscriptionTrial     SubscriptionStatus = "trial"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionUnpaid    SubscriptionStatus = "unpaid"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

// subscriptionTransitions is the lifecycle state machine. Cancelled and
// expired are terminal. Expiry is reachable from every non-terminal state
// when the period ends with no renewal and no active trial.
var subscriptionTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionTrial:     {SubscriptionActive, SubscriptionExpired, SubscriptionCancelled},
	SubscriptionActive:    {SubscriptionPastDue, SubscriptionCancelled, SubscriptionExpired},
	SubscriptionPastDue:   {SubscriptionActive, SubscriptionUnpaid, SubscriptionCancelled, SubscriptionExpired},
	SubscriptionUnpaid:    {SubscriptionCancelled, SubscriptionExpired},
	SubscriptionCancelled: {},
	SubscriptionExpired:   {},
}

// CanTransition reports whether the lifecycle allows moving from one status to another.
func CanTransition(from, to SubscriptionStatus) bool {
	for _, s := range subscriptionTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed from the status.
func (s SubscriptionStatus) IsTerminal() bool {
	return len(subscriptionTransitions[s]) == 0
}

// Subscription binds a user to a pricing plan for a billing period.
// Derived values (active/trial/expired flags, day counts) are computed at
// read time from the stored fields and are never persisted.
type Subscription struct {
	ID                    uuid.UUID          `json:"id" db:"id"`
	UserID                uuid.UUID          `json:"user_id" db:"user_id"`
	PlanID                uuid.UUID          `json:"plan_id" db:"plan_id"`
	PlanTier              PlanTier           `json:"plan_tier" db:"plan_tier"`
	Status                SubscriptionStatus `json:"status" db:"status"`
	CurrentPeriodStart    time.Time          `json:"current_period_start" db:"current_period_start"`
	CurrentPeriodEnd      time.Time          `json:"current_period_end" db:"current_period_end"`
	TrialStart            *time.Time         `json:"trial_start" db:"trial_start"`
	TrialEnd              *time.Time         `json:"trial_end" db:"trial_end"`
	CancelAtPeriodEnd     bool               `json:"cancel_at_period_end" db:"cancel_at_period_end"`
	CancelledAt           *time.Time         `json:"cancelled_at" db:"cancelled_at"`
	AutoRenew             bool               `json:"auto_renew" db:"auto_renew"`
	UnitPrice             float64            `json:"unit_price" db:"unit_price"`
	Quantity              int                `json:"quantity" db:"quantity"`
	PaymentMethodID       *string            `json:"payment_method_id" db:"payment_method_id"`
	GatewaySubscriptionID *string            `json:"gateway_subscription_id" db:"gateway_subscription_id"`
	GracePeriodEnd        *time.Time         `json:"grace_period_end" db:"grace_period_end"`
	CreatedAt             time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at" db:"updated_at"`
}

// IsActive reports whether the subscription grants access right now.
// Trial and the past-due grace window still count as active access.
func (s *Subscription) IsActive(now time.Time) bool {
	switch s.Status {
	case SubscriptionActive, SubscriptionTrial, SubscriptionPastDue:
		return now.UTC().Before(s.CurrentPeriodEnd.UTC())
	default:
		return false
	}
}

// IsTrial reports whether the subscription is in an unexpired trial.
func (s *Subscription) IsTrial(now time.Time) bool {
	return s.Status == SubscriptionTrial && s.TrialEnd != nil && now.UTC().Before(s.TrialEnd.UTC())
}

// IsExpired reports whether the subscription no longer grants access.
func (s *Subscription) IsExpired(now time.Time) bool {
	if s.Status == SubscriptionExpired || s.Status == SubscriptionCancelled {
		return true
	}
	return !now.UTC().Before(s.CurrentPeriodEnd.UTC())
}

// DaysUntilRenewal returns ceil((currentPeriodEnd - now) / day) in UTC.
func (s *Subscription) DaysUntilRenewal(now time.Time) int {
	return common.DaysUntil(s.CurrentPeriodEnd, now)
}

// DaysInTrial returns the remaining trial days (ceiling), 0 when not trialing.
func (s *Subscription) DaysInTrial(now time.Time) int {
	if s.TrialEnd == nil {
		return 0
	}
	return common.DaysUntil(*s.TrialEnd, now)
}

// Validate enforces the stored-field invariants before any write.
func (s *Subscription) Validate(now time.Time) error {
	if !s.CurrentPeriodEnd.After(s.CurrentPeriodStart) {
		return common.ErrValidation
	}
	if s.Quantity <= 0 || s.UnitPrice < 0 {
		return common.ErrValidation
	}
	if s.Status == SubscriptionTrial {
		if s.TrialEnd == nil || !now.UTC().Before(s.TrialEnd.UTC()) {
			return common.ErrValidation
		}
	}
	return nil
}
