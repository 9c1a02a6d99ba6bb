package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PlanTier identifies a catalog tier.
type PlanTier string

const (
	PlanTierFree       PlanTier = "free"
	PlanTierPro        PlanTier = "pro"
	PlanTierEnterprise PlanTier = "enterprise"
)

// BillingCycle is the renewal interval of a plan.
type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
)

// Quota resource names shared by plans, usage aggregation and the quota engine.
const (
	ResourceAPICalls = "api_calls"
	ResourceTokens   = "tokens"
	ResourceStorage  = "storage"
)

// PricingPlan is a catalog entry. Plans are published by an external catalog
// process and are immutable here; the service only reads them.
type PricingPlan struct {
	ID                 uuid.UUID         `json:"id" db:"id"`
	Name               string            `json:"name" db:"name"`
	Description        *string           `json:"description" db:"description"`
	Tier               PlanTier          `json:"tier" db:"tier"`
	BillingCycle       BillingCycle      `json:"billing_cycle" db:"billing_cycle"`
	Price              float64           `json:"price" db:"price"`
	Currency           string            `json:"currency" db:"currency"`
	Features           []string          `json:"features" db:"features"`
	TrialDays          int               `json:"trial_days" db:"trial_days"`
	SetupFee           float64           `json:"setup_fee" db:"setup_fee"`
	Active             bool              `json:"active" db:"active"`
	APICallLimit       int64             `json:"api_call_limit" db:"api_call_limit"`
	TokenLimit         int64             `json:"token_limit" db:"token_limit"`
	StorageLimitBytes  int64             `json:"storage_limit_bytes" db:"storage_limit_bytes"`
	RateLimitPerMinute int               `json:"rate_limit_per_minute" db:"rate_limit_per_minute"`
	Metadata           map[string]string `json:"metadata" db:"metadata"`
	CreatedAt          time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at" db:"updated_at"`
}

// ResourceLimits returns the plan's quota ceilings keyed by resource name.
// A zero limit means the resource is unlimited on this plan.
func (p *PricingPlan) ResourceLimits() map[string]int64 {
	return map[string]int64{
		ResourceAPICalls: p.APICallLimit,
		ResourceTokens:   p.TokenLimit,
		ResourceStorage:  p.StorageLimitBytes,
	}
}

// IsFree reports whether the plan carries no recurring charge.
func (p *PricingPlan) IsFree() bool {
	return p.Tier == PlanTierFree || p.Price == 0
}

// tierRank orders tiers for upgrade validation.
var tierRank = map[PlanTier]int{
	PlanTierFree:       0,
	PlanTierPro:        1,
	PlanTierEnterprise: 2,
}

// ValidatePlanTier validates a tier string from the wire.
func ValidatePlanTier(tier string) (PlanTier, error) {
	switch PlanTier(tier) {
	case PlanTierFree, PlanTierPro, PlanTierEnterprise:
		return PlanTier(tier), nil
	default:
		return "", fmt.Errorf("plan tier must be one of: free, pro, enterprise")
	}
}

// ValidateBillingCycle validates a billing cycle string from the wire.
func ValidateBillingCycle(cycle string) (BillingCycle, error) {
	switch BillingCycle(cycle) {
	case BillingCycleMonthly, BillingCycleYearly:
		return BillingCycle(cycle), nil
	default:
		return "", fmt.Errorf("billing cycle must be either 'monthly' or 'yearly'")
	}
}

// IsUpgradeFrom reports whether moving from to this tier is a strict upgrade.
func (t PlanTier) IsUpgradeFrom(from PlanTier) bool {
	return tierRank[t] > tierRank[from]
}

// KnownMetadataKeys documents the metadata keys the service understands.
// Unknown keys are preserved but never interpreted.
var KnownMetadataKeys = map[string]string{
	"display_badge":   "badge text shown next to the plan name",
	"support_channel": "support tier identifier (email, priority, phone)",
	"legacy_plan_id":  "identifier of the catalog entry this plan replaced",
}
