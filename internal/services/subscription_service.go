package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"billflow/internal/common"
	"billflow/internal/models"
	"billflow/internal/repositories"

	"github.com/google/uuid"
)

// gracePeriod is how long a past_due subscription keeps service before it
// drops to unpaid.
const gracePeriod = 7 * 24 * time.Hour

const cacheTTLSubscription = 5 * time.Minute

// SubscriptionService handles subscription lifecycle business logic.
type SubscriptionService interface {
	Create(ctx context.Context, userID uuid.UUID, req *CreateSubscriptionRequest) (*models.Subscription, error)
	GetByID(ctx context.Context, userID, subscriptionID uuid.UUID) (*models.Subscription, error)
	GetCurrent(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Subscription, error)
	Cancel(ctx context.Context, userID, subscriptionID uuid.UUID, atPeriodEnd bool) (*models.Subscription, error)
	Upgrade(ctx context.Context, userID, subscriptionID uuid.UUID, newTier models.PlanTier) (*models.Subscription, error)
	HandlePaymentSucceeded(ctx context.Context, gatewaySubscriptionID string) error
	HandlePaymentFailed(ctx context.Context, gatewaySubscriptionID string) error
	HandleGatewayCancellation(ctx context.Context, gatewaySubscriptionID string) error

	// Background sweeps
	RenewDue(ctx context.Context, now time.Time, limit int) (int, error)
	ExpireGracePeriods(ctx context.Context, now time.Time, limit int) (int, error)
}

type CreateSubscriptionRequest struct {
	PlanTier        string  `json:"plan_tier"`
	BillingCycle    string  `json:"billing_cycle"`
	PaymentMethodID *string `json:"payment_method_id"`
	Quantity        int     `json:"quantity"`
}

type subscriptionService struct {
	subscriptionRepo repositories.SubscriptionRepository
	planRepo         repositories.PlanRepository
	invoiceSvc       InvoiceServiceInterface
	gateway          PaymentGateway
	cache            CacheInvalidator
}

// CacheInvalidator is the slice of the cache the services need for
// invalidation and read-through writes.
type CacheInvalidator interface {
	SetSubscriptionCache(ctx context.Context, subscription *models.Subscription) error
	DropUserCaches(ctx context.Context, userID uuid.UUID)
}

func NewSubscriptionService(
	subscriptionRepo repositories.SubscriptionRepository,
	planRepo repositories.PlanRepository,
	invoiceSvc InvoiceServiceInterface,
	gateway PaymentGateway,
	cache CacheInvalidator,
) SubscriptionService {
	return &subscriptionService{
		subscriptionRepo: subscriptionRepo,
		planRepo:         planRepo,
		invoiceSvc:       invoiceSvc,
		gateway:          gateway,
		cache:            cache,
	}
}

func (s *subscriptionService) Create(ctx context.Context, userID uuid.UUID, req *CreateSubscriptionRequest) (*models.Subscription, error) {
	tier, err := models.ValidatePlanTier(req.PlanTier)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, common.ErrValidation)
	}
	cycle, err := models.ValidateBillingCycle(req.BillingCycle)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, common.ErrValidation)
	}
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		return nil, fmt.Errorf("quantity must be positive: %w", common.ErrValidation)
	}

	existing, err := s.subscriptionRepo.GetCurrentByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("user already has subscription %s: %w", existing.ID, common.ErrConflict)
	}

	plan, err := s.planRepo.GetByTierAndCycle(ctx, tier, cycle)
	if err != nil {
		return nil, err
	}

	if !plan.IsFree() && req.PaymentMethodID == nil {
		return nil, fmt.Errorf("plan %s requires a payment method: %w", plan.Tier, common.ErrPaymentRequired)
	}
	if req.PaymentMethodID != nil {
		if err := s.gateway.ValidatePaymentMethod(ctx, *req.PaymentMethodID); err != nil {
			return nil, fmt.Errorf("%v: %w", err, common.ErrValidation)
		}
	}

	now := time.Now().UTC()
	sub := &models.Subscription{
		ID:                 uuid.New(),
		UserID:             userID,
		PlanID:             plan.ID,
		PlanTier:           plan.Tier,
		Status:             models.SubscriptionActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   advancePeriod(now, cycle),
		AutoRenew:          !plan.IsFree(),
		UnitPrice:          plan.Price,
		Quantity:           quantity,
		PaymentMethodID:    req.PaymentMethodID,
	}

	if plan.TrialDays > 0 {
		trialEnd := now.AddDate(0, 0, plan.TrialDays)
		sub.Status = models.SubscriptionTrial
		sub.TrialStart = &now
		sub.TrialEnd = &trialEnd
		sub.CurrentPeriodEnd = trialEnd
	} else if !plan.IsFree() {
		gwSub, err := s.gateway.CreateSubscription(ctx, &GatewaySubscriptionRequest{
			PlanCode:        string(plan.Tier) + "_" + string(plan.BillingCycle),
			CustomerID:      userID.String(),
			PaymentMethodID: *req.PaymentMethodID,
			Amount:          plan.Price * float64(quantity),
			Currency:        plan.Currency,
			Interval:        string(plan.BillingCycle),
			Quantity:        quantity,
		})
		if err != nil {
			return nil, err
		}
		sub.GatewaySubscriptionID = &gwSub.ID
	}

	if err := sub.Validate(now); err != nil {
		return nil, fmt.Errorf("%v: %w", err, common.ErrValidation)
	}
	if err := s.subscriptionRepo.Create(ctx, sub); err != nil {
		return nil, err
	}

	if err := s.cache.SetSubscriptionCache(ctx, sub); err != nil {
		log.Printf("WARN: failed to cache subscription %s: %v", sub.ID, err)
	}
	return sub, nil
}

func (s *subscriptionService) GetByID(ctx context.Context, userID, subscriptionID uuid.UUID) (*models.Subscription, error) {
	return s.subscriptionRepo.GetByID(ctx, userID, subscriptionID)
}

func (s *subscriptionService) GetCurrent(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	sub, err := s.subscriptionRepo.GetCurrentByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("no active subscription: %w", common.ErrNotFound)
	}
	return sub, nil
}

func (s *subscriptionService) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Subscription, error) {
	return s.subscriptionRepo.List(ctx, userID, limit, offset)
}

func (s *subscriptionService) Cancel(ctx context.Context, userID, subscriptionID uuid.UUID, atPeriodEnd bool) (*models.Subscription, error) {
	sub, err := s.subscriptionRepo.GetByID(ctx, userID, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status.IsTerminal() {
		return nil, fmt.Errorf("subscription %s is already %s: %w", sub.ID, sub.Status, common.ErrInvalidSubscriptionState)
	}

	expected := sub.Status
	now := time.Now().UTC()

	if atPeriodEnd {
		// Service continues until the period ends, then the sweep cancels.
		sub.CancelAtPeriodEnd = true
		sub.AutoRenew = false
	} else {
		if !models.CanTransition(sub.Status, models.SubscriptionCancelled) {
			return nil, fmt.Errorf("cannot cancel from %s: %w", sub.Status, common.ErrInvalidSubscriptionState)
		}
		sub.Status = models.SubscriptionCancelled
		sub.CancelledAt = &now
		sub.AutoRenew = false

		if sub.GatewaySubscriptionID != nil {
			if _, err := s.gateway.CancelSubscription(ctx, *sub.GatewaySubscriptionID); err != nil {
				log.Printf("WARN: gateway cancel failed for subscription %s: %v", sub.ID, err)
			}
		}
	}

	if err := s.subscriptionRepo.UpdateGuarded(ctx, sub, expected); err != nil {
		return nil, err
	}
	s.cache.DropUserCaches(ctx, userID)
	return sub, nil
}

// Upgrade moves the subscription to a higher tier mid-period. The billing
// anchor is preserved: the current period keeps its start and end dates, and
// the tier difference is settled with a proration invoice.
func (s *subscriptionService) Upgrade(ctx context.Context, userID, subscriptionID uuid.UUID, newTier models.PlanTier) (*models.Subscription, error) {
	sub, err := s.subscriptionRepo.GetByID(ctx, userID, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status.IsTerminal() {
		return nil, fmt.Errorf("subscription %s is %s: %w", sub.ID, sub.Status, common.ErrInvalidSubscriptionState)
	}
	if !newTier.IsUpgradeFrom(sub.PlanTier) {
		return nil, fmt.Errorf("%s is not an upgrade from %s: %w", newTier, sub.PlanTier, common.ErrValidation)
	}

	currentPlan, err := s.planRepo.GetByID(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}
	newPlan, err := s.planRepo.GetByTierAndCycle(ctx, newTier, currentPlan.BillingCycle)
	if err != nil {
		return nil, err
	}
	if !newPlan.IsFree() && sub.PaymentMethodID == nil {
		return nil, fmt.Errorf("plan %s requires a payment method: %w", newPlan.Tier, common.ErrPaymentRequired)
	}

	now := time.Now().UTC()
	credit, charge := prorate(sub, newPlan, now)

	expected := sub.Status
	sub.PlanID = newPlan.ID
	sub.PlanTier = newPlan.Tier
	sub.UnitPrice = newPlan.Price

	if err := s.subscriptionRepo.UpdateGuarded(ctx, sub, expected); err != nil {
		return nil, err
	}

	if charge-credit > 0.005 {
		if _, err := s.invoiceSvc.GenerateProrationInvoice(ctx, sub, currentPlan, newPlan, credit, charge); err != nil {
			log.Printf("WARN: failed to generate proration invoice for subscription %s: %v", sub.ID, err)
		}
	}

	s.cache.DropUserCaches(ctx, userID)
	return sub, nil
}

// prorate returns the unused credit on the old price and the charge for the
// remainder of the period at the new price.
func prorate(sub *models.Subscription, newPlan *models.PricingPlan, now time.Time) (credit, charge float64) {
	periodDays := common.DaysUntil(sub.CurrentPeriodEnd, sub.CurrentPeriodStart)
	if periodDays <= 0 {
		return 0, 0
	}
	remainingDays := common.DaysUntil(sub.CurrentPeriodEnd, now)
	if remainingDays <= 0 {
		return 0, 0
	}
	fraction := float64(remainingDays) / float64(periodDays)
	if fraction > 1 {
		fraction = 1
	}
	credit = fraction * sub.UnitPrice * float64(sub.Quantity)
	charge = fraction * newPlan.Price * float64(sub.Quantity)
	return credit, charge
}

func (s *subscriptionService) HandlePaymentSucceeded(ctx context.Context, gatewaySubscriptionID string) error {
	sub, err := s.subscriptionRepo.GetByGatewayID(ctx, gatewaySubscriptionID)
	if err != nil {
		return err
	}
	if sub.Status != models.SubscriptionPastDue && sub.Status != models.SubscriptionUnpaid {
		return nil
	}

	expected := sub.Status
	sub.Status = models.SubscriptionActive
	sub.GracePeriodEnd = nil
	if err := s.subscriptionRepo.UpdateGuarded(ctx, sub, expected); err != nil {
		return err
	}
	s.cache.DropUserCaches(ctx, sub.UserID)
	return nil
}

func (s *subscriptionService) HandlePaymentFailed(ctx context.Context, gatewaySubscriptionID string) error {
	sub, err := s.subscriptionRepo.GetByGatewayID(ctx, gatewaySubscriptionID)
	if err != nil {
		return err
	}
	if sub.Status != models.SubscriptionActive && sub.Status != models.SubscriptionTrial {
		return nil
	}

	expected := sub.Status
	graceEnd := time.Now().UTC().Add(gracePeriod)
	sub.Status = models.SubscriptionPastDue
	sub.GracePeriodEnd = &graceEnd
	if err := s.subscriptionRepo.UpdateGuarded(ctx, sub, expected); err != nil {
		return err
	}
	s.cache.DropUserCaches(ctx, sub.UserID)
	return nil
}

func (s *subscriptionService) HandleGatewayCancellation(ctx context.Context, gatewaySubscriptionID string) error {
	sub, err := s.subscriptionRepo.GetByGatewayID(ctx, gatewaySubscriptionID)
	if err != nil {
		return err
	}
	if sub.Status.IsTerminal() {
		return nil
	}

	expected := sub.Status
	now := time.Now().UTC()
	sub.Status = models.SubscriptionCancelled
	sub.CancelledAt = &now
	sub.AutoRenew = false
	if err := s.subscriptionRepo.UpdateGuarded(ctx, sub, expected); err != nil {
		return err
	}
	s.cache.DropUserCaches(ctx, sub.UserID)
	return nil
}

// RenewDue processes subscriptions whose period has ended. Renewing
// subscriptions roll into a new period and get a renewal invoice; deferred
// cancellations and lapsed trials terminate.
func (s *subscriptionService) RenewDue(ctx context.Context, now time.Time, limit int) (int, error) {
	candidates, err := s.subscriptionRepo.ListExpiryCandidates(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, sub := range candidates {
		if err := s.settlePeriodEnd(ctx, sub, now); err != nil {
			log.Printf("WARN: period-end settlement failed for subscription %s: %v", sub.ID, err)
			continue
		}
		processed++
	}
	return processed, nil
}

func (s *subscriptionService) settlePeriodEnd(ctx context.Context, sub *models.Subscription, now time.Time) error {
	expected := sub.Status

	if sub.CancelAtPeriodEnd {
		sub.Status = models.SubscriptionCancelled
		sub.CancelledAt = &now
		if err := s.subscriptionRepo.UpdateGuarded(ctx, sub, expected); err != nil {
			return err
		}
		s.cache.DropUserCaches(ctx, sub.UserID)
		return nil
	}

	plan, err := s.planRepo.GetByID(ctx, sub.PlanID)
	if err != nil {
		return err
	}

	// Trials without a payment method cannot convert.
	if sub.Status == models.SubscriptionTrial && !plan.IsFree() && sub.PaymentMethodID == nil {
		sub.Status = models.SubscriptionExpired
		if err := s.subscriptionRepo.UpdateGuarded(ctx, sub, expected); err != nil {
			return err
		}
		s.cache.DropUserCaches(ctx, sub.UserID)
		return nil
	}

	if !sub.AutoRenew && !plan.IsFree() {
		sub.Status = models.SubscriptionExpired
		if err := s.subscriptionRepo.UpdateGuarded(ctx, sub, expected); err != nil {
			return err
		}
		s.cache.DropUserCaches(ctx, sub.UserID)
		return nil
	}

	// Roll into the next period on the existing anchor.
	sub.CurrentPeriodStart = sub.CurrentPeriodEnd
	sub.CurrentPeriodEnd = advancePeriod(sub.CurrentPeriodEnd, plan.BillingCycle)
	if sub.Status == models.SubscriptionTrial {
		sub.Status = models.SubscriptionActive
	}
	if err := s.subscriptionRepo.UpdateGuarded(ctx, sub, expected); err != nil {
		return err
	}

	if !plan.IsFree() {
		if _, err := s.invoiceSvc.GenerateSubscriptionInvoice(ctx, sub, plan); err != nil {
			log.Printf("WARN: failed to generate renewal invoice for subscription %s: %v", sub.ID, err)
		}
	}
	s.cache.DropUserCaches(ctx, sub.UserID)
	return nil
}

// ExpireGracePeriods drops past_due subscriptions to unpaid once their grace
// window closes.
func (s *subscriptionService) ExpireGracePeriods(ctx context.Context, now time.Time, limit int) (int, error) {
	candidates, err := s.subscriptionRepo.ListGraceExpired(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, sub := range candidates {
		expected := sub.Status
		sub.Status = models.SubscriptionUnpaid
		if err := s.subscriptionRepo.UpdateGuarded(ctx, sub, expected); err != nil {
			log.Printf("WARN: failed to mark subscription %s unpaid: %v", sub.ID, err)
			continue
		}
		s.cache.DropUserCaches(ctx, sub.UserID)
		processed++
	}
	return processed, nil
}

func advancePeriod(from time.Time, cycle models.BillingCycle) time.Time {
	if cycle == models.BillingCycleYearly {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}
