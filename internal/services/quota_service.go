package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"billflow/internal/caching"
	"billflow/internal/common"
	"billflow/internal/models"
	"billflow/internal/quota"
	"billflow/internal/repositories"

	"github.com/google/uuid"
)

const (
	cacheTTLQuota  = 60 * time.Second
	refreshLockTTL = 10 * time.Second
	cacheTTLPlans  = 10 * time.Minute
)

// QuotaService serves quota snapshots. Reads go through the cache; on a miss
// the snapshot is recomputed from plan limits and usage aggregates, with a
// short lock so concurrent misses for the same user do not stampede the
// aggregate query.
type QuotaService interface {
	GetQuota(ctx context.Context, userID uuid.UUID) (*quota.Info, error)
	Refresh(ctx context.Context, userID uuid.UUID) (*quota.Info, error)
	CheckRateLimit(ctx context.Context, userID uuid.UUID) (bool, error)
}

type quotaService struct {
	subscriptionRepo repositories.SubscriptionRepository
	planRepo         repositories.PlanRepository
	usageRepo        repositories.UsageRepository
	cache            caching.CacheService
}

func NewQuotaService(
	subscriptionRepo repositories.SubscriptionRepository,
	planRepo repositories.PlanRepository,
	usageRepo repositories.UsageRepository,
	cache caching.CacheService,
) QuotaService {
	return &quotaService{
		subscriptionRepo: subscriptionRepo,
		planRepo:         planRepo,
		usageRepo:        usageRepo,
		cache:            cache,
	}
}

func (s *quotaService) GetQuota(ctx context.Context, userID uuid.UUID) (*quota.Info, error) {
	cached, err := s.cache.GetQuotaSnapshot(ctx, userID)
	if err != nil {
		log.Printf("WARN: quota cache read failed for user %s: %v", userID, err)
	}
	if cached != nil {
		return cached, nil
	}
	return s.Refresh(ctx, userID)
}

// Refresh recomputes the snapshot and stores it. Only the lock holder writes
// the cache; other callers still get a freshly computed snapshot.
func (s *quotaService) Refresh(ctx context.Context, userID uuid.UUID) (*quota.Info, error) {
	acquired, err := s.cache.AcquireRefreshLock(ctx, userID, refreshLockTTL)
	if err != nil {
		log.Printf("WARN: quota refresh lock failed for user %s: %v", userID, err)
		acquired = false
	}

	info, err := s.compute(ctx, userID)
	if err != nil {
		if acquired {
			if releaseErr := s.cache.ReleaseRefreshLock(ctx, userID); releaseErr != nil {
				log.Printf("WARN: failed to release quota refresh lock for user %s: %v", userID, releaseErr)
			}
		}
		return nil, err
	}

	if acquired {
		if err := s.cache.SetQuotaSnapshot(ctx, userID, info, cacheTTLQuota); err != nil {
			log.Printf("WARN: failed to cache quota snapshot for user %s: %v", userID, err)
		}
		if err := s.cache.ReleaseRefreshLock(ctx, userID); err != nil {
			log.Printf("WARN: failed to release quota refresh lock for user %s: %v", userID, err)
		}
	}
	return info, nil
}

func (s *quotaService) compute(ctx context.Context, userID uuid.UUID) (*quota.Info, error) {
	sub, err := s.subscriptionRepo.GetCurrentByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("no active subscription: %w", common.ErrNotFound)
	}

	plan, err := s.planRepo.GetByID(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}

	totals, err := s.usageRepo.AggregateSince(ctx, userID, sub.CurrentPeriodStart)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	limits := plan.ResourceLimits()
	used := map[string]int64{
		models.ResourceAPICalls: totals.APICalls,
		models.ResourceTokens:   totals.Tokens,
		models.ResourceStorage:  totals.StorageBytes,
	}
	resets := map[string]time.Time{
		models.ResourceAPICalls: sub.CurrentPeriodEnd,
		models.ResourceTokens:   sub.CurrentPeriodEnd,
		models.ResourceStorage:  sub.CurrentPeriodEnd,
	}

	info, err := quota.Compute(limits, used, resets, now)
	if err != nil {
		return nil, err
	}
	info.RateLimitPerMinute = plan.RateLimitPerMinute
	info.Features = plan.Features
	info.Sequence = now.UnixNano()
	return info, nil
}

// CheckRateLimit enforces the plan's per-minute request ceiling. Returns true
// when the caller is over the limit.
func (s *quotaService) CheckRateLimit(ctx context.Context, userID uuid.UUID) (bool, error) {
	info, err := s.GetQuota(ctx, userID)
	if err != nil {
		return false, err
	}
	if info.RateLimitPerMinute <= 0 {
		return false, nil
	}
	return s.cache.IsRateLimited(ctx, userID.String(), info.RateLimitPerMinute, time.Minute)
}
