package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"billflow/internal/common"
	"billflow/internal/models"
	"billflow/internal/quota"
	"billflow/internal/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type quotaFixture struct {
	subRepo   *MockSubscriptionRepository
	planRepo  *MockPlanRepository
	usageRepo *MockUsageRepository
	cache     *MockCacheService
	service   QuotaService
	userID    uuid.UUID
}

func newQuotaFixture() *quotaFixture {
	f := &quotaFixture{
		subRepo:   new(MockSubscriptionRepository),
		planRepo:  new(MockPlanRepository),
		usageRepo: new(MockUsageRepository),
		cache:     new(MockCacheService),
		userID:    uuid.New(),
	}
	f.service = NewQuotaService(f.subRepo, f.planRepo, f.usageRepo, f.cache)
	return f
}

func TestGetQuota_CacheHit(t *testing.T) {
	ctx := context.Background()
	f := newQuotaFixture()
	snapshot := &quota.Info{Sequence: 42, GeneratedAt: time.Now().UTC()}

	f.cache.On("GetQuotaSnapshot", ctx, f.userID).Return(snapshot, nil)

	info, err := f.service.GetQuota(ctx, f.userID)

	require.NoError(t, err)
	assert.Equal(t, int64(42), info.Sequence)
	f.subRepo.AssertNotCalled(t, "GetCurrentByUser", mock.Anything, mock.Anything)
}

func TestGetQuota_MissComputesAndCaches(t *testing.T) {
	ctx := context.Background()
	f := newQuotaFixture()
	now := time.Now().UTC()

	plan := proPlan()
	plan.APICallLimit = 1000
	plan.TokenLimit = 0 // unlimited
	plan.StorageLimitBytes = 1 << 30
	plan.RateLimitPerMinute = 60
	plan.Features = []string{"api_access"}

	sub := &models.Subscription{
		ID:                 uuid.New(),
		UserID:             f.userID,
		PlanID:             plan.ID,
		Status:             models.SubscriptionActive,
		CurrentPeriodStart: now.AddDate(0, 0, -10),
		CurrentPeriodEnd:   now.AddDate(0, 0, 20),
	}

	f.cache.On("GetQuotaSnapshot", ctx, f.userID).Return(nil, nil)
	f.cache.On("AcquireRefreshLock", ctx, f.userID, refreshLockTTL).Return(true, nil)
	f.subRepo.On("GetCurrentByUser", ctx, f.userID).Return(sub, nil)
	f.planRepo.On("GetByID", ctx, plan.ID).Return(plan, nil)
	f.usageRepo.On("AggregateSince", ctx, f.userID, sub.CurrentPeriodStart).
		Return(&repositories.UsageTotals{APICalls: 850, Tokens: 42000, StorageBytes: 0}, nil)
	f.cache.On("SetQuotaSnapshot", ctx, f.userID, mock.AnythingOfType("*quota.Info"), cacheTTLQuota).Return(nil)
	f.cache.On("ReleaseRefreshLock", ctx, f.userID).Return(nil)

	info, err := f.service.GetQuota(ctx, f.userID)

	require.NoError(t, err)
	assert.InDelta(t, 85.0, info.Resources[models.ResourceAPICalls].PercentageUsed, 0.001)
	assert.True(t, info.Resources[models.ResourceTokens].Unlimited)
	assert.Equal(t, 60, info.RateLimitPerMinute)
	assert.Equal(t, []string{"api_access"}, info.Features)
	assert.NotZero(t, info.Sequence)
	require.Len(t, info.Warnings, 1)
	assert.Equal(t, quota.SeverityWarning, info.Warnings[0].Severity)
	f.cache.AssertExpectations(t)
}

func TestGetQuota_LockContention(t *testing.T) {
	ctx := context.Background()
	f := newQuotaFixture()
	now := time.Now().UTC()

	plan := proPlan()
	plan.APICallLimit = 100
	sub := &models.Subscription{
		ID:                 uuid.New(),
		UserID:             f.userID,
		PlanID:             plan.ID,
		Status:             models.SubscriptionActive,
		CurrentPeriodStart: now.AddDate(0, 0, -1),
		CurrentPeriodEnd:   now.AddDate(0, 0, 29),
	}

	f.cache.On("GetQuotaSnapshot", ctx, f.userID).Return(nil, nil)
	f.cache.On("AcquireRefreshLock", ctx, f.userID, refreshLockTTL).Return(false, nil)
	f.subRepo.On("GetCurrentByUser", ctx, f.userID).Return(sub, nil)
	f.planRepo.On("GetByID", ctx, plan.ID).Return(plan, nil)
	f.usageRepo.On("AggregateSince", ctx, f.userID, sub.CurrentPeriodStart).
		Return(&repositories.UsageTotals{APICalls: 10}, nil)

	info, err := f.service.GetQuota(ctx, f.userID)

	// Loser of the lock race still gets a fresh snapshot, but never writes it.
	require.NoError(t, err)
	assert.InDelta(t, 10.0, info.Resources[models.ResourceAPICalls].PercentageUsed, 0.001)
	f.cache.AssertNotCalled(t, "SetQuotaSnapshot", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetQuota_NoSubscription(t *testing.T) {
	ctx := context.Background()
	f := newQuotaFixture()

	f.cache.On("GetQuotaSnapshot", ctx, f.userID).Return(nil, nil)
	f.cache.On("AcquireRefreshLock", ctx, f.userID, refreshLockTTL).Return(true, nil)
	f.subRepo.On("GetCurrentByUser", ctx, f.userID).Return(nil, nil)
	f.cache.On("ReleaseRefreshLock", ctx, f.userID).Return(nil)

	_, err := f.service.GetQuota(ctx, f.userID)

	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestCheckRateLimit(t *testing.T) {
	ctx := context.Background()
	f := newQuotaFixture()
	snapshot := &quota.Info{RateLimitPerMinute: 60}

	f.cache.On("GetQuotaSnapshot", ctx, f.userID).Return(snapshot, nil)
	f.cache.On("IsRateLimited", ctx, f.userID.String(), 60, time.Minute).Return(true, nil)

	limited, err := f.service.CheckRateLimit(ctx, f.userID)

	require.NoError(t, err)
	assert.True(t, limited)
}

func TestCheckRateLimit_UnlimitedPlan(t *testing.T) {
	ctx := context.Background()
	f := newQuotaFixture()
	snapshot := &quota.Info{RateLimitPerMinute: 0}

	f.cache.On("GetQuotaSnapshot", ctx, f.userID).Return(snapshot, nil)

	limited, err := f.service.CheckRateLimit(ctx, f.userID)

	require.NoError(t, err)
	assert.False(t, limited)
	f.cache.AssertNotCalled(t, "IsRateLimited", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
