package services

import (
	"context"
	"errors"
	"testing"

	"billflow/internal/common"
	"billflow/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func trackRequest(key string) *TrackUsageRequest {
	return &TrackUsageRequest{
		UsageType:      "token_usage",
		InputTokens:    500,
		OutputTokens:   1500,
		StatusCode:     200,
		IdempotencyKey: key,
	}
}

func TestTrackUsage_NewEvent(t *testing.T) {
	ctx := context.Background()
	usageRepo := new(MockUsageRepository)
	cache := new(MockCacheService)
	svc := NewUsageService(usageRepo, cache)
	userID := uuid.New()

	cache.On("ReserveIdempotencyKey", ctx, "req-1", idempotencyKeyTTL).Return(true, nil)
	usageRepo.On("Insert", ctx, mock.AnythingOfType("*models.UsageRecord")).Return(true, nil)
	cache.On("DeleteQuotaSnapshot", ctx, userID).Return(nil)

	record, inserted, err := svc.TrackUsage(ctx, userID, trackRequest("req-1"))

	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, int64(2000), record.TotalTokens)
	assert.InDelta(t, 0.004, record.Cost, 0.0001)
	cache.AssertExpectations(t)
}

func TestTrackUsage_ReplaySeenByCache(t *testing.T) {
	ctx := context.Background()
	usageRepo := new(MockUsageRepository)
	cache := new(MockCacheService)
	svc := NewUsageService(usageRepo, cache)
	userID := uuid.New()

	cache.On("ReserveIdempotencyKey", ctx, "req-1", idempotencyKeyTTL).Return(false, nil)

	record, inserted, err := svc.TrackUsage(ctx, userID, trackRequest("req-1"))

	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Nil(t, record)
	usageRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestTrackUsage_ReplaySeenByDatabase(t *testing.T) {
	ctx := context.Background()
	usageRepo := new(MockUsageRepository)
	cache := new(MockCacheService)
	svc := NewUsageService(usageRepo, cache)
	userID := uuid.New()

	// The cache lost the key (restart, eviction) but the unique index holds.
	cache.On("ReserveIdempotencyKey", ctx, "req-1", idempotencyKeyTTL).Return(true, nil)
	usageRepo.On("Insert", ctx, mock.AnythingOfType("*models.UsageRecord")).Return(false, nil)

	record, inserted, err := svc.TrackUsage(ctx, userID, trackRequest("req-1"))

	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Nil(t, record)
	cache.AssertNotCalled(t, "DeleteQuotaSnapshot", mock.Anything, mock.Anything)
}

func TestTrackUsage_InsertErrorReleasesKey(t *testing.T) {
	ctx := context.Background()
	usageRepo := new(MockUsageRepository)
	cache := new(MockCacheService)
	svc := NewUsageService(usageRepo, cache)
	userID := uuid.New()

	cache.On("ReserveIdempotencyKey", ctx, "req-1", idempotencyKeyTTL).Return(true, nil)
	usageRepo.On("Insert", ctx, mock.AnythingOfType("*models.UsageRecord")).Return(false, errors.New("db down"))
	cache.On("ReleaseIdempotencyKey", ctx, "req-1").Return(nil)

	_, _, err := svc.TrackUsage(ctx, userID, trackRequest("req-1"))

	require.Error(t, err)
	cache.AssertCalled(t, "ReleaseIdempotencyKey", ctx, "req-1")
}

func TestTrackUsage_Validation(t *testing.T) {
	ctx := context.Background()
	svc := NewUsageService(new(MockUsageRepository), new(MockCacheService))
	userID := uuid.New()

	tests := []struct {
		name string
		req  *TrackUsageRequest
	}{
		{"unknown usage type", &TrackUsageRequest{UsageType: "gpu_time", IdempotencyKey: "k"}},
		{"missing idempotency key", &TrackUsageRequest{UsageType: "api_call"}},
		{"negative tokens", &TrackUsageRequest{UsageType: "token_usage", InputTokens: -1, IdempotencyKey: "k"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.TrackUsage(ctx, userID, tt.req)
			assert.True(t, errors.Is(err, common.ErrValidation))
		})
	}
}

func TestComputeCost(t *testing.T) {
	assert.Equal(t, costPerAPICall, computeCost(models.UsageAPICall, &TrackUsageRequest{}))
	assert.InDelta(t, 0.002, computeCost(models.UsageTokens, &TrackUsageRequest{InputTokens: 400, OutputTokens: 600}), 1e-9)
	assert.InDelta(t, costPerGiB, computeCost(models.UsageStorage, &TrackUsageRequest{RequestBytes: 1 << 30}), 1e-9)
}
