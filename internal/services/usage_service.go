package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"billflow/internal/caching"
	"billflow/internal/common"
	"billflow/internal/models"
	"billflow/internal/repositories"

	"github.com/google/uuid"
)

// Metered rates. Token usage is priced per 1000 tokens, storage and
// bandwidth per GiB.
const (
	costPerAPICall    = 0.0001
	costPer1KTokens   = 0.002
	costPerGiB        = 0.05
	idempotencyKeyTTL = 24 * time.Hour
	maxIdempotencyKey = 255
)

type UsageService interface {
	// TrackUsage records a metered event. The returned bool is false when the
	// idempotency key was seen before and the event was dropped as a replay.
	TrackUsage(ctx context.Context, userID uuid.UUID, req *TrackUsageRequest) (*models.UsageRecord, bool, error)
	ListUsage(ctx context.Context, userID uuid.UUID, since time.Time, limit, offset int) ([]*models.UsageRecord, error)
}

type TrackUsageRequest struct {
	UsageType      string     `json:"usage_type"`
	APIKeyID       *uuid.UUID `json:"api_key_id"`
	InputTokens    int64      `json:"input_tokens"`
	OutputTokens   int64      `json:"output_tokens"`
	RequestBytes   int64      `json:"request_bytes"`
	ResponseBytes  int64      `json:"response_bytes"`
	ResponseTimeMs int64      `json:"response_time_ms"`
	StatusCode     int        `json:"status_code"`
	IdempotencyKey string     `json:"-"`
}

type usageService struct {
	usageRepo repositories.UsageRepository
	cache     caching.CacheService
}

func NewUsageService(usageRepo repositories.UsageRepository, cache caching.CacheService) UsageService {
	return &usageService{
		usageRepo: usageRepo,
		cache:     cache,
	}
}

func (s *usageService) TrackUsage(ctx context.Context, userID uuid.UUID, req *TrackUsageRequest) (*models.UsageRecord, bool, error) {
	usageType, err := models.ValidateUsageType(req.UsageType)
	if err != nil {
		return nil, false, fmt.Errorf("%v: %w", err, common.ErrValidation)
	}
	if req.IdempotencyKey == "" {
		return nil, false, fmt.Errorf("idempotency key is required: %w", common.ErrValidation)
	}
	if len(req.IdempotencyKey) > maxIdempotencyKey {
		return nil, false, fmt.Errorf("idempotency key too long: %w", common.ErrValidation)
	}
	if req.InputTokens < 0 || req.OutputTokens < 0 || req.RequestBytes < 0 || req.ResponseBytes < 0 {
		return nil, false, fmt.Errorf("usage quantities cannot be negative: %w", common.ErrValidation)
	}

	// Fast path: the cache sees most replays before they reach Postgres. The
	// unique index on idempotency_key is the source of truth either way.
	reserved, err := s.cache.ReserveIdempotencyKey(ctx, req.IdempotencyKey, idempotencyKeyTTL)
	if err != nil {
		log.Printf("WARN: idempotency reservation failed for key %s: %v", req.IdempotencyKey, err)
		reserved = true // fall through to the database check
	}
	if !reserved {
		return nil, false, nil
	}

	record := &models.UsageRecord{
		ID:             uuid.New(),
		UserID:         userID,
		APIKeyID:       req.APIKeyID,
		UsageType:      usageType,
		InputTokens:    req.InputTokens,
		OutputTokens:   req.OutputTokens,
		TotalTokens:    req.InputTokens + req.OutputTokens,
		RequestBytes:   req.RequestBytes,
		ResponseBytes:  req.ResponseBytes,
		ResponseTimeMs: req.ResponseTimeMs,
		StatusCode:     req.StatusCode,
		Cost:           computeCost(usageType, req),
		IdempotencyKey: req.IdempotencyKey,
	}

	inserted, err := s.usageRepo.Insert(ctx, record)
	if err != nil {
		// Let a retry take the fast path again.
		if releaseErr := s.cache.ReleaseIdempotencyKey(ctx, req.IdempotencyKey); releaseErr != nil {
			log.Printf("WARN: failed to release idempotency key %s: %v", req.IdempotencyKey, releaseErr)
		}
		return nil, false, err
	}
	if !inserted {
		return nil, false, nil
	}

	if err := s.cache.DeleteQuotaSnapshot(ctx, userID); err != nil {
		log.Printf("WARN: failed to drop quota cache for user %s: %v", userID, err)
	}
	return record, true, nil
}

func (s *usageService) ListUsage(ctx context.Context, userID uuid.UUID, since time.Time, limit, offset int) ([]*models.UsageRecord, error) {
	return s.usageRepo.ListByUser(ctx, userID, since, limit, offset)
}

func computeCost(usageType models.UsageType, req *TrackUsageRequest) float64 {
	switch usageType {
	case models.UsageAPICall:
		return costPerAPICall
	case models.UsageTokens:
		return float64(req.InputTokens+req.OutputTokens) / 1000 * costPer1KTokens
	case models.UsageStorage, models.UsageBandwidth:
		return float64(req.RequestBytes+req.ResponseBytes) / (1 << 30) * costPerGiB
	default:
		return 0
	}
}
