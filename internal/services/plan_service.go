package services

import (
	"context"
	"log"

	"billflow/internal/caching"
	"billflow/internal/models"
	"billflow/internal/repositories"

	"github.com/google/uuid"
)

// PlanService serves the read-only pricing catalog.
type PlanService interface {
	ListActive(ctx context.Context) ([]*models.PricingPlan, error)
	GetByID(ctx context.Context, planID uuid.UUID) (*models.PricingPlan, error)
}

type planService struct {
	planRepo repositories.PlanRepository
	cache    caching.CacheService
}

func NewPlanService(planRepo repositories.PlanRepository, cache caching.CacheService) PlanService {
	return &planService{
		planRepo: planRepo,
		cache:    cache,
	}
}

func (s *planService) ListActive(ctx context.Context) ([]*models.PricingPlan, error) {
	cached, err := s.cache.GetPlans(ctx)
	if err != nil {
		log.Printf("WARN: plan cache read failed: %v", err)
	}
	if cached != nil {
		return cached, nil
	}

	plans, err := s.planRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetPlans(ctx, plans, cacheTTLPlans); err != nil {
		log.Printf("WARN: failed to cache plan catalog: %v", err)
	}
	return plans, nil
}

func (s *planService) GetByID(ctx context.Context, planID uuid.UUID) (*models.PricingPlan, error) {
	return s.planRepo.GetByID(ctx, planID)
}
