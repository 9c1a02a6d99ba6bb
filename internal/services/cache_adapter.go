package services

import (
	"context"
	"log"

	"billflow/internal/caching"
	"billflow/internal/models"

	"github.com/google/uuid"
)

type cacheCoordinator struct {
	cache caching.CacheService
}

// NewCacheCoordinator wraps the cache for the write-side services: cache the
// subscription after mutations and drop every per-user key whose source data
// changed.
func NewCacheCoordinator(cache caching.CacheService) CacheInvalidator {
	return &cacheCoordinator{cache: cache}
}

func (c *cacheCoordinator) SetSubscriptionCache(ctx context.Context, subscription *models.Subscription) error {
	return c.cache.SetSubscription(ctx, subscription, cacheTTLSubscription)
}

func (c *cacheCoordinator) DropUserCaches(ctx context.Context, userID uuid.UUID) {
	if err := c.cache.DeleteSubscription(ctx, userID); err != nil {
		log.Printf("WARN: failed to drop subscription cache for user %s: %v", userID, err)
	}
	if err := c.cache.DeleteQuotaSnapshot(ctx, userID); err != nil {
		log.Printf("WARN: failed to drop quota cache for user %s: %v", userID, err)
	}
}
