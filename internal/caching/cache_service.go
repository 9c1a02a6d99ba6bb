package caching

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"billflow/internal/models"
	"billflow/internal/quota"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type CacheService interface {
	// Subscription caching
	GetSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	SetSubscription(ctx context.Context, subscription *models.Subscription, ttl time.Duration) error
	DeleteSubscription(ctx context.Context, userID uuid.UUID) error

	// Plan catalog caching
	GetPlans(ctx context.Context) ([]*models.PricingPlan, error)
	SetPlans(ctx context.Context, plans []*models.PricingPlan, ttl time.Duration) error
	InvalidatePlans(ctx context.Context) error

	// Quota snapshot caching
	GetQuotaSnapshot(ctx context.Context, userID uuid.UUID) (*quota.Info, error)
	SetQuotaSnapshot(ctx context.Context, userID uuid.UUID, info *quota.Info, ttl time.Duration) error
	DeleteQuotaSnapshot(ctx context.Context, userID uuid.UUID) error

	// Idempotency fast path: SETNX so only the first writer of a key wins.
	ReserveIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseIdempotencyKey(ctx context.Context, key string) error

	// Refresh coalescing: one worker recomputes a user's quota at a time.
	AcquireRefreshLock(ctx context.Context, userID uuid.UUID, ttl time.Duration) (bool, error)
	ReleaseRefreshLock(ctx context.Context, userID uuid.UUID) error

	// Cache invalidation
	InvalidateUserCache(ctx context.Context, userID uuid.UUID) error
	InvalidateAllCache(ctx context.Context) error

	// Rate limiting
	IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

	// Generic string operations
	SetString(ctx context.Context, key string, value string, ttl time.Duration) error
	GetString(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

type redisCacheService struct {
	client *redis.Client
}

func NewRedisCacheService(addr, password string, db int) CacheService {
	// Accept redis://host:port and rediss://host:port forms
	parsedAddr := addr
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		if hostPort := strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://"); hostPort != addr {
			parsedAddr = hostPort
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})

	if pingErr := client.Ping(context.Background()).Err(); pingErr != nil {
		log.Printf("WARN: Redis ping failed on initialization: %v (address: %s)", pingErr, parsedAddr)
	}

	return &redisCacheService{client: client}
}

func (r *redisCacheService) GetSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	key := fmt.Sprintf("billflow:subscription:%s", userID.String())
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // cache miss
		}
		return nil, err
	}

	var subscription models.Subscription
	if err := json.Unmarshal(data, &subscription); err != nil {
		return nil, err
	}
	return &subscription, nil
}

func (r *redisCacheService) SetSubscription(ctx context.Context, subscription *models.Subscription, ttl time.Duration) error {
	key := fmt.Sprintf("billflow:subscription:%s", subscription.UserID.String())
	data, err := json.Marshal(subscription)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

func (r *redisCacheService) DeleteSubscription(ctx context.Context, userID uuid.UUID) error {
	key := fmt.Sprintf("billflow:subscription:%s", userID.String())
	return r.client.Del(ctx, key).Err()
}

func (r *redisCacheService) GetPlans(ctx context.Context) ([]*models.PricingPlan, error) {
	data, err := r.client.Get(ctx, "billflow:plans:active").Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // cache miss
		}
		return nil, err
	}

	var plans []*models.PricingPlan
	if err := json.Unmarshal(data, &plans); err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *redisCacheService) SetPlans(ctx context.Context, plans []*models.PricingPlan, ttl time.Duration) error {
	data, err := json.Marshal(plans)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, "billflow:plans:active", data, ttl).Err()
}

func (r *redisCacheService) InvalidatePlans(ctx context.Context) error {
	return r.client.Del(ctx, "billflow:plans:active").Err()
}

func (r *redisCacheService) GetQuotaSnapshot(ctx context.Context, userID uuid.UUID) (*quota.Info, error) {
	key := fmt.Sprintf("billflow:quota:%s", userID.String())
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // cache miss
		}
		return nil, err
	}

	var info quota.Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (r *redisCacheService) SetQuotaSnapshot(ctx context.Context, userID uuid.UUID, info *quota.Info, ttl time.Duration) error {
	key := fmt.Sprintf("billflow:quota:%s", userID.String())
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

func (r *redisCacheService) DeleteQuotaSnapshot(ctx context.Context, userID uuid.UUID) error {
	key := fmt.Sprintf("billflow:quota:%s", userID.String())
	return r.client.Del(ctx, key).Err()
}

func (r *redisCacheService) ReserveIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	cacheKey := fmt.Sprintf("billflow:idempotency:%s", key)
	return r.client.SetNX(ctx, cacheKey, "1", ttl).Result()
}

func (r *redisCacheService) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	cacheKey := fmt.Sprintf("billflow:idempotency:%s", key)
	return r.client.Del(ctx, cacheKey).Err()
}

func (r *redisCacheService) AcquireRefreshLock(ctx context.Context, userID uuid.UUID, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("billflow:quota-refresh:%s", userID.String())
	return r.client.SetNX(ctx, key, "1", ttl).Result()
}

func (r *redisCacheService) ReleaseRefreshLock(ctx context.Context, userID uuid.UUID) error {
	key := fmt.Sprintf("billflow:quota-refresh:%s", userID.String())
	return r.client.Del(ctx, key).Err()
}

func (r *redisCacheService) InvalidateUserCache(ctx context.Context, userID uuid.UUID) error {
	pattern := fmt.Sprintf("billflow:*:%s", userID.String())
	keys, err := r.client.Keys(ctx, pattern).Result()
	if err != nil {
		return err
	}

	if len(keys) > 0 {
		return r.client.Del(ctx, keys...).Err()
	}
	return nil
}

func (r *redisCacheService) InvalidateAllCache(ctx context.Context) error {
	pattern := "billflow:*"
	keys, err := r.client.Keys(ctx, pattern).Result()
	if err != nil {
		return err
	}

	if len(keys) > 0 {
		return r.client.Del(ctx, keys...).Err()
	}
	return nil
}

func (r *redisCacheService) IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	cacheKey := fmt.Sprintf("billflow:ratelimit:%s", key)
	count, err := r.client.Incr(ctx, cacheKey).Result()
	if err != nil {
		return true, err
	}

	// Set expiry on first request
	if count == 1 {
		r.client.Expire(ctx, cacheKey, window)
	}

	return count > int64(limit), nil
}

func (r *redisCacheService) SetString(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisCacheService) GetString(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil // cache miss
		}
		return "", err
	}
	return val, nil
}

func (r *redisCacheService) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
