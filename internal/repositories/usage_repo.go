package repositories

import (
	"context"
	"time"

	"billflow/internal/models"

	"github.com/google/uuid"
)

// UsageTotals are the aggregated counters the quota engine consumes.
type UsageTotals struct {
	APICalls     int64
	Tokens       int64
	StorageBytes int64
}

type UsageRepository interface {
	// Insert appends a usage record. The unique idempotency key collapses
	// retried writes: the returned bool is false when the key already exists.
	Insert(ctx context.Context, record *models.UsageRecord) (bool, error)
	AggregateSince(ctx context.Context, userID uuid.UUID, since time.Time) (*UsageTotals, error)
	SumCostBetween(ctx context.Context, userID uuid.UUID, start, end time.Time) (float64, error)
	ListByUser(ctx context.Context, userID uuid.UUID, since time.Time, limit, offset int) ([]*models.UsageRecord, error)
}

type usageRepo struct {
	db DB
}

func NewUsageRepository(db DB) UsageRepository {
	return &usageRepo{db: db}
}

func (r *usageRepo) Insert(ctx context.Context, record *models.UsageRecord) (bool, error) {
	query := `
		INSERT INTO usage_records (id, user_id, api_key_id, usage_type, input_tokens, output_tokens, total_tokens, request_bytes, response_bytes, response_time_ms, status_code, cost, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
		ON CONFLICT (idempotency_key) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, record.ID, record.UserID, record.APIKeyID, record.UsageType, record.InputTokens, record.OutputTokens, record.TotalTokens, record.RequestBytes, record.ResponseBytes, record.ResponseTimeMs, record.StatusCode, record.Cost, record.IdempotencyKey)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *usageRepo) AggregateSince(ctx context.Context, userID uuid.UUID, since time.Time) (*UsageTotals, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE usage_type = 'api_call'),
			COALESCE(SUM(total_tokens), 0),
			COALESCE(SUM(request_bytes + response_bytes) FILTER (WHERE usage_type = 'storage'), 0)
		FROM usage_records
		WHERE user_id = $1 AND created_at >= $2
	`
	totals := &UsageTotals{}
	err := r.db.QueryRow(ctx, query, userID, since).Scan(&totals.APICalls, &totals.Tokens, &totals.StorageBytes)
	if err != nil {
		return nil, err
	}
	return totals, nil
}

func (r *usageRepo) SumCostBetween(ctx context.Context, userID uuid.UUID, start, end time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(cost), 0)
		FROM usage_records
		WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
	`
	var total float64
	err := r.db.QueryRow(ctx, query, userID, start, end).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *usageRepo) ListByUser(ctx context.Context, userID uuid.UUID, since time.Time, limit, offset int) ([]*models.UsageRecord, error) {
	query := `
		SELECT id, user_id, api_key_id, usage_type, input_tokens, output_tokens, total_tokens, request_bytes, response_bytes, response_time_ms, status_code, cost, idempotency_key, created_at
		FROM usage_records
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Query(ctx, query, userID, since, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.UsageRecord
	for rows.Next() {
		rec := &models.UsageRecord{}
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.APIKeyID, &rec.UsageType, &rec.InputTokens, &rec.OutputTokens, &rec.TotalTokens, &rec.RequestBytes, &rec.ResponseBytes, &rec.ResponseTimeMs, &rec.StatusCode, &rec.Cost, &rec.IdempotencyKey, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
