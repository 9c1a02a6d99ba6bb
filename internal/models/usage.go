package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UsageType classifies a metered event.
type UsageType string

const (
	UsageAPICall   UsageType = "api_call"
	UsageTokens    UsageType = "token_usage"
	UsageStorage   UsageType = "storage"
	UsageBandwidth UsageType = "bandwidth"
)

// ValidateUsageType validates a usage type string from the wire.
func ValidateUsageType(t string) (UsageType, error) {
	switch UsageType(t) {
	case UsageAPICall, UsageTokens, UsageStorage, UsageBandwidth:
		return UsageType(t), nil
	default:
		return "", fmt.Errorf("usage type must be one of: api_call, token_usage, storage, bandwidth")
	}
}

// UsageRecord is one metered event. Records are append-only: they are never
// mutated after creation, and the idempotency key makes retried writes
// collapse into a single row.
type UsageRecord struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	UserID         uuid.UUID  `json:"user_id" db:"user_id"`
	APIKeyID       *uuid.UUID `json:"api_key_id" db:"api_key_id"`
	UsageType      UsageType  `json:"usage_type" db:"usage_type"`
	InputTokens    int64      `json:"input_tokens" db:"input_tokens"`
	OutputTokens   int64      `json:"output_tokens" db:"output_tokens"`
	TotalTokens    int64      `json:"total_tokens" db:"total_tokens"`
	RequestBytes   int64      `json:"request_bytes" db:"request_bytes"`
	ResponseBytes  int64      `json:"response_bytes" db:"response_bytes"`
	ResponseTimeMs int64      `json:"response_time_ms" db:"response_time_ms"`
	StatusCode     int        `json:"status_code" db:"status_code"`
	Cost           float64    `json:"cost" db:"cost"`
	IdempotencyKey string     `json:"idempotency_key" db:"idempotency_key"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// IsSuccessful reports whether the metered request succeeded (2xx).
func (u *UsageRecord) IsSuccessful() bool {
	return u.StatusCode >= 200 && u.StatusCode <= 299
}
