package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is a settlement attempt state.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentCancelled  PaymentStatus = "cancelled"
	PaymentRefunded   PaymentStatus = "refunded"
)

// paymentTransitions encodes the settlement state machine.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:    {PaymentProcessing, PaymentFailed, PaymentCancelled},
	PaymentProcessing: {PaymentCompleted, PaymentFailed},
	PaymentCompleted:  {PaymentRefunded},
	PaymentFailed:     {},
	PaymentCancelled:  {},
	PaymentRefunded:   {},
}

// CanTransitionPayment reports whether the settlement lifecycle allows the move.
func CanTransitionPayment(from, to PaymentStatus) bool {
	for _, s := range paymentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Payment is one settlement attempt against the payment gateway.
type Payment struct {
	ID               uuid.UUID     `json:"id" db:"id"`
	UserID           uuid.UUID     `json:"user_id" db:"user_id"`
	InvoiceID        *uuid.UUID    `json:"invoice_id" db:"invoice_id"`
	Gateway          string        `json:"gateway" db:"gateway"`
	GatewayPaymentID *string       `json:"gateway_payment_id" db:"gateway_payment_id"`
	Status           PaymentStatus `json:"status" db:"status"`
	Amount           float64       `json:"amount" db:"amount"`
	Currency         string        `json:"currency" db:"currency"`
	Fee              float64       `json:"fee" db:"fee"`
	NetAmount        float64       `json:"net_amount" db:"net_amount"`
	FailureReason    *string       `json:"failure_reason" db:"failure_reason"`
	CompletedAt      *time.Time    `json:"completed_at" db:"completed_at"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
}

// IsSuccessful reports whether the settlement completed.
func (p *Payment) IsSuccessful() bool {
	return p.Status == PaymentCompleted
}

// IsFailed reports whether the settlement can no longer complete.
func (p *Payment) IsFailed() bool {
	return p.Status == PaymentFailed || p.Status == PaymentCancelled
}
