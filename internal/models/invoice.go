package models

import (
	"math"
	"time"

	"billflow/internal/common"

	"github.com/google/uuid"
)

// InvoiceStatus is an invoice lifecycle state.
type InvoiceStatus string

const (
	InvoiceDraft         InvoiceStatus = "draft"
	InvoicePending       InvoiceStatus = "pending"
	InvoicePaid          InvoiceStatus = "paid"
	InvoicePartiallyPaid InvoiceStatus = "partially_paid"
	InvoiceOverdue       InvoiceStatus = "overdue"
	InvoiceVoid          InvoiceStatus = "void"
	InvoiceRefunded      InvoiceStatus = "refunded"
)

// InvoiceType distinguishes what an invoice bills for.
type InvoiceType string

const (
	InvoiceTypeSubscription InvoiceType = "subscription"
	InvoiceTypeUsage        InvoiceType = "usage"
	InvoiceTypeProration    InvoiceType = "proration"
)

// invoiceTransitions encodes the invoice state machine. Overdue is persisted
// by the background sweep; paid and void invoices are immutable apart from
// the refund path.
var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceDraft:         {InvoicePending, InvoiceVoid},
	InvoicePending:       {InvoicePaid, InvoicePartiallyPaid, InvoiceOverdue, InvoiceVoid},
	InvoicePartiallyPaid: {InvoicePaid, InvoiceOverdue, InvoiceVoid},
	InvoiceOverdue:       {InvoicePaid, InvoicePartiallyPaid, InvoiceVoid},
	InvoicePaid:          {InvoiceRefunded},
	InvoiceVoid:          {},
	InvoiceRefunded:      {},
}

// CanTransitionInvoice reports whether the invoice lifecycle allows the move.
func CanTransitionInvoice(from, to InvoiceStatus) bool {
	for _, s := range invoiceTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// InvoiceLineItem is one ordered charge line on an invoice.
type InvoiceLineItem struct {
	ID          uuid.UUID `json:"id" db:"id"`
	InvoiceID   uuid.UUID `json:"invoice_id" db:"invoice_id"`
	Position    int       `json:"position" db:"position"`
	Description string    `json:"description" db:"description"`
	Quantity    int       `json:"quantity" db:"quantity"`
	UnitPrice   float64   `json:"unit_price" db:"unit_price"`
	Amount      float64   `json:"amount" db:"amount"`
}

// Invoice is a billing statement. AmountDue and TotalAmount are stored but
// recomputed and re-checked on every mutation so the balance invariants
// (total == subtotal + tax, due == total - paid, sum(lines) == subtotal)
// hold at all times.
type Invoice struct {
	ID             uuid.UUID         `json:"id" db:"id"`
	UserID         uuid.UUID         `json:"user_id" db:"user_id"`
	SubscriptionID *uuid.UUID        `json:"subscription_id" db:"subscription_id"`
	InvoiceNumber  string            `json:"invoice_number" db:"invoice_number"`
	Type           InvoiceType       `json:"type" db:"type"`
	Status         InvoiceStatus     `json:"status" db:"status"`
	IssuedAt       *time.Time        `json:"issued_at" db:"issued_at"`
	DueAt          *time.Time        `json:"due_at" db:"due_at"`
	PaidAt         *time.Time        `json:"paid_at" db:"paid_at"`
	PeriodStart    *time.Time        `json:"period_start" db:"period_start"`
	PeriodEnd      *time.Time        `json:"period_end" db:"period_end"`
	Subtotal       float64           `json:"subtotal" db:"subtotal"`
	TaxAmount      float64           `json:"tax_amount" db:"tax_amount"`
	TotalAmount    float64           `json:"total_amount" db:"total_amount"`
	AmountPaid     float64           `json:"amount_paid" db:"amount_paid"`
	AmountDue      float64           `json:"amount_due" db:"amount_due"`
	Currency       string            `json:"currency" db:"currency"`
	LineItems      []InvoiceLineItem `json:"line_items" db:"-"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at" db:"updated_at"`
}

// Recalculate rebuilds the stored totals from the line items and payments.
func (i *Invoice) Recalculate() {
	var subtotal float64
	for _, li := range i.LineItems {
		subtotal += li.Amount
	}
	i.Subtotal = subtotal
	i.TotalAmount = i.Subtotal + i.TaxAmount
	i.AmountDue = i.TotalAmount - i.AmountPaid
}

// CheckBalance verifies the balance invariants against the stored fields.
func (i *Invoice) CheckBalance() error {
	const epsilon = 0.005 // half a cent; amounts are stored as decimals
	if math.Abs(i.TotalAmount-(i.Subtotal+i.TaxAmount)) > epsilon {
		return common.ErrValidation
	}
	if math.Abs(i.AmountDue-(i.TotalAmount-i.AmountPaid)) > epsilon {
		return common.ErrValidation
	}
	if len(i.LineItems) > 0 {
		var sum float64
		for _, li := range i.LineItems {
			sum += li.Amount
		}
		if math.Abs(sum-i.Subtotal) > epsilon {
			return common.ErrValidation
		}
	}
	return nil
}

// IsPaid reports whether nothing remains due.
func (i *Invoice) IsPaid() bool {
	return i.AmountDue <= 0
}

// IsOverdue derives overdue at read time so a stale stored status can never
// hide a missed due date. Paid, void and refunded invoices are never overdue.
func (i *Invoice) IsOverdue(now time.Time) bool {
	switch i.Status {
	case InvoicePaid, InvoiceVoid, InvoiceRefunded:
		return false
	}
	if i.DueAt == nil {
		return false
	}
	return now.UTC().After(i.DueAt.UTC())
}

// DaysOverdue returns max(0, floor((now - dueAt) / day)) in UTC.
func (i *Invoice) DaysOverdue(now time.Time) int {
	if i.DueAt == nil || !i.IsOverdue(now) {
		return 0
	}
	return common.DaysSince(*i.DueAt, now)
}
