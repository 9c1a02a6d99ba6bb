package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"billflow/internal/common"
	"billflow/internal/models"
	"billflow/internal/repositories"

	"github.com/google/uuid"
)

// invoiceDueDays is the payment window granted when an invoice is issued.
const invoiceDueDays = 14

const amountEpsilon = 0.005

// InvoiceServiceInterface handles invoice lifecycle business logic.
type InvoiceServiceInterface interface {
	GetByID(ctx context.Context, userID, invoiceID uuid.UUID) (*models.Invoice, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Invoice, error)
	ListByStatus(ctx context.Context, userID uuid.UUID, status models.InvoiceStatus, limit, offset int) ([]*models.Invoice, error)

	GenerateSubscriptionInvoice(ctx context.Context, sub *models.Subscription, plan *models.PricingPlan) (*models.Invoice, error)
	GenerateProrationInvoice(ctx context.Context, sub *models.Subscription, oldPlan, newPlan *models.PricingPlan, credit, charge float64) (*models.Invoice, error)
	GenerateUsageInvoice(ctx context.Context, userID uuid.UUID, periodStart, periodEnd time.Time) (*models.Invoice, error)

	ApplyPayment(ctx context.Context, userID, invoiceID uuid.UUID, amount float64, paymentMethodID string) (*models.Invoice, *models.Payment, error)
	Refund(ctx context.Context, userID, invoiceID uuid.UUID) (*models.Invoice, error)
	Void(ctx context.Context, userID, invoiceID uuid.UUID) (*models.Invoice, error)

	MarkOverdueInvoices(ctx context.Context, now time.Time, limit int) (int, error)
}

type invoiceService struct {
	invoiceRepo repositories.InvoiceRepository
	paymentRepo repositories.PaymentRepository
	usageRepo   repositories.UsageRepository
	gateway     PaymentGateway
	taxRate     float64
	gatewayName string
}

func NewInvoiceService(
	invoiceRepo repositories.InvoiceRepository,
	paymentRepo repositories.PaymentRepository,
	usageRepo repositories.UsageRepository,
	gateway PaymentGateway,
	taxRate float64,
	gatewayName string,
) InvoiceServiceInterface {
	return &invoiceService{
		invoiceRepo: invoiceRepo,
		paymentRepo: paymentRepo,
		usageRepo:   usageRepo,
		gateway:     gateway,
		taxRate:     taxRate,
		gatewayName: gatewayName,
	}
}

func (s *invoiceService) GetByID(ctx context.Context, userID, invoiceID uuid.UUID) (*models.Invoice, error) {
	return s.invoiceRepo.GetByID(ctx, userID, invoiceID)
}

func (s *invoiceService) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Invoice, error) {
	return s.invoiceRepo.List(ctx, userID, limit, offset)
}

func (s *invoiceService) ListByStatus(ctx context.Context, userID uuid.UUID, status models.InvoiceStatus, limit, offset int) ([]*models.Invoice, error) {
	return s.invoiceRepo.ListByStatus(ctx, userID, status, limit, offset)
}

// issue builds a pending invoice from line items. Invoices are created in
// draft, numbered, then issued with a due date in a single flow so callers
// only ever see draft invoices that failed validation.
func (s *invoiceService) issue(ctx context.Context, invoice *models.Invoice) (*models.Invoice, error) {
	invoice.Recalculate()
	if err := invoice.CheckBalance(); err != nil {
		return nil, fmt.Errorf("invoice balance check failed: %w", err)
	}

	now := time.Now().UTC()
	number, err := s.invoiceRepo.GenerateInvoiceNumber(ctx, invoice.UserID, now)
	if err != nil {
		return nil, err
	}
	invoice.InvoiceNumber = number

	if !models.CanTransitionInvoice(invoice.Status, models.InvoicePending) {
		return nil, fmt.Errorf("cannot issue invoice from %s: %w", invoice.Status, common.ErrConflict)
	}
	dueAt := now.AddDate(0, 0, invoiceDueDays)
	invoice.Status = models.InvoicePending
	invoice.IssuedAt = &now
	invoice.DueAt = &dueAt

	if err := s.invoiceRepo.Create(ctx, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *invoiceService) GenerateSubscriptionInvoice(ctx context.Context, sub *models.Subscription, plan *models.PricingPlan) (*models.Invoice, error) {
	invoiceID := uuid.New()
	lineAmount := sub.UnitPrice * float64(sub.Quantity)

	invoice := &models.Invoice{
		ID:             invoiceID,
		UserID:         sub.UserID,
		SubscriptionID: &sub.ID,
		Type:           models.InvoiceTypeSubscription,
		Status:         models.InvoiceDraft,
		PeriodStart:    &sub.CurrentPeriodStart,
		PeriodEnd:      &sub.CurrentPeriodEnd,
		Currency:       plan.Currency,
		LineItems: []models.InvoiceLineItem{
			{
				ID:          uuid.New(),
				InvoiceID:   invoiceID,
				Position:    0,
				Description: fmt.Sprintf("%s plan (%s)", plan.Name, plan.BillingCycle),
				Quantity:    sub.Quantity,
				UnitPrice:   sub.UnitPrice,
				Amount:      lineAmount,
			},
		},
		TaxAmount: roundMoney(lineAmount * s.taxRate),
	}
	return s.issue(ctx, invoice)
}

func (s *invoiceService) GenerateProrationInvoice(ctx context.Context, sub *models.Subscription, oldPlan, newPlan *models.PricingPlan, credit, charge float64) (*models.Invoice, error) {
	invoiceID := uuid.New()

	items := []models.InvoiceLineItem{
		{
			ID:          uuid.New(),
			InvoiceID:   invoiceID,
			Position:    0,
			Description: fmt.Sprintf("Remainder of period on %s plan", newPlan.Name),
			Quantity:    1,
			UnitPrice:   roundMoney(charge),
			Amount:      roundMoney(charge),
		},
		{
			ID:          uuid.New(),
			InvoiceID:   invoiceID,
			Position:    1,
			Description: fmt.Sprintf("Unused time on %s plan", oldPlan.Name),
			Quantity:    1,
			UnitPrice:   roundMoney(-credit),
			Amount:      roundMoney(-credit),
		},
	}

	invoice := &models.Invoice{
		ID:             invoiceID,
		UserID:         sub.UserID,
		SubscriptionID: &sub.ID,
		Type:           models.InvoiceTypeProration,
		Status:         models.InvoiceDraft,
		PeriodStart:    &sub.CurrentPeriodStart,
		PeriodEnd:      &sub.CurrentPeriodEnd,
		Currency:       newPlan.Currency,
		LineItems:      items,
		TaxAmount:      roundMoney((charge - credit) * s.taxRate),
	}
	return s.issue(ctx, invoice)
}

func (s *invoiceService) GenerateUsageInvoice(ctx context.Context, userID uuid.UUID, periodStart, periodEnd time.Time) (*models.Invoice, error) {
	cost, err := s.usageRepo.SumCostBetween(ctx, userID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	if cost <= amountEpsilon {
		return nil, fmt.Errorf("no billable usage in period: %w", common.ErrValidation)
	}

	invoiceID := uuid.New()
	invoice := &models.Invoice{
		ID:          invoiceID,
		UserID:      userID,
		Type:        models.InvoiceTypeUsage,
		Status:      models.InvoiceDraft,
		PeriodStart: &periodStart,
		PeriodEnd:   &periodEnd,
		Currency:    "USD",
		LineItems: []models.InvoiceLineItem{
			{
				ID:          uuid.New(),
				InvoiceID:   invoiceID,
				Position:    0,
				Description: fmt.Sprintf("Metered usage %s to %s", periodStart.Format("2006-01-02"), periodEnd.Format("2006-01-02")),
				Quantity:    1,
				UnitPrice:   roundMoney(cost),
				Amount:      roundMoney(cost),
			},
		},
		TaxAmount: roundMoney(cost * s.taxRate),
	}
	return s.issue(ctx, invoice)
}

// ApplyPayment charges the gateway and applies the settled amount to the
// invoice. Partial payments are allowed; paying past the balance is not.
func (s *invoiceService) ApplyPayment(ctx context.Context, userID, invoiceID uuid.UUID, amount float64, paymentMethodID string) (*models.Invoice, *models.Payment, error) {
	if amount <= 0 {
		return nil, nil, fmt.Errorf("payment amount must be positive: %w", common.ErrValidation)
	}

	invoice, err := s.invoiceRepo.GetByID(ctx, userID, invoiceID)
	if err != nil {
		return nil, nil, err
	}

	switch invoice.Status {
	case models.InvoicePending, models.InvoicePartiallyPaid, models.InvoiceOverdue:
	default:
		return nil, nil, fmt.Errorf("invoice %s is %s and not payable: %w", invoice.ID, invoice.Status, common.ErrConflict)
	}
	if amount > invoice.AmountDue+amountEpsilon {
		return nil, nil, fmt.Errorf("payment %.2f exceeds balance %.2f: %w", amount, invoice.AmountDue, common.ErrOverpayment)
	}

	payment := &models.Payment{
		ID:        uuid.New(),
		UserID:    userID,
		InvoiceID: &invoice.ID,
		Gateway:   s.gatewayName,
		Status:    models.PaymentPending,
		Amount:    amount,
		Currency:  invoice.Currency,
	}
	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		return nil, nil, err
	}

	payment.Status = models.PaymentProcessing
	if err := s.paymentRepo.UpdateGuarded(ctx, payment, models.PaymentPending); err != nil {
		return nil, nil, err
	}

	charge, err := s.gateway.ChargePayment(ctx, &GatewayChargeRequest{
		CustomerID:      userID.String(),
		PaymentMethodID: paymentMethodID,
		Amount:          amount,
		Currency:        invoice.Currency,
		Description:     fmt.Sprintf("Payment for invoice %s", invoice.InvoiceNumber),
		IdempotencyKey:  payment.ID.String(),
	})
	now := time.Now().UTC()
	if err != nil {
		reason := err.Error()
		payment.Status = models.PaymentFailed
		payment.FailureReason = &reason
		if updateErr := s.paymentRepo.UpdateGuarded(ctx, payment, models.PaymentProcessing); updateErr != nil {
			log.Printf("WARN: failed to record payment failure %s: %v", payment.ID, updateErr)
		}
		return nil, nil, fmt.Errorf("charge failed: %w", err)
	}

	payment.Status = models.PaymentCompleted
	payment.GatewayPaymentID = &charge.ID
	payment.Fee = charge.Fee
	payment.NetAmount = amount - charge.Fee
	payment.CompletedAt = &now
	if err := s.paymentRepo.UpdateGuarded(ctx, payment, models.PaymentProcessing); err != nil {
		return nil, nil, err
	}

	expected := invoice.Status
	invoice.AmountPaid = roundMoney(invoice.AmountPaid + amount)
	invoice.AmountDue = roundMoney(invoice.TotalAmount - invoice.AmountPaid)
	if invoice.IsPaid() {
		invoice.Status = models.InvoicePaid
		invoice.PaidAt = &now
	} else {
		invoice.Status = models.InvoicePartiallyPaid
	}
	if invoice.Status != expected && !models.CanTransitionInvoice(expected, invoice.Status) {
		return nil, nil, fmt.Errorf("invoice %s cannot move %s -> %s: %w", invoice.ID, expected, invoice.Status, common.ErrConflict)
	}
	if err := invoice.CheckBalance(); err != nil {
		return nil, nil, fmt.Errorf("invoice balance check failed after payment: %w", err)
	}
	if err := s.invoiceRepo.UpdateGuarded(ctx, invoice, expected); err != nil {
		return nil, nil, err
	}
	return invoice, payment, nil
}

// Refund reverses all completed payments on a paid invoice.
func (s *invoiceService) Refund(ctx context.Context, userID, invoiceID uuid.UUID) (*models.Invoice, error) {
	invoice, err := s.invoiceRepo.GetByID(ctx, userID, invoiceID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransitionInvoice(invoice.Status, models.InvoiceRefunded) {
		return nil, fmt.Errorf("invoice %s is %s and not refundable: %w", invoice.ID, invoice.Status, common.ErrConflict)
	}

	payments, err := s.paymentRepo.ListByInvoice(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}
	for _, payment := range payments {
		if !payment.IsSuccessful() || payment.GatewayPaymentID == nil {
			continue
		}
		if _, err := s.gateway.RefundPayment(ctx, *payment.GatewayPaymentID, payment.Amount); err != nil {
			return nil, fmt.Errorf("refund of payment %s failed: %w", payment.ID, err)
		}
		payment.Status = models.PaymentRefunded
		if err := s.paymentRepo.UpdateGuarded(ctx, payment, models.PaymentCompleted); err != nil {
			return nil, err
		}
	}

	expected := invoice.Status
	invoice.Status = models.InvoiceRefunded
	invoice.AmountPaid = 0
	invoice.AmountDue = invoice.TotalAmount
	if err := s.invoiceRepo.UpdateGuarded(ctx, invoice, expected); err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *invoiceService) Void(ctx context.Context, userID, invoiceID uuid.UUID) (*models.Invoice, error) {
	invoice, err := s.invoiceRepo.GetByID(ctx, userID, invoiceID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransitionInvoice(invoice.Status, models.InvoiceVoid) {
		return nil, fmt.Errorf("invoice %s is %s and cannot be voided: %w", invoice.ID, invoice.Status, common.ErrConflict)
	}

	expected := invoice.Status
	invoice.Status = models.InvoiceVoid
	if err := s.invoiceRepo.UpdateGuarded(ctx, invoice, expected); err != nil {
		return nil, err
	}
	return invoice, nil
}

// MarkOverdueInvoices persists overdue status for unpaid invoices past their
// due date. Reads also derive overdue on the fly, so the sweep only keeps the
// stored state and listings consistent.
func (s *invoiceService) MarkOverdueInvoices(ctx context.Context, now time.Time, limit int) (int, error) {
	candidates, err := s.invoiceRepo.ListOverdueCandidates(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, invoice := range candidates {
		expected := invoice.Status
		if !models.CanTransitionInvoice(expected, models.InvoiceOverdue) {
			continue
		}
		invoice.Status = models.InvoiceOverdue
		if err := s.invoiceRepo.UpdateGuarded(ctx, invoice, expected); err != nil {
			log.Printf("WARN: failed to mark invoice %s overdue: %v", invoice.ID, err)
			continue
		}
		marked++
	}
	return marked, nil
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
