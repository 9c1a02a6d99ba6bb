package handlers

import (
	"context"
	"time"

	"billflow/internal/models"
	"billflow/internal/quota"
	"billflow/internal/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockUsageService struct {
	mock.Mock
}

func (m *MockUsageService) TrackUsage(ctx context.Context, userID uuid.UUID, req *services.TrackUsageRequest) (*models.UsageRecord, bool, error) {
	args := m.Called(ctx, userID, req)
	var record *models.UsageRecord
	if args.Get(0) != nil {
		record = args.Get(0).(*models.UsageRecord)
	}
	return record, args.Bool(1), args.Error(2)
}

func (m *MockUsageService) ListUsage(ctx context.Context, userID uuid.UUID, since time.Time, limit, offset int) ([]*models.UsageRecord, error) {
	args := m.Called(ctx, userID, since, limit, offset)
	var records []*models.UsageRecord
	if args.Get(0) != nil {
		records = args.Get(0).([]*models.UsageRecord)
	}
	return records, args.Error(1)
}

type MockQuotaService struct {
	mock.Mock
}

func (m *MockQuotaService) GetQuota(ctx context.Context, userID uuid.UUID) (*quota.Info, error) {
	args := m.Called(ctx, userID)
	var info *quota.Info
	if args.Get(0) != nil {
		info = args.Get(0).(*quota.Info)
	}
	return info, args.Error(1)
}

func (m *MockQuotaService) Refresh(ctx context.Context, userID uuid.UUID) (*quota.Info, error) {
	args := m.Called(ctx, userID)
	var info *quota.Info
	if args.Get(0) != nil {
		info = args.Get(0).(*quota.Info)
	}
	return info, args.Error(1)
}

func (m *MockQuotaService) CheckRateLimit(ctx context.Context, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) CreateSubscription(ctx context.Context, req *services.GatewaySubscriptionRequest) (*services.GatewaySubscription, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.GatewaySubscription), args.Error(1)
}

func (m *MockPaymentGateway) CancelSubscription(ctx context.Context, gatewaySubscriptionID string) (*services.GatewaySubscription, error) {
	args := m.Called(ctx, gatewaySubscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.GatewaySubscription), args.Error(1)
}

func (m *MockPaymentGateway) ChargePayment(ctx context.Context, req *services.GatewayChargeRequest) (*services.GatewayCharge, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.GatewayCharge), args.Error(1)
}

func (m *MockPaymentGateway) RefundPayment(ctx context.Context, gatewayPaymentID string, amount float64) (*services.GatewayRefund, error) {
	args := m.Called(ctx, gatewayPaymentID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.GatewayRefund), args.Error(1)
}

func (m *MockPaymentGateway) ValidatePaymentMethod(ctx context.Context, paymentMethodID string) error {
	args := m.Called(ctx, paymentMethodID)
	return args.Error(0)
}

func (m *MockPaymentGateway) VerifyWebhook(rawData []byte, signature string) (*services.WebhookEvent, error) {
	args := m.Called(rawData, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.WebhookEvent), args.Error(1)
}

type MockSubscriptionService struct {
	mock.Mock
}

func (m *MockSubscriptionService) Create(ctx context.Context, userID uuid.UUID, req *services.CreateSubscriptionRequest) (*models.Subscription, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionService) GetByID(ctx context.Context, userID, subscriptionID uuid.UUID) (*models.Subscription, error) {
	args := m.Called(ctx, userID, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionService) GetCurrent(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionService) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Subscription, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionService) Cancel(ctx context.Context, userID, subscriptionID uuid.UUID, atPeriodEnd bool) (*models.Subscription, error) {
	args := m.Called(ctx, userID, subscriptionID, atPeriodEnd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionService) Upgrade(ctx context.Context, userID, subscriptionID uuid.UUID, newTier models.PlanTier) (*models.Subscription, error) {
	args := m.Called(ctx, userID, subscriptionID, newTier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionService) HandlePaymentSucceeded(ctx context.Context, gatewaySubscriptionID string) error {
	args := m.Called(ctx, gatewaySubscriptionID)
	return args.Error(0)
}

func (m *MockSubscriptionService) HandlePaymentFailed(ctx context.Context, gatewaySubscriptionID string) error {
	args := m.Called(ctx, gatewaySubscriptionID)
	return args.Error(0)
}

func (m *MockSubscriptionService) HandleGatewayCancellation(ctx context.Context, gatewaySubscriptionID string) error {
	args := m.Called(ctx, gatewaySubscriptionID)
	return args.Error(0)
}

func (m *MockSubscriptionService) RenewDue(ctx context.Context, now time.Time, limit int) (int, error) {
	args := m.Called(ctx, now, limit)
	return args.Int(0), args.Error(1)
}

func (m *MockSubscriptionService) ExpireGracePeriods(ctx context.Context, now time.Time, limit int) (int, error) {
	args := m.Called(ctx, now, limit)
	return args.Int(0), args.Error(1)
}

type MockInvoiceService struct {
	mock.Mock
}

func (m *MockInvoiceService) GetByID(ctx context.Context, userID, invoiceID uuid.UUID) (*models.Invoice, error) {
	args := m.Called(ctx, userID, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceService) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Invoice, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]*models.Invoice), args.Error(1)
}

func (m *MockInvoiceService) ListByStatus(ctx context.Context, userID uuid.UUID, status models.InvoiceStatus, limit, offset int) ([]*models.Invoice, error) {
	args := m.Called(ctx, userID, status, limit, offset)
	return args.Get(0).([]*models.Invoice), args.Error(1)
}

func (m *MockInvoiceService) GenerateSubscriptionInvoice(ctx context.Context, sub *models.Subscription, plan *models.PricingPlan) (*models.Invoice, error) {
	args := m.Called(ctx, sub, plan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceService) GenerateProrationInvoice(ctx context.Context, sub *models.Subscription, oldPlan, newPlan *models.PricingPlan, credit, charge float64) (*models.Invoice, error) {
	args := m.Called(ctx, sub, oldPlan, newPlan, credit, charge)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceService) GenerateUsageInvoice(ctx context.Context, userID uuid.UUID, periodStart, periodEnd time.Time) (*models.Invoice, error) {
	args := m.Called(ctx, userID, periodStart, periodEnd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceService) ApplyPayment(ctx context.Context, userID, invoiceID uuid.UUID, amount float64, paymentMethodID string) (*models.Invoice, *models.Payment, error) {
	args := m.Called(ctx, userID, invoiceID, amount, paymentMethodID)
	var invoice *models.Invoice
	var payment *models.Payment
	if args.Get(0) != nil {
		invoice = args.Get(0).(*models.Invoice)
	}
	if args.Get(1) != nil {
		payment = args.Get(1).(*models.Payment)
	}
	return invoice, payment, args.Error(2)
}

func (m *MockInvoiceService) Refund(ctx context.Context, userID, invoiceID uuid.UUID) (*models.Invoice, error) {
	args := m.Called(ctx, userID, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceService) Void(ctx context.Context, userID, invoiceID uuid.UUID) (*models.Invoice, error) {
	args := m.Called(ctx, userID, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceService) MarkOverdueInvoices(ctx context.Context, now time.Time, limit int) (int, error) {
	args := m.Called(ctx, now, limit)
	return args.Int(0), args.Error(1)
}

type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Payment, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockPaymentRepository) GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*models.Payment, error) {
	args := m.Called(ctx, gatewayPaymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockPaymentRepository) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Payment, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]*models.Payment), args.Error(1)
}

func (m *MockPaymentRepository) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*models.Payment, error) {
	args := m.Called(ctx, invoiceID)
	return args.Get(0).([]*models.Payment), args.Error(1)
}

func (m *MockPaymentRepository) UpdateGuarded(ctx context.Context, payment *models.Payment, expected models.PaymentStatus) error {
	args := m.Called(ctx, payment, expected)
	return args.Error(0)
}
