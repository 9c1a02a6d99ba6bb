package services

import (
	"context"
	"time"

	"billflow/internal/models"
	"billflow/internal/quota"
	"billflow/internal/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Mock repositories and collaborators shared by the service tests.

type MockSubscriptionRepository struct {
	mock.Mock
}

func (m *MockSubscriptionRepository) Create(ctx context.Context, subscription *models.Subscription) error {
	args := m.Called(ctx, subscription)
	return args.Error(0)
}

func (m *MockSubscriptionRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Subscription, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) GetCurrentByUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) GetByGatewayID(ctx context.Context, gatewayID string) (*models.Subscription, error) {
	args := m.Called(ctx, gatewayID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Subscription, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) UpdateGuarded(ctx context.Context, subscription *models.Subscription, expected models.SubscriptionStatus) error {
	args := m.Called(ctx, subscription, expected)
	return args.Error(0)
}

func (m *MockSubscriptionRepository) ListExpiryCandidates(ctx context.Context, now time.Time, limit int) ([]*models.Subscription, error) {
	args := m.Called(ctx, now, limit)
	return args.Get(0).([]*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) ListGraceExpired(ctx context.Context, now time.Time, limit int) ([]*models.Subscription, error) {
	args := m.Called(ctx, now, limit)
	return args.Get(0).([]*models.Subscription), args.Error(1)
}

type MockPlanRepository struct {
	mock.Mock
}

func (m *MockPlanRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PricingPlan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PricingPlan), args.Error(1)
}

func (m *MockPlanRepository) GetByTierAndCycle(ctx context.Context, tier models.PlanTier, cycle models.BillingCycle) (*models.PricingPlan, error) {
	args := m.Called(ctx, tier, cycle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PricingPlan), args.Error(1)
}

func (m *MockPlanRepository) ListActive(ctx context.Context) ([]*models.PricingPlan, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*models.PricingPlan), args.Error(1)
}

type MockInvoiceRepository struct {
	mock.Mock
}

func (m *MockInvoiceRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *MockInvoiceRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Invoice, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Invoice, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]*models.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) ListByStatus(ctx context.Context, userID uuid.UUID, status models.InvoiceStatus, limit, offset int) ([]*models.Invoice, error) {
	args := m.Called(ctx, userID, status, limit, offset)
	return args.Get(0).([]*models.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) UpdateGuarded(ctx context.Context, invoice *models.Invoice, expected models.InvoiceStatus) error {
	args := m.Called(ctx, invoice, expected)
	return args.Error(0)
}

func (m *MockInvoiceRepository) ListOverdueCandidates(ctx context.Context, now time.Time, limit int) ([]*models.Invoice, error) {
	args := m.Called(ctx, now, limit)
	return args.Get(0).([]*models.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) GenerateInvoiceNumber(ctx context.Context, userID uuid.UUID, issuedDate time.Time) (string, error) {
	args := m.Called(ctx, userID, issuedDate)
	return args.String(0), args.Error(1)
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

type MockUsageRepository struct {
	mock.Mock
}

func (m *MockUsageRepository) Insert(ctx context.Context, record *models.UsageRecord) (bool, error) {
	args := m.Called(ctx, record)
	return args.Bool(0), args.Error(1)
}

func (m *MockUsageRepository) AggregateSince(ctx context.Context, userID uuid.UUID, since time.Time) (*repositories.UsageTotals, error) {
	args := m.Called(ctx, userID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repositories.UsageTotals), args.Error(1)
}

func (m *MockUsageRepository) SumCostBetween(ctx context.Context, userID uuid.UUID, start, end time.Time) (float64, error) {
	args := m.Called(ctx, userID, start, end)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockUsageRepository) ListByUser(ctx context.Context, userID uuid.UUID, since time.Time, limit, offset int) ([]*models.UsageRecord, error) {
	args := m.Called(ctx, userID, since, limit, offset)
	return args.Get(0).([]*models.UsageRecord), args.Error(1)
}

type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) CreateSubscription(ctx context.Context, req *GatewaySubscriptionRequest) (*GatewaySubscription, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*GatewaySubscription), args.Error(1)
}

func (m *MockPaymentGateway) CancelSubscription(ctx context.Context, gatewaySubscriptionID string) (*GatewaySubscription, error) {
	args := m.Called(ctx, gatewaySubscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*GatewaySubscription), args.Error(1)
}

func (m *MockPaymentGateway) ChargePayment(ctx context.Context, req *GatewayChargeRequest) (*GatewayCharge, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*GatewayCharge), args.Error(1)
}

func (m *MockPaymentGateway) RefundPayment(ctx context.Context, gatewayPaymentID string, amount float64) (*GatewayRefund, error) {
	args := m.Called(ctx, gatewayPaymentID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*GatewayRefund), args.Error(1)
}

func (m *MockPaymentGateway) ValidatePaymentMethod(ctx context.Context, paymentMethodID string) error {
	args := m.Called(ctx, paymentMethodID)
	return args.Error(0)
}

func (m *MockPaymentGateway) VerifyWebhook(rawData []byte, signature string) (*WebhookEvent, error) {
	args := m.Called(rawData, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*WebhookEvent), args.Error(1)
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

type MockCacheInvalidator struct {
	mock.Mock
}

func (m *MockCacheInvalidator) SetSubscriptionCache(ctx context.Context, subscription *models.Subscription) error {
	args := m.Called(ctx, subscription)
	return args.Error(0)
}

func (m *MockCacheInvalidator) DropUserCaches(ctx context.Context, userID uuid.UUID) {
	m.Called(ctx, userID)
}

type MockCacheService struct {
	mock.Mock
}

func (m *MockCacheService) GetSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockCacheService) SetSubscription(ctx context.Context, subscription *models.Subscription, ttl time.Duration) error {
	args := m.Called(ctx, subscription, ttl)
	return args.Error(0)
}

func (m *MockCacheService) DeleteSubscription(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockCacheService) GetPlans(ctx context.Context) ([]*models.PricingPlan, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PricingPlan), args.Error(1)
}

func (m *MockCacheService) SetPlans(ctx context.Context, plans []*models.PricingPlan, ttl time.Duration) error {
	args := m.Called(ctx, plans, ttl)
	return args.Error(0)
}

func (m *MockCacheService) InvalidatePlans(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockCacheService) GetQuotaSnapshot(ctx context.Context, userID uuid.UUID) (*quota.Info, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*quota.Info), args.Error(1)
}

func (m *MockCacheService) SetQuotaSnapshot(ctx context.Context, userID uuid.UUID, info *quota.Info, ttl time.Duration) error {
	args := m.Called(ctx, userID, info, ttl)
	return args.Error(0)
}

func (m *MockCacheService) DeleteQuotaSnapshot(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockCacheService) ReserveIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockCacheService) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockCacheService) AcquireRefreshLock(ctx context.Context, userID uuid.UUID, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, userID, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockCacheService) ReleaseRefreshLock(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockCacheService) InvalidateUserCache(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockCacheService) InvalidateAllCache(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockCacheService) IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func (m *MockCacheService) SetString(ctx context.Context, key string, value string, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockCacheService) GetString(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockCacheService) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}
