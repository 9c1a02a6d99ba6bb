package repositories

import (
	"context"
	"errors"
	"fmt"

	"billflow/internal/common"
	"billflow/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Payment, error)
	GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*models.Payment, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Payment, error)
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*models.Payment, error)
	UpdateGuarded(ctx context.Context, payment *models.Payment, expected models.PaymentStatus) error
}

type paymentRepo struct {
	db DB
}

func NewPaymentRepository(db DB) PaymentRepository {
	return &paymentRepo{db: db}
}

const paymentColumns = `id, user_id, invoice_id, gateway, gateway_payment_id, status, amount, currency, fee, net_amount, failure_reason, completed_at, created_at, updated_at`

func scanPayment(row pgx.Row) (*models.Payment, error) {
	p := &models.Payment{}
	err := row.Scan(&p.ID, &p.UserID, &p.InvoiceID, &p.Gateway, &p.GatewayPaymentID, &p.Status, &p.Amount, &p.Currency, &p.Fee, &p.NetAmount, &p.FailureReason, &p.CompletedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *paymentRepo) Create(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (id, user_id, invoice_id, gateway, gateway_payment_id, status, amount, currency, fee, net_amount, failure_reason, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query, payment.ID, payment.UserID, payment.InvoiceID, payment.Gateway, payment.GatewayPaymentID, payment.Status, payment.Amount, payment.Currency, payment.Fee, payment.NetAmount, payment.FailureReason, payment.CompletedAt)
	return err
}

func (r *paymentRepo) GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE user_id = $1 AND id = $2
	`
	p, err := scanPayment(r.db.QueryRow(ctx, query, userID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("payment %s: %w", id, common.ErrNotFound)
	}
	return p, err
}

func (r *paymentRepo) GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*models.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE gateway_payment_id = $1
	`
	p, err := scanPayment(r.db.QueryRow(ctx, query, gatewayPaymentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("gateway payment %s: %w", gatewayPaymentID, common.ErrNotFound)
	}
	return p, err
}

func (r *paymentRepo) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *paymentRepo) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*models.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE invoice_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// UpdateGuarded writes the payment only when the stored status still matches
// expected, keeping the settlement state machine race-safe.
func (r *paymentRepo) UpdateGuarded(ctx context.Context, payment *models.Payment, expected models.PaymentStatus) error {
	query := `
		UPDATE payments
		SET status = $1, gateway_payment_id = $2, fee = $3, net_amount = $4, failure_reason = $5, completed_at = $6, updated_at = NOW()
		WHERE user_id = $7 AND id = $8 AND status = $9
	`
	tag, err := r.db.Exec(ctx, query, payment.Status, payment.GatewayPaymentID, payment.Fee, payment.NetAmount, payment.FailureReason, payment.CompletedAt, payment.UserID, payment.ID, expected)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment %s no longer in state %s: %w", payment.ID, expected, common.ErrConflict)
	}
	return nil
}
