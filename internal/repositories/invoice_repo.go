package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"billflow/internal/common"
	"billflow/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type InvoiceRepository interface {
	Create(ctx context.Context, invoice *models.Invoice) error
	GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Invoice, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Invoice, error)
	ListByStatus(ctx context.Context, userID uuid.UUID, status models.InvoiceStatus, limit, offset int) ([]*models.Invoice, error)
	UpdateGuarded(ctx context.Context, invoice *models.Invoice, expected models.InvoiceStatus) error
	ListOverdueCandidates(ctx context.Context, now time.Time, limit int) ([]*models.Invoice, error)
	GenerateInvoiceNumber(ctx context.Context, userID uuid.UUID, issuedDate time.Time) (string, error)
}

type invoiceRepo struct {
	db DB
}

func NewInvoiceRepository(db DB) InvoiceRepository {
	return &invoiceRepo{db: db}
}

const invoiceColumns = `id, user_id, subscription_id, invoice_number, type, status, issued_at, due_at, paid_at, period_start, period_end, subtotal, tax_amount, total_amount, amount_paid, amount_due, currency, created_at, updated_at`

func scanInvoice(row pgx.Row) (*models.Invoice, error) {
	inv := &models.Invoice{}
	err := row.Scan(&inv.ID, &inv.UserID, &inv.SubscriptionID, &inv.InvoiceNumber, &inv.Type, &inv.Status, &inv.IssuedAt, &inv.DueAt, &inv.PaidAt, &inv.PeriodStart, &inv.PeriodEnd, &inv.Subtotal, &inv.TaxAmount, &inv.TotalAmount, &inv.AmountPaid, &inv.AmountDue, &inv.Currency, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// Create inserts an invoice and its line items atomically. Line item order
// is the stored position, so listings reproduce the original sequence.
func (r *invoiceRepo) Create(ctx context.Context, invoice *models.Invoice) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO invoices (id, user_id, subscription_id, invoice_number, type, status, issued_at, due_at, paid_at, period_start, period_end, subtotal, tax_amount, total_amount, amount_paid, amount_due, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW(), NOW())
	`
	_, err = tx.Exec(ctx, query, invoice.ID, invoice.UserID, invoice.SubscriptionID, invoice.InvoiceNumber, invoice.Type, invoice.Status, invoice.IssuedAt, invoice.DueAt, invoice.PaidAt, invoice.PeriodStart, invoice.PeriodEnd, invoice.Subtotal, invoice.TaxAmount, invoice.TotalAmount, invoice.AmountPaid, invoice.AmountDue, invoice.Currency)
	if err != nil {
		return err
	}

	lineQuery := `
		INSERT INTO invoice_line_items (id, invoice_id, position, description, quantity, unit_price, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, li := range invoice.LineItems {
		_, err = tx.Exec(ctx, lineQuery, li.ID, li.InvoiceID, li.Position, li.Description, li.Quantity, li.UnitPrice, li.Amount)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *invoiceRepo) GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE user_id = $1 AND id = $2
	`
	invoice, err := scanInvoice(r.db.QueryRow(ctx, query, userID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("invoice %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	items, err := r.getLineItems(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}
	invoice.LineItems = items
	return invoice, nil
}

func (r *invoiceRepo) getLineItems(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoiceLineItem, error) {
	query := `
		SELECT id, invoice_id, position, description, quantity, unit_price, amount
		FROM invoice_line_items
		WHERE invoice_id = $1
		ORDER BY position ASC
	`
	rows, err := r.db.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.InvoiceLineItem
	for rows.Next() {
		var li models.InvoiceLineItem
		if err := rows.Scan(&li.ID, &li.InvoiceID, &li.Position, &li.Description, &li.Quantity, &li.UnitPrice, &li.Amount); err != nil {
			return nil, err
		}
		items = append(items, li)
	}
	return items, rows.Err()
}

func (r *invoiceRepo) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []*models.Invoice
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, invoice)
	}
	return invoices, rows.Err()
}

func (r *invoiceRepo) ListByStatus(ctx context.Context, userID uuid.UUID, status models.InvoiceStatus, limit, offset int) ([]*models.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE user_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Query(ctx, query, userID, status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []*models.Invoice
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, invoice)
	}
	return invoices, rows.Err()
}

// UpdateGuarded writes the invoice only when the stored status still matches
// expected, so concurrent payment application and voiding cannot clobber
// each other.
func (r *invoiceRepo) UpdateGuarded(ctx context.Context, invoice *models.Invoice, expected models.InvoiceStatus) error {
	query := `
		UPDATE invoices
		SET status = $1, issued_at = $2, due_at = $3, paid_at = $4, subtotal = $5, tax_amount = $6, total_amount = $7, amount_paid = $8, amount_due = $9, updated_at = NOW()
		WHERE user_id = $10 AND id = $11 AND status = $12
	`
	tag, err := r.db.Exec(ctx, query, invoice.Status, invoice.IssuedAt, invoice.DueAt, invoice.PaidAt, invoice.Subtotal, invoice.TaxAmount, invoice.TotalAmount, invoice.AmountPaid, invoice.AmountDue, invoice.UserID, invoice.ID, expected)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("invoice %s no longer in state %s: %w", invoice.ID, expected, common.ErrConflict)
	}
	return nil
}

// ListOverdueCandidates returns unpaid invoices past their due date that the
// sweep has not marked yet.
func (r *invoiceRepo) ListOverdueCandidates(ctx context.Context, now time.Time, limit int) ([]*models.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE status IN ('pending', 'partially_paid') AND due_at IS NOT NULL AND due_at < $1
		ORDER BY due_at ASC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []*models.Invoice
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, invoice)
	}
	return invoices, rows.Err()
}

// GenerateInvoiceNumber produces a unique sequential invoice number per
// account and month using an upsert on the sequence table.
func (r *invoiceRepo) GenerateInvoiceNumber(ctx context.Context, userID uuid.UUID, issuedDate time.Time) (string, error) {
	yearMonth := issuedDate.UTC().Format("2006-01")

	query := `
		WITH upsert AS (
			INSERT INTO invoice_sequences (user_id, year_month, last_number)
			VALUES ($1, $2, 1)
			ON CONFLICT (user_id, year_month)
			DO UPDATE SET
				last_number = invoice_sequences.last_number + 1,
				updated_at = NOW()
			RETURNING last_number
		)
		SELECT last_number FROM upsert;
	`

	var sequenceNum int
	err := r.db.QueryRow(ctx, query, userID, yearMonth).Scan(&sequenceNum)
	if err != nil {
		return "", fmt.Errorf("failed to generate invoice sequence: %w", err)
	}

	userSuffix := userID.String()[len(userID.String())-8:]
	return fmt.Sprintf("INV-%s-%s-%06d", userSuffix, yearMonth, sequenceNum), nil
}
