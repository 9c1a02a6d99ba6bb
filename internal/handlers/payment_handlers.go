package handlers

import (
	"net/http"

	"billflow/internal/common"
	"billflow/internal/repositories"
	"billflow/internal/services"

	"github.com/labstack/echo/v4"
)

// PaymentHandlers handles payment submission against invoices and payment
// history reads.
type PaymentHandlers struct {
	invoiceService services.InvoiceServiceInterface
	paymentRepo    repositories.PaymentRepository
}

func NewPaymentHandlers(invoiceService services.InvoiceServiceInterface, paymentRepo repositories.PaymentRepository) *PaymentHandlers {
	return &PaymentHandlers{
		invoiceService: invoiceService,
		paymentRepo:    paymentRepo,
	}
}

// CreatePayment handles POST /v1/billing/payments
func (h *PaymentHandlers) CreatePayment(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	var req struct {
		InvoiceID       string  `json:"invoice_id"`
		Amount          float64 `json:"amount"`
		PaymentMethodID string  `json:"payment_method_id"`
	}
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}

	invoiceID, err := common.ValidateUUID(req.InvoiceID, "invoice_id")
	if err != nil {
		return common.SendValidationError(c, "invoice_id", err.Error())
	}
	if req.Amount <= 0 {
		return common.SendValidationError(c, "amount", "amount must be positive")
	}
	if err := common.ValidateRequiredString(req.PaymentMethodID, "payment_method_id"); err != nil {
		return common.SendValidationError(c, "payment_method_id", err.Error())
	}

	invoice, payment, err := h.invoiceService.ApplyPayment(ctx, userID, invoiceID, req.Amount, req.PaymentMethodID)
	if err != nil {
		return common.SendBillingError(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"payment": payment,
		"invoice": invoice,
	})
}

// ListPayments handles GET /v1/billing/payments
func (h *PaymentHandlers) ListPayments(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	limit, offset := parsePagination(c)
	payments, err := h.paymentRepo.List(ctx, userID, limit, offset)
	if err != nil {
		return common.SendServerError(c, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"payments": payments,
		"limit":    limit,
		"offset":   offset,
	})
}

// GetPayment handles GET /v1/billing/payments/:id
func (h *PaymentHandlers) GetPayment(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	paymentID, err := common.ValidateUUID(c.Param("id"), "payment id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	payment, err := h.paymentRepo.GetByID(ctx, userID, paymentID)
	if err != nil {
		return common.SendBillingError(c, err)
	}

	return c.JSON(http.StatusOK, payment)
}
