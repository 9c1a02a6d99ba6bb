package handlers

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"billflow/internal/common"
	"billflow/internal/models"
	"billflow/internal/services"

	"github.com/jung-kurt/gofpdf"
	"github.com/labstack/echo/v4"
)

// InvoiceHandlers handles invoice reads, usage invoice generation and PDF
// rendering. Rendered PDFs are cached in object storage keyed by invoice id.
type InvoiceHandlers struct {
	invoiceService services.InvoiceServiceInterface
	minioService   services.MinioService
	pdfBucket      string
}

func NewInvoiceHandlers(invoiceService services.InvoiceServiceInterface, minioService services.MinioService, pdfBucket string) *InvoiceHandlers {
	return &InvoiceHandlers{
		invoiceService: invoiceService,
		minioService:   minioService,
		pdfBucket:      pdfBucket,
	}
}

// ListInvoices handles GET /v1/billing/invoices
func (h *InvoiceHandlers) ListInvoices(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	limit, offset := parsePagination(c)

	var (
		invoices []*models.Invoice
		err      error
	)
	if statusParam := c.QueryParam("status"); statusParam != "" {
		status := models.InvoiceStatus(statusParam)
		invoices, err = h.invoiceService.ListByStatus(ctx, userID, status, limit, offset)
	} else {
		invoices, err = h.invoiceService.List(ctx, userID, limit, offset)
	}
	if err != nil {
		return common.SendBillingError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"invoices": invoices,
		"limit":    limit,
		"offset":   offset,
	})
}

// GetInvoice handles GET /v1/billing/invoices/:id
func (h *InvoiceHandlers) GetInvoice(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	invoiceID, err := common.ValidateUUID(c.Param("id"), "invoice id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	invoice, err := h.invoiceService.GetByID(ctx, userID, invoiceID)
	if err != nil {
		return common.SendBillingError(c, err)
	}

	now := time.Now().UTC()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"invoice":      invoice,
		"is_overdue":   invoice.IsOverdue(now),
		"days_overdue": invoice.DaysOverdue(now),
	})
}

// GenerateUsageInvoice handles POST /v1/billing/invoices/generate. Without an
// explicit window it bills the previous calendar month.
func (h *InvoiceHandlers) GenerateUsageInvoice(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	var req struct {
		PeriodStart *time.Time `json:"period_start"`
		PeriodEnd   *time.Time `json:"period_end"`
	}
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}

	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	periodStart := monthStart.AddDate(0, -1, 0)
	periodEnd := monthStart
	if req.PeriodStart != nil && req.PeriodEnd != nil {
		periodStart = *req.PeriodStart
		periodEnd = *req.PeriodEnd
		if err := common.ValidateDateRange(periodStart, periodEnd); err != nil {
			return common.SendValidationError(c, "period", err.Error())
		}
	}

	invoice, err := h.invoiceService.GenerateUsageInvoice(ctx, userID, periodStart, periodEnd)
	if err != nil {
		return common.SendBillingError(c, err)
	}

	return c.JSON(http.StatusCreated, invoice)
}

// VoidInvoice handles POST /v1/billing/invoices/:id/void
func (h *InvoiceHandlers) VoidInvoice(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	invoiceID, err := common.ValidateUUID(c.Param("id"), "invoice id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	invoice, err := h.invoiceService.Void(ctx, userID, invoiceID)
	if err != nil {
		return common.SendBillingError(c, err)
	}

	return c.JSON(http.StatusOK, invoice)
}

// RefundInvoice handles POST /v1/billing/invoices/:id/refund
func (h *InvoiceHandlers) RefundInvoice(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	invoiceID, err := common.ValidateUUID(c.Param("id"), "invoice id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	invoice, err := h.invoiceService.Refund(ctx, userID, invoiceID)
	if err != nil {
		return common.SendBillingError(c, err)
	}

	return c.JSON(http.StatusOK, invoice)
}

// DownloadInvoicePDF handles GET /v1/billing/invoices/:id/pdf
func (h *InvoiceHandlers) DownloadInvoicePDF(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	invoiceID, err := common.ValidateUUID(c.Param("id"), "invoice id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	invoice, err := h.invoiceService.GetByID(ctx, userID, invoiceID)
	if err != nil {
		return common.SendBillingError(c, err)
	}
	if invoice.Status == models.InvoiceDraft {
		return common.SendClientError(c, "Draft invoices have no PDF")
	}

	objectName := fmt.Sprintf("invoices/%s.pdf", invoice.ID.String())
	if cached, err := h.minioService.GetPDF(ctx, h.pdfBucket, objectName); err == nil && len(cached) > 0 {
		return c.Blob(http.StatusOK, "application/pdf", cached)
	}

	pdfBytes, err := h.generateInvoicePDF(ctx, invoice)
	if err != nil {
		return common.SendServerError(c, "Failed to render invoice PDF")
	}

	if err := h.minioService.UploadPDF(ctx, h.pdfBucket, objectName, pdfBytes); err != nil {
		log.Printf("WARN: failed to store invoice PDF %s: %v", invoice.ID, err)
	}

	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, invoice.InvoiceNumber))
	return c.Blob(http.StatusOK, "application/pdf", pdfBytes)
}

// generateInvoicePDF renders an invoice with its line items.
func (h *InvoiceHandlers) generateInvoicePDF(_ context.Context, invoice *models.Invoice) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	marginX := 20.0
	marginY := 20.0
	pdf.SetMargins(marginX, marginY, marginX)
	pdf.SetAutoPageBreak(true, marginY)

	pdf.SetFont("Arial", "B", 16)
	pdf.SetTextColor(33, 37, 41)

	pdf.SetXY(marginX, marginY)
	pdf.Cell(0, 10, "BILLFLOW INVOICE")
	pdf.Ln(15)

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Invoice Number: %s", invoice.InvoiceNumber))
	pdf.Ln(8)
	if invoice.IssuedAt != nil {
		pdf.Cell(0, 8, fmt.Sprintf("Invoice Date: %s", invoice.IssuedAt.Format("02-Jan-2006")))
		pdf.Ln(8)
	}
	if invoice.DueAt != nil {
		pdf.Cell(0, 8, fmt.Sprintf("Due Date: %s", invoice.DueAt.Format("02-Jan-2006")))
		pdf.Ln(8)
	}
	pdf.Cell(0, 8, fmt.Sprintf("Status: %s", invoice.Status))
	pdf.Ln(8)

	if invoice.PeriodStart != nil && invoice.PeriodEnd != nil {
		pdf.Cell(0, 8, fmt.Sprintf("Billing Period: %s to %s",
			invoice.PeriodStart.Format("02-Jan-2006"), invoice.PeriodEnd.Format("02-Jan-2006")))
		pdf.Ln(8)
	}

	pdf.Ln(5)

	// Items table header
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(240, 240, 240)

	headers := []string{"Description", "Qty", "Rate", "Amount"}
	colWidths := []float64{90, 20, 30, 30}

	for i, header := range headers {
		pdf.CellFormat(colWidths[i], 8, header, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	pdf.SetFillColor(255, 255, 255)

	for _, item := range invoice.LineItems {
		pdf.CellFormat(colWidths[0], 8, item.Description, "1", 0, "L", false, 0, "")
		pdf.CellFormat(colWidths[1], 8, fmt.Sprintf("%d", item.Quantity), "1", 0, "C", false, 0, "")
		pdf.CellFormat(colWidths[2], 8, fmt.Sprintf("%.2f", item.UnitPrice), "1", 0, "R", false, 0, "")
		pdf.CellFormat(colWidths[3], 8, fmt.Sprintf("%.2f", item.Amount), "1", 0, "R", false, 0, "")
		pdf.Ln(8)
	}

	pdf.Ln(5)

	// Totals section
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(140, 6, "Subtotal:", "", 0, "R", false, 0, "")
	pdf.CellFormat(30, 6, fmt.Sprintf("%.2f %s", invoice.Subtotal, invoice.Currency), "", 0, "R", false, 0, "")
	pdf.Ln(6)

	if invoice.TaxAmount > 0 {
		pdf.SetFont("Arial", "", 9)
		pdf.CellFormat(140, 5, "Tax:", "", 0, "R", false, 0, "")
		pdf.CellFormat(30, 5, fmt.Sprintf("%.2f %s", invoice.TaxAmount, invoice.Currency), "", 0, "R", false, 0, "")
		pdf.Ln(5)
	}

	if invoice.AmountPaid > 0 {
		pdf.SetFont("Arial", "", 9)
		pdf.CellFormat(140, 5, "Paid:", "", 0, "R", false, 0, "")
		pdf.CellFormat(30, 5, fmt.Sprintf("-%.2f %s", invoice.AmountPaid, invoice.Currency), "", 0, "R", false, 0, "")
		pdf.Ln(5)
	}

	pdf.SetFont("Arial", "B", 11)
	pdf.SetTextColor(220, 20, 60)
	pdf.CellFormat(140, 8, "AMOUNT DUE:", "", 0, "R", false, 0, "")
	pdf.CellFormat(30, 8, fmt.Sprintf("%.2f %s", invoice.AmountDue, invoice.Currency), "", 0, "R", false, 0, "")
	pdf.Ln(10)

	pdf.SetTextColor(33, 37, 41)
	pdf.SetFont("Arial", "B", 9)
	pdf.Cell(0, 6, "Terms & Conditions:")
	pdf.Ln(6)

	pdf.SetFont("Arial", "", 8)
	terms := []string{
		"1. Payment is due within 14 days of invoice date",
		"2. Overdue invoices may lead to service suspension",
		"3. This is a computer generated invoice",
	}
	for _, term := range terms {
		pdf.Cell(0, 5, term)
		pdf.Ln(5)
	}

	pdf.Ln(10)
	pdf.SetFont("Arial", "I", 8)
	pdf.SetTextColor(128, 128, 128)
	pdf.Cell(0, 5, "Thank you for your business!")
	pdf.Ln(5)
	pdf.Cell(0, 5, "For any queries, contact: billing@billflow.dev")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render invoice pdf: %w", err)
	}
	return buf.Bytes(), nil
}
