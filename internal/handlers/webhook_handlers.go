package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"billflow/internal/common"
	"billflow/internal/repositories"
	"billflow/internal/services"

	"github.com/labstack/echo/v4"
)

// WebhookHandlers receives payment gateway callbacks. Events are verified
// against the shared webhook secret before anything is trusted.
type WebhookHandlers struct {
	gateway             services.PaymentGateway
	subscriptionService services.SubscriptionService
	invoiceService      services.InvoiceServiceInterface
	paymentRepo         repositories.PaymentRepository
}

func NewWebhookHandlers(
	gateway services.PaymentGateway,
	subscriptionService services.SubscriptionService,
	invoiceService services.InvoiceServiceInterface,
	paymentRepo repositories.PaymentRepository,
) *WebhookHandlers {
	return &WebhookHandlers{
		gateway:             gateway,
		subscriptionService: subscriptionService,
		invoiceService:      invoiceService,
		paymentRepo:         paymentRepo,
	}
}

// webhookEventData is the payload shape shared by the lifecycle events the
// gateway emits.
type webhookEventData struct {
	GatewaySubscriptionID string `json:"gateway_subscription_id"`
	GatewayPaymentID      string `json:"gateway_payment_id"`
}

// HandlePaymentWebhook handles POST /v1/billing/webhooks/payment
func (h *WebhookHandlers) HandlePaymentWebhook(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return common.SendClientError(c, "Failed to read webhook body")
	}

	signature := c.Request().Header.Get("X-Webhook-Signature")
	if signature == "" {
		return common.SendUnauthorizedError(c)
	}

	event, err := h.gateway.VerifyWebhook(body, signature)
	if err != nil {
		log.Printf("WARN: rejected webhook with bad signature: %v", err)
		return common.SendUnauthorizedError(c)
	}

	var data webhookEventData
	if len(event.Data) > 0 {
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return common.SendClientError(c, "Malformed webhook payload")
		}
	}

	switch event.Event {
	case services.WebhookPaymentSucceeded:
		err = h.subscriptionService.HandlePaymentSucceeded(ctx, data.GatewaySubscriptionID)
	case services.WebhookPaymentFailed:
		err = h.subscriptionService.HandlePaymentFailed(ctx, data.GatewaySubscriptionID)
	case services.WebhookPaymentRefunded:
		err = h.handlePaymentRefunded(ctx, data.GatewayPaymentID)
	case services.WebhookSubscriptionCancelled:
		err = h.subscriptionService.HandleGatewayCancellation(ctx, data.GatewaySubscriptionID)
	default:
		// Unknown events are acknowledged so the gateway stops retrying.
		log.Printf("DEBUG: ignoring webhook event %s (%s)", event.Event, event.ID)
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}
	if err != nil {
		return common.SendBillingError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "processed"})
}

// handlePaymentRefunded applies a gateway-initiated refund to the invoice the
// payment settled. Unknown payments and already-refunded invoices are
// acknowledged; the gateway retries until it sees a 2xx.
func (h *WebhookHandlers) handlePaymentRefunded(ctx context.Context, gatewayPaymentID string) error {
	payment, err := h.paymentRepo.GetByGatewayPaymentID(ctx, gatewayPaymentID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			log.Printf("WARN: refund webhook for unknown gateway payment %s", gatewayPaymentID)
			return nil
		}
		return err
	}
	if payment.InvoiceID == nil {
		log.Printf("WARN: refund webhook for payment %s with no invoice", payment.ID)
		return nil
	}

	if _, err := h.invoiceService.Refund(ctx, payment.UserID, *payment.InvoiceID); err != nil {
		// A replayed event finds the invoice already refunded.
		if errors.Is(err, common.ErrConflict) {
			return nil
		}
		return err
	}
	return nil
}
