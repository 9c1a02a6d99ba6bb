package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PaymentGateway handles all payment provider API interactions.
type PaymentGateway interface {
	CreateSubscription(ctx context.Context, req *GatewaySubscriptionRequest) (*GatewaySubscription, error)
	CancelSubscription(ctx context.Context, gatewaySubscriptionID string) (*GatewaySubscription, error)
	ChargePayment(ctx context.Context, req *GatewayChargeRequest) (*GatewayCharge, error)
	RefundPayment(ctx context.Context, gatewayPaymentID string, amount float64) (*GatewayRefund, error)
	ValidatePaymentMethod(ctx context.Context, paymentMethodID string) error
	VerifyWebhook(rawData []byte, signature string) (*WebhookEvent, error)
}

type gatewayService struct {
	apiKey        string
	apiSecret     string
	webhookSecret string
	baseURL       string
	http          *http.Client
}

type GatewaySubscriptionRequest struct {
	PlanCode        string  `json:"plan_code"`
	CustomerID      string  `json:"customer_id"`
	PaymentMethodID string  `json:"payment_method_id"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	Interval        string  `json:"interval"`
	Quantity        int     `json:"quantity,omitempty"`
}

type GatewaySubscription struct {
	ID      string `json:"id"`
	Entity  string `json:"entity"`
	Status  string `json:"status"`
	StartAt int64  `json:"start_at"`
	EndAt   int64  `json:"end_at"`
}

type GatewayChargeRequest struct {
	CustomerID      string  `json:"customer_id"`
	PaymentMethodID string  `json:"payment_method_id"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	Description     string  `json:"description,omitempty"`
	IdempotencyKey  string  `json:"idempotency_key,omitempty"`
}

type GatewayCharge struct {
	ID            string  `json:"id"`
	Status        string  `json:"status"`
	Amount        float64 `json:"amount"`
	Fee           float64 `json:"fee"`
	FailureReason string  `json:"failure_reason,omitempty"`
}

type GatewayRefund struct {
	ID        string  `json:"id"`
	PaymentID string  `json:"payment_id"`
	Status    string  `json:"status"`
	Amount    float64 `json:"amount"`
}

type WebhookEvent struct {
	ID      string          `json:"id"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
	Created int64           `json:"created"`
}

// Webhook event names the provider emits.
const (
	WebhookPaymentSucceeded      = "payment.succeeded"
	WebhookPaymentFailed         = "payment.failed"
	WebhookPaymentRefunded       = "payment.refunded"
	WebhookSubscriptionCancelled = "subscription.cancelled"
)

func NewPaymentGateway(apiKey, apiSecret, webhookSecret, baseURL string) PaymentGateway {
	return &gatewayService{
		apiKey:        apiKey,
		apiSecret:     apiSecret,
		webhookSecret: webhookSecret,
		baseURL:       baseURL,
		http:          &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *gatewayService) CreateSubscription(ctx context.Context, req *GatewaySubscriptionRequest) (*GatewaySubscription, error) {
	data, err := s.makeRequest(ctx, http.MethodPost, "/subscriptions", req)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway subscription: %w", err)
	}

	var sub GatewaySubscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *gatewayService) CancelSubscription(ctx context.Context, gatewaySubscriptionID string) (*GatewaySubscription, error) {
	path := fmt.Sprintf("/subscriptions/%s/cancel", gatewaySubscriptionID)
	data, err := s.makeRequest(ctx, http.MethodPost, path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel gateway subscription: %w", err)
	}

	var sub GatewaySubscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *gatewayService) ChargePayment(ctx context.Context, req *GatewayChargeRequest) (*GatewayCharge, error) {
	data, err := s.makeRequest(ctx, http.MethodPost, "/charges", req)
	if err != nil {
		return nil, fmt.Errorf("failed to charge payment: %w", err)
	}

	var charge GatewayCharge
	if err := json.Unmarshal(data, &charge); err != nil {
		return nil, err
	}
	return &charge, nil
}

func (s *gatewayService) RefundPayment(ctx context.Context, gatewayPaymentID string, amount float64) (*GatewayRefund, error) {
	path := fmt.Sprintf("/payments/%s/refund", gatewayPaymentID)
	data, err := s.makeRequest(ctx, http.MethodPost, path, map[string]interface{}{"amount": amount})
	if err != nil {
		return nil, fmt.Errorf("failed to refund payment: %w", err)
	}

	var refund GatewayRefund
	if err := json.Unmarshal(data, &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

func (s *gatewayService) ValidatePaymentMethod(ctx context.Context, paymentMethodID string) error {
	path := fmt.Sprintf("/payment_methods/%s", paymentMethodID)
	_, err := s.makeRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return fmt.Errorf("payment method %s not usable: %w", paymentMethodID, err)
	}
	return nil
}

// VerifyWebhook checks the HMAC-SHA256 signature over the raw payload before
// trusting any event data.
func (s *gatewayService) VerifyWebhook(rawData []byte, signature string) (*WebhookEvent, error) {
	mac := hmac.New(sha256.New, []byte(s.webhookSecret))
	mac.Write(rawData)
	expected := hex.EncodeToString(mac.Sum(nil))

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return nil, fmt.Errorf("malformed webhook signature")
	}
	expectedBytes, _ := hex.DecodeString(expected)
	if !hmac.Equal(provided, expectedBytes) {
		return nil, fmt.Errorf("webhook signature mismatch")
	}

	var event WebhookEvent
	if err := json.Unmarshal(rawData, &event); err != nil {
		return nil, fmt.Errorf("failed to parse webhook data: %v", err)
	}
	return &event, nil
}

func (s *gatewayService) makeRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewBuffer(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, err
	}

	req.SetBasicAuth(s.apiKey, s.apiSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, string(data))
	}
	return data, nil
}
