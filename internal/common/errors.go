package common

import (
	"errors"
	"net/http"
)

// Billing error taxonomy. Services wrap these sentinels with fmt.Errorf("...: %w", err)
// so handlers can map any failure to the right HTTP status in one place.
var (
	ErrValidation               = errors.New("validation failed")
	ErrPaymentRequired          = errors.New("payment method required")
	ErrInvalidSubscriptionState = errors.New("operation not allowed in current subscription state")
	ErrNotFound                 = errors.New("not found")
	ErrConflict                 = errors.New("conflicting concurrent update")
	ErrOverpayment              = errors.New("payment exceeds invoice total")
	ErrInvalidQuotaInput        = errors.New("invalid quota input")
	ErrPlanNotFound             = errors.New("plan not found")
)

// HTTPStatus maps a billing error to its HTTP status code.
// Unrecognized errors are treated as internal failures.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrPaymentRequired):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrInvalidSubscriptionState):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrPlanNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrOverpayment):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidQuotaInput):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode returns the machine-readable code used in error envelopes.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrPaymentRequired):
		return "PAYMENT_REQUIRED"
	case errors.Is(err, ErrInvalidSubscriptionState):
		return "INVALID_SUBSCRIPTION_STATE"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrPlanNotFound):
		return "PLAN_NOT_FOUND"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrOverpayment):
		return "OVERPAYMENT"
	case errors.Is(err, ErrInvalidQuotaInput):
		return "INVALID_QUOTA_INPUT"
	default:
		return "SERVER_ERROR"
	}
}
