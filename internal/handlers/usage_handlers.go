package handlers

import (
	"net/http"
	"time"

	"billflow/internal/common"
	"billflow/internal/services"

	"github.com/labstack/echo/v4"
)

// UsageHandlers handles metered usage ingestion and listing.
type UsageHandlers struct {
	usageService services.UsageService
}

func NewUsageHandlers(usageService services.UsageService) *UsageHandlers {
	return &UsageHandlers{usageService: usageService}
}

// TrackUsage handles POST /v1/billing/usage. Retries must send the same
// Idempotency-Key header; replays return 200 instead of 201.
func (h *UsageHandlers) TrackUsage(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	key := c.Request().Header.Get("Idempotency-Key")
	if key == "" {
		return common.SendValidationError(c, "Idempotency-Key", "Idempotency-Key header is required")
	}

	var req services.TrackUsageRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	req.IdempotencyKey = key

	record, inserted, err := h.usageService.TrackUsage(ctx, userID, &req)
	if err != nil {
		return common.SendBillingError(c, err)
	}

	if !inserted {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"duplicate": true,
		})
	}
	return c.JSON(http.StatusCreated, record)
}

// ListUsage handles GET /v1/billing/usage
func (h *UsageHandlers) ListUsage(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	since := time.Now().UTC().AddDate(0, -1, 0)
	if sinceParam := c.QueryParam("since"); sinceParam != "" {
		parsed, err := time.Parse(time.RFC3339, sinceParam)
		if err != nil {
			return common.SendValidationError(c, "since", "since must be RFC3339")
		}
		since = parsed
	}

	limit, offset := parsePagination(c)
	records, err := h.usageService.ListUsage(ctx, userID, since, limit, offset)
	if err != nil {
		return common.SendServerError(c, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"usage":  records,
		"since":  since,
		"limit":  limit,
		"offset": offset,
	})
}
