package handlers

import (
	"net/http"

	"billflow/internal/common"
	"billflow/internal/services"

	"github.com/labstack/echo/v4"
)

// QuotaHandlers serves quota snapshots.
type QuotaHandlers struct {
	quotaService services.QuotaService
}

func NewQuotaHandlers(quotaService services.QuotaService) *QuotaHandlers {
	return &QuotaHandlers{quotaService: quotaService}
}

// GetQuota handles GET /v1/billing/quota
func (h *QuotaHandlers) GetQuota(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	info, err := h.quotaService.GetQuota(ctx, userID)
	if err != nil {
		return common.SendBillingError(c, err)
	}

	return c.JSON(http.StatusOK, info)
}

// RefreshQuota handles POST /v1/billing/quota/refresh
func (h *QuotaHandlers) RefreshQuota(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	info, err := h.quotaService.Refresh(ctx, userID)
	if err != nil {
		return common.SendBillingError(c, err)
	}

	return c.JSON(http.StatusOK, info)
}
