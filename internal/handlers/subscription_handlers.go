package handlers

import (
	"net/http"
	"strconv"
	"time"

	"billflow/internal/common"
	"billflow/internal/models"
	"billflow/internal/services"

	"github.com/labstack/echo/v4"
)

// SubscriptionHandlers handles HTTP requests for the subscription lifecycle.
type SubscriptionHandlers struct {
	subscriptionService services.SubscriptionService
}

func NewSubscriptionHandlers(subscriptionService services.SubscriptionService) *SubscriptionHandlers {
	return &SubscriptionHandlers{
		subscriptionService: subscriptionService,
	}
}

// subscriptionResponse decorates the stored subscription with derived fields
// clients would otherwise recompute with their own timezone rules.
func subscriptionResponse(sub *models.Subscription) map[string]interface{} {
	now := time.Now().UTC()
	return map[string]interface{}{
		"subscription":       sub,
		"days_until_renewal": sub.DaysUntilRenewal(now),
		"is_active":          sub.IsActive(now),
		"is_trial":           sub.IsTrial(now),
	}
}

// CreateSubscription handles POST /v1/billing/subscription
func (h *SubscriptionHandlers) CreateSubscription(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	var req services.CreateSubscriptionRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	if req.PlanTier == "" {
		return common.SendValidationError(c, "plan_tier", "plan_tier is required")
	}
	if req.BillingCycle == "" {
		return common.SendValidationError(c, "billing_cycle", "billing_cycle is required")
	}

	subscription, err := h.subscriptionService.Create(ctx, userID, &req)
	if err != nil {
		return common.SendBillingError(c, err)
	}

	return c.JSON(http.StatusCreated, subscriptionResponse(subscription))
}

// GetCurrentSubscription handles GET /v1/billing/subscription
func (h *SubscriptionHandlers) GetCurrentSubscription(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	subscription, err := h.subscriptionService.GetCurrent(ctx, userID)
	if err != nil {
		return common.SendBillingError(c, err)
	}

	return c.JSON(http.StatusOK, subscriptionResponse(subscription))
}

// ListSubscriptions handles GET /v1/billing/subscriptions
func (h *SubscriptionHandlers) ListSubscriptions(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	limit, offset := parsePagination(c)
	subscriptions, err := h.subscriptionService.List(ctx, userID, limit, offset)
	if err != nil {
		return common.SendServerError(c, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"subscriptions": subscriptions,
		"limit":         limit,
		"offset":        offset,
	})
}

// CancelSubscription handles POST /v1/billing/subscription/:id/cancel
func (h *SubscriptionHandlers) CancelSubscription(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	subscriptionID, err := common.ValidateUUID(c.Param("id"), "subscription id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	var req struct {
		AtPeriodEnd bool `json:"at_period_end"`
	}
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}

	subscription, err := h.subscriptionService.Cancel(ctx, userID, subscriptionID, req.AtPeriodEnd)
	if err != nil {
		return common.SendBillingError(c, err)
	}

	return c.JSON(http.StatusOK, subscriptionResponse(subscription))
}

// UpgradeSubscription handles POST /v1/billing/subscription/:id/upgrade
func (h *SubscriptionHandlers) UpgradeSubscription(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	subscriptionID, err := common.ValidateUUID(c.Param("id"), "subscription id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	var req struct {
		PlanTier string `json:"plan_tier"`
	}
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}

	tier, err := models.ValidatePlanTier(req.PlanTier)
	if err != nil {
		return common.SendValidationError(c, "plan_tier", err.Error())
	}

	subscription, err := h.subscriptionService.Upgrade(ctx, userID, subscriptionID, tier)
	if err != nil {
		return common.SendBillingError(c, err)
	}

	return c.JSON(http.StatusOK, subscriptionResponse(subscription))
}

func parsePagination(c echo.Context) (int, int) {
	limit := 50
	offset := 0
	if limitParam := c.QueryParam("limit"); limitParam != "" {
		if l, err := strconv.Atoi(limitParam); err == nil && l > 0 {
			limit = l
		}
	}
	if offsetParam := c.QueryParam("offset"); offsetParam != "" {
		if o, err := strconv.Atoi(offsetParam); err == nil && o >= 0 {
			offset = o
		}
	}
	limit, offset, _ = common.ValidatePaginationParams(limit, offset)
	return limit, offset
}
