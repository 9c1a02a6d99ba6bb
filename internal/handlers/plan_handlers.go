package handlers

import (
	"net/http"

	"billflow/internal/common"
	"billflow/internal/services"

	"github.com/labstack/echo/v4"
)

// PlanHandlers serves the public pricing catalog.
type PlanHandlers struct {
	planService services.PlanService
}

func NewPlanHandlers(planService services.PlanService) *PlanHandlers {
	return &PlanHandlers{planService: planService}
}

// ListPlans handles GET /v1/billing/plans
func (h *PlanHandlers) ListPlans(c echo.Context) error {
	plans, err := h.planService.ListActive(c.Request().Context())
	if err != nil {
		return common.SendServerError(c, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"plans": plans,
	})
}

// GetPlan handles GET /v1/billing/plans/:id
func (h *PlanHandlers) GetPlan(c echo.Context) error {
	planID, err := common.ValidateUUID(c.Param("id"), "plan id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	plan, err := h.planService.GetByID(c.Request().Context(), planID)
	if err != nil {
		return common.SendBillingError(c, err)
	}

	return c.JSON(http.StatusOK, plan)
}
