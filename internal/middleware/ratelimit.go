package middleware

import (
	"log"
	"net/http"

	"billflow/internal/common"
	"billflow/internal/services"

	"github.com/labstack/echo/v4"
)

// NewRateLimitMiddleware enforces the per-minute request cap from the
// caller's plan. A failed quota lookup lets the request through; rate
// limiting must not take the API down with it.
func NewRateLimitMiddleware(quotaService services.QuotaService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			userID, ok := common.GetUserIDFromContext(ctx)
			if !ok {
				return next(c)
			}

			limited, err := quotaService.CheckRateLimit(ctx, userID)
			if err != nil {
				log.Printf("WARN: rate limit check failed for %s: %v", userID, err)
				return next(c)
			}
			if limited {
				return echo.NewHTTPError(http.StatusTooManyRequests, "Rate limit exceeded")
			}

			return next(c)
		}
	}
}
