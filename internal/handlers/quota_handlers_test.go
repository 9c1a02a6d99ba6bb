package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"billflow/internal/common"
	"billflow/internal/quota"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newQuotaContext(t *testing.T, userID uuid.UUID) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/billing/quota", nil)
	if userID != uuid.Nil {
		ctx := context.WithValue(req.Context(), common.UserIDKey, userID)
		req = req.WithContext(ctx)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestGetQuota_OK(t *testing.T) {
	svc := new(MockQuotaService)
	h := NewQuotaHandlers(svc)
	userID := uuid.New()

	svc.On("GetQuota", mock.Anything, userID).Return(&quota.Info{RateLimitPerMinute: 60}, nil)

	c, rec := newQuotaContext(t, userID)

	require.NoError(t, h.GetQuota(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"rate_limit_per_minute":60`)
}

func TestGetQuota_NoSubscription(t *testing.T) {
	svc := new(MockQuotaService)
	h := NewQuotaHandlers(svc)
	userID := uuid.New()

	svc.On("GetQuota", mock.Anything, userID).Return(nil, common.ErrNotFound)

	c, rec := newQuotaContext(t, userID)

	require.NoError(t, h.GetQuota(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetQuota_Unauthenticated(t *testing.T) {
	h := NewQuotaHandlers(new(MockQuotaService))

	c, rec := newQuotaContext(t, uuid.Nil)

	require.NoError(t, h.GetQuota(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
