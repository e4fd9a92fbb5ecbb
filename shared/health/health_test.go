package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func grpcStatus(t *testing.T, h *Checker, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := h.grpc.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.Status
}

func get(h *Checker) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", h.Handler())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	return w
}

func TestCheckerFollowsServingState(t *testing.T) {
	h := New("booking-service")
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, grpcStatus(t, h, "booking-service"))
	assert.Equal(t, http.StatusServiceUnavailable, get(h).Code)

	h.SetServing(true)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, grpcStatus(t, h, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, grpcStatus(t, h, "booking-service"))
	assert.Equal(t, http.StatusOK, get(h).Code)
}

func TestCheckerReportsFailingDependency(t *testing.T) {
	h := New("resource-service")
	h.SetServing(true)
	h.AddCheck("redis", func(context.Context) error { return errors.New("connection refused") })

	w := get(h)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}
