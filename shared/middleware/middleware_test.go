package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reservation-platform/shared/auth"
	"reservation-platform/shared/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"tenant_id": TenantID(c).String(),
			"user_id":   UserID(c).String(),
		})
	})
	return r
}

func do(r http.Handler, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequiredWithoutSecretUsesHeaders(t *testing.T) {
	auth.Initialize(&config.Config{})
	r := newRouter(AuthRequired())

	w := do(r, http.Header{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	tenantID, userID := uuid.New(), uuid.New()
	w = do(r, http.Header{HeaderTenantID: {tenantID.String()}, HeaderUserID: {userID.String()}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), tenantID.String())
	assert.Contains(t, w.Body.String(), userID.String())
}

func TestAuthRequiredWithSecret(t *testing.T) {
	auth.Initialize(&config.Config{JWT: config.JWTConfig{Secret: "s3cret"}})
	defer auth.Initialize(&config.Config{})
	r := newRouter(AuthRequired())

	tenantID := uuid.New()
	w := do(r, http.Header{HeaderTenantID: {tenantID.String()}})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "headers are not trusted once tokens are required")

	w = do(r, http.Header{"Authorization": {"Bearer not-a-token"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := auth.GenerateToken(uuid.NewString(), tenantID.String(), "staff", "", time.Hour)
	require.NoError(t, err)
	w = do(r, http.Header{"Authorization": {"Bearer " + token}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), tenantID.String())
}

func TestRateLimit(t *testing.T) {
	cfg := &config.Config{Security: config.SecurityConfig{RateLimitRequests: 2, RateLimitWindow: time.Hour}}
	r := newRouter(RateLimit(cfg))

	hdr := http.Header{}
	assert.NotEqual(t, http.StatusTooManyRequests, do(r, hdr).Code)
	assert.NotEqual(t, http.StatusTooManyRequests, do(r, hdr).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, hdr).Code)
}

func TestRateLimiterIsPerClient(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestRequestLoggerPassesThrough(t *testing.T) {
	l := logrus.New()
	l.SetOutput(io.Discard)
	r := newRouter(RequestLogger(logrus.NewEntry(l)))

	w := do(r, http.Header{})
	assert.Equal(t, http.StatusOK, w.Code)
}
