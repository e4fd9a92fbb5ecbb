package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"reservation-platform/shared/auth"
	"reservation-platform/shared/config"
	"reservation-platform/shared/logging"
)

// Context keys set by AuthRequired.
const (
	KeyUserID   = "user_id"
	KeyTenantID = "tenant_id"
	KeyUserRole = "user_role"
)

// Headers accepted in place of a bearer token when no JWT secret is set.
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderUserID   = "X-User-ID"
)

func RequestLogger(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqLog := log.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		})
		c.Request = c.Request.WithContext(logging.WithLogger(c.Request.Context(), reqLog))

		c.Next()

		entry := reqLog.WithFields(logrus.Fields{
			"status":     c.Writer.Status(),
			"duration":   time.Since(start),
			"client_ip":  c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		switch {
		case c.Writer.Status() >= 500:
			entry.Error("Request failed")
		case c.Writer.Status() >= 400:
			entry.Warn("Request rejected")
		default:
			entry.Info("Request processed")
		}
	}
}

func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

type client struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter keeps one token bucket per client IP. Buckets idle for
// longer than staleAfter are pruned on the next lookup after pruneEvery.
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*client
	r         rate.Limit
	burst     int
	lastPrune time.Time
}

const (
	pruneEvery = time.Minute
	staleAfter = 3 * time.Minute
)

// NewRateLimiter allows requests per window for each client, bursting up
// to requests.
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		clients:   make(map[string]*client),
		r:         rate.Limit(float64(requests) / window.Seconds()),
		burst:     requests,
		lastPrune: time.Now(),
	}
}

func (rl *RateLimiter) get(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastPrune) > pruneEvery {
		for key, c := range rl.clients {
			if now.Sub(c.seen) > staleAfter {
				delete(rl.clients, key)
			}
		}
		rl.lastPrune = now
	}

	if c, ok := rl.clients[ip]; ok {
		c.seen = now
		return c.lim
	}
	l := rate.NewLimiter(rl.r, rl.burst)
	rl.clients[ip] = &client{lim: l, seen: now}
	return l
}

func (rl *RateLimiter) Allow(ip string) bool {
	return rl.get(ip).Allow()
}

func RateLimit(cfg *config.Config) gin.HandlerFunc {
	rl := NewRateLimiter(cfg.Security.RateLimitRequests, cfg.Security.RateLimitWindow)

	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "Too many requests",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// AuthRequired resolves the calling tenant and user. With a JWT secret
// configured it requires a valid bearer token; without one it trusts the
// X-Tenant-ID and X-User-ID headers set by the upstream gateway.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !auth.Enabled() {
			tenantID := c.GetHeader(HeaderTenantID)
			if tenantID == "" {
				tenantID = c.Query("tenant_id")
			}
			if _, err := uuid.Parse(tenantID); err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{
					"error":   "missing_tenant",
					"message": "X-Tenant-ID header required",
				})
				c.Abort()
				return
			}
			c.Set(KeyTenantID, tenantID)
			c.Set(KeyUserID, c.GetHeader(HeaderUserID))
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "missing_auth_token",
				"message": "Authorization header required",
			})
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := auth.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_token",
				"message": err.Error(),
			})
			c.Abort()
			return
		}
		if _, err := uuid.Parse(claims.TenantID); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_token",
				"message": "tenant_id claim is not a valid id",
			})
			c.Abort()
			return
		}

		c.Set(KeyUserID, claims.UserID)
		c.Set(KeyTenantID, claims.TenantID)
		c.Set(KeyUserRole, claims.Role)

		c.Next()
	}
}

// TenantID returns the tenant set by AuthRequired.
func TenantID(c *gin.Context) uuid.UUID {
	id, _ := uuid.Parse(c.GetString(KeyTenantID))
	return id
}

// UserID returns the caller's user id, or uuid.Nil when the caller did not
// identify as a user.
func UserID(c *gin.Context) uuid.UUID {
	id, err := uuid.Parse(c.GetString(KeyUserID))
	if err != nil {
		return uuid.Nil
	}
	return id
}
