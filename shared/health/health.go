package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const checkTimeout = 2 * time.Second

// CheckFunc probes one dependency, such as a database ping.
type CheckFunc func(ctx context.Context) error

// Checker reports the health of one service process over both gRPC
// (grpc.health.v1) and HTTP.
type Checker struct {
	service string
	grpc    *health.Server

	mu      sync.RWMutex
	serving bool
	checks  map[string]CheckFunc
}

// New returns a checker that starts out NOT_SERVING.
func New(service string) *Checker {
	h := &Checker{
		service: service,
		grpc:    health.NewServer(),
		checks:  make(map[string]CheckFunc),
	}
	h.SetServing(false)
	return h
}

func (h *Checker) AddCheck(name string, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = fn
}

func (h *Checker) SetServing(serving bool) {
	h.mu.Lock()
	h.serving = serving
	h.mu.Unlock()

	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.grpc.SetServingStatus("", status)
	h.grpc.SetServingStatus(h.service, status)
}

func (h *Checker) Serving() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.serving
}

// Register exposes the checker on s.
func (h *Checker) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.grpc)
}

// Serve starts a gRPC server on port that carries the health service.
func (h *Checker) Serve(port int) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %d: %w", port, err)
	}

	s := grpc.NewServer()
	h.Register(s)

	go func() {
		logrus.Infof("%s gRPC server listening on port %d", h.service, port)
		if err := s.Serve(lis); err != nil {
			logrus.WithError(err).Error("gRPC server stopped")
		}
	}()
	return s, nil
}

// Shutdown marks every service NOT_SERVING for the rest of the process.
func (h *Checker) Shutdown() {
	h.mu.Lock()
	h.serving = false
	h.mu.Unlock()
	h.grpc.Shutdown()
}

func (h *Checker) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
		defer cancel()

		h.mu.RLock()
		serving := h.serving
		checks := make(map[string]CheckFunc, len(h.checks))
		for name, fn := range h.checks {
			checks[name] = fn
		}
		h.mu.RUnlock()

		results := gin.H{}
		healthy := serving
		for name, fn := range checks {
			if err := fn(ctx); err != nil {
				results[name] = err.Error()
				healthy = false
				continue
			}
			results[name] = "ok"
		}

		status, code := "healthy", http.StatusOK
		if !healthy {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":    status,
			"service":   h.service,
			"consumers": serving,
			"checks":    results,
		})
	}
}
