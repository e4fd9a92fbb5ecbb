package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"reservation-platform/booking-service/consumers"
	"reservation-platform/booking-service/handlers"
	"reservation-platform/booking-service/services"
	"reservation-platform/booking-service/store"
	"reservation-platform/shared/auth"
	"reservation-platform/shared/cache"
	"reservation-platform/shared/config"
	"reservation-platform/shared/database"
	"reservation-platform/shared/events"
	"reservation-platform/shared/health"
	"reservation-platform/shared/logging"
	"reservation-platform/shared/middleware"
	"reservation-platform/shared/policy"
	"reservation-platform/shared/tracing"
)

const (
	serviceName     = "booking-service"
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := logging.Setup(cfg, serviceName)
	auth.Initialize(cfg)

	ctx := context.Background()
	shutdownTracing, err := tracing.Init(ctx, cfg, serviceName)
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	// Initialize dependencies
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	rdb, err := cache.NewClient(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize redis: %v", err)
	}
	defer rdb.Close()

	// Initialize services
	bookingStore := store.NewBookingStore(db)
	publisher := events.NewPublisher(rdb, cfg.Events.BookingStream, events.PublisherOptions{
		MaxLen: cfg.Events.MaxLen,
		Buffer: cfg.Events.PublishBuffer,
	})
	resolver := policy.NewRemoteResolver(cfg, cache.New(rdb))
	bookingService := services.NewBookingService(bookingStore, resolver, publisher)

	checker := health.New(serviceName)
	checker.AddCheck("postgres", db.PingContext)
	checker.AddCheck("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })

	// Start event consumers
	registry := events.NewRegistry()
	consumers.NewDeletionHandlers(bookingStore, publisher).Register(registry)

	manager := events.NewManager()
	opts := events.OptionsFor(cfg.Events, cfg.Events.DeletionStream, serviceName)
	opts.OnStateChange = func(events.State) { checker.SetServing(manager.Running()) }
	manager.Add(events.NewConsumer(rdb, registry, opts))

	if err := manager.Start(ctx, cfg.Events.StopTimeout); err != nil {
		log.Fatalf("Failed to start event consumers: %v", err)
	}

	// Start gRPC server
	grpcServer, err := checker.Serve(cfg.Services.BookingGRPC)
	if err != nil {
		log.Fatalf("Failed to start gRPC server: %v", err)
	}

	// Start HTTP server
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.RateLimit(cfg))
	r.Use(middleware.Timeout(requestTimeout))

	r.GET("/health", checker.Handler())
	handlers.SetupRoutes(r, handlers.NewBookingHandler(bookingService))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Services.BookingHTTP),
		Handler: r,
	}
	go func() {
		log.Infof("Booking Service HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Booking Service shutting down...")
	checker.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown")
	}
	manager.Stop(cfg.Events.StopTimeout)
	grpcServer.GracefulStop()

	if err := publisher.Close(shutdownCtx); err != nil {
		log.WithError(err).Warn("Events still queued at shutdown were dropped")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.WithError(err).Warn("Tracing shutdown")
	}
}
