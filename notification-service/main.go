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

	"reservation-platform/notification-service/store"
	"reservation-platform/notification-service/webhooks"
	"reservation-platform/notification-service/workers"
	"reservation-platform/shared/cache"
	"reservation-platform/shared/config"
	"reservation-platform/shared/database"
	"reservation-platform/shared/events"
	"reservation-platform/shared/health"
	"reservation-platform/shared/logging"
	"reservation-platform/shared/middleware"
	"reservation-platform/shared/tracing"
)

const (
	serviceName     = "notification-service"
	shutdownTimeout = 10 * time.Second
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := logging.Setup(cfg, serviceName)

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

	webhookStore := store.NewWebhookStore(db)
	worker := workers.NewWebhookWorker(webhooks.NewDispatcher(webhookStore, cfg.Webhooks), webhookStore)

	checker := health.New(serviceName)
	checker.AddCheck("postgres", db.PingContext)
	checker.AddCheck("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })

	// Start event consumers
	bookingEvents := events.NewRegistry()
	worker.RegisterBookingEvents(bookingEvents)
	deletionEvents := events.NewRegistry()
	worker.RegisterDeletionEvents(deletionEvents)

	manager := events.NewManager()
	onState := func(events.State) { checker.SetServing(manager.Running()) }

	bookingOpts := events.OptionsFor(cfg.Events, cfg.Events.BookingStream, serviceName)
	bookingOpts.OnStateChange = onState
	manager.Add(events.NewConsumer(rdb, bookingEvents, bookingOpts))

	deletionOpts := events.OptionsFor(cfg.Events, cfg.Events.DeletionStream, serviceName)
	deletionOpts.OnStateChange = onState
	manager.Add(events.NewConsumer(rdb, deletionEvents, deletionOpts))

	if err := manager.Start(ctx, cfg.Events.StopTimeout); err != nil {
		log.Fatalf("Failed to start event consumers: %v", err)
	}

	// Start gRPC server
	grpcServer, err := checker.Serve(cfg.Services.NotificationGRPC)
	if err != nil {
		log.Fatalf("Failed to start gRPC server: %v", err)
	}

	// Start HTTP server for health checks
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))
	r.GET("/health", checker.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Services.NotificationHTTP),
		Handler: r,
	}
	go func() {
		log.Infof("Notification Service HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Notification Service shutting down...")
	checker.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown")
	}
	manager.Stop(cfg.Events.StopTimeout)
	grpcServer.GracefulStop()

	if err := shutdownTracing(shutdownCtx); err != nil {
		log.WithError(err).Warn("Tracing shutdown")
	}
}
