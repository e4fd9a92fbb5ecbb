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

	"reservation-platform/resource-service/clients"
	"reservation-platform/resource-service/consumers"
	"reservation-platform/resource-service/handlers"
	"reservation-platform/resource-service/services"
	"reservation-platform/resource-service/store"
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
	serviceName     = "resource-service"
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
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

	resourceStore := store.NewResourceStore(db)
	redisCache := cache.New(rdb)
	resolver := policy.NewRemoteResolver(cfg, redisCache)
	availability := services.NewAvailabilityService(
		resourceStore,
		clients.NewBookingClient(cfg),
		resolver,
		redisCache,
		cfg.Cache.AvailabilityTTL,
	)

	checker := health.New(serviceName)
	checker.AddCheck("postgres", db.PingContext)
	checker.AddCheck("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })

	// Booking changes and tenant deletions arrive on separate streams.
	cacheHandlers := consumers.NewCacheHandlers(redisCache, resourceStore, resolver)
	bookingEvents := events.NewRegistry()
	cacheHandlers.RegisterBookingEvents(bookingEvents)
	deletionEvents := events.NewRegistry()
	cacheHandlers.RegisterDeletionEvents(deletionEvents)

	manager := events.NewManager()
	onState := func(events.State) { checker.SetServing(manager.Running()) }
	for stream, registry := range map[string]*events.Registry{
		cfg.Events.BookingStream:  bookingEvents,
		cfg.Events.DeletionStream: deletionEvents,
	} {
		opts := events.OptionsFor(cfg.Events, stream, serviceName)
		opts.OnStateChange = onState
		manager.Add(events.NewConsumer(rdb, registry, opts))
	}

	if err := manager.Start(ctx, cfg.Events.StopTimeout); err != nil {
		log.Fatalf("Failed to start event consumers: %v", err)
	}

	grpcServer, err := checker.Serve(cfg.Services.ResourceGRPC)
	if err != nil {
		log.Fatalf("Failed to start gRPC server: %v", err)
	}

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
	handlers.SetupRoutes(r, handlers.NewAvailabilityHandler(availability))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Services.ResourceHTTP),
		Handler: r,
	}
	go func() {
		log.Infof("Resource Service HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Resource Service shutting down...")
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
