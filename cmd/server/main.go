package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rentwheel/service-rental/internal/application"
	"github.com/rentwheel/service-rental/internal/bootstrap"
	"github.com/rentwheel/service-rental/internal/config"
	rentalEvents "github.com/rentwheel/service-rental/internal/events"
	"github.com/rentwheel/service-rental/internal/handler"
	"github.com/rentwheel/service-rental/internal/repository"
	"github.com/rentwheel/service-rental/migrations"
	"github.com/rentwheel/service-rental/pkg/auth"
	"github.com/rentwheel/service-rental/pkg/cache"
	"github.com/rentwheel/service-rental/pkg/database"
	"github.com/rentwheel/service-rental/pkg/health"
	"github.com/rentwheel/service-rental/pkg/logger"
	"github.com/rentwheel/service-rental/pkg/middleware"
	"github.com/rentwheel/service-rental/pkg/obs"
)

const serviceName = "service-rental"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewNamed(cfg.AppEnv, serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting "+serviceName,
		zap.String("port", cfg.Port),
		zap.String("gateway", cfg.GatewayConfig.Provider),
		zap.String("events_broker", cfg.EventsConfig.Broker),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing
	shutdownTracer, err := obs.InitTracer(ctx, serviceName, cfg.AppEnv, cfg.TracingEndpoint)
	if err != nil {
		log.Fatal("failed to init tracer", zap.Error(err))
	}

	// Connect to database
	dbConfig := database.PostgresConfig{
		Host:     cfg.DBConfig.Host,
		Port:     cfg.DBConfig.Port,
		User:     cfg.DBConfig.User,
		Password: cfg.DBConfig.Password,
		DBName:   cfg.DBConfig.DBName,
		SSLMode:  cfg.DBConfig.SSLMode,
	}
	db, err := database.Connect(dbConfig, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	// Run database migrations
	if err := database.RunMigrations(dbConfig.DatabaseURL(), migrations.FS, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(cfg.JWTConfig.Secret, cfg.JWTConfig.AccessTTL)

	// Payment gateway and event publisher
	gateway, err := bootstrap.NewGateway(cfg.GatewayConfig, log)
	if err != nil {
		log.Fatal("failed to create payment gateway", zap.Error(err))
	}
	publisher, closePublisher, err := bootstrap.NewPublisher(cfg, log)
	if err != nil {
		log.Fatal("failed to create event publisher", zap.Error(err))
	}
	defer func() { _ = closePublisher() }()

	// Initialize repositories and services
	bookingRepo := repository.NewGormBookingRepository(db)
	reconciliationService := application.NewReconciliationService(bookingRepo, bookingRepo, gateway, publisher, log)
	bookingService := application.NewBookingService(bookingRepo, log)

	// Webhook consumer, deduplicated through Redis when configured
	var deduper rentalEvents.Deduper
	if cfg.RedisURL != "" {
		redisClient, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer func() { _ = redisClient.Close() }()
		deduper = cache.NewDeduper(redisClient, "rental:webhook:", cfg.WebhookDedupTTL)
	}

	groupID := cfg.KafkaConfig.GroupPrefix + "rental-service"
	webhookConsumer := rentalEvents.NewPaymentWebhookConsumer(
		cfg.KafkaConfig.Brokers,
		groupID,
		reconciliationService,
		deduper,
		log,
	)
	defer func() { _ = webhookConsumer.Close() }()

	go func() {
		log.Info("starting payment webhook consumer")
		if err := webhookConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("payment webhook consumer error", zap.Error(err))
		}
	}()

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TraceContextMiddleware())
	router.Use(middleware.LoggerMiddleware(log))
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())

	// Register health check routes
	health.NewHandler(db, serviceName).RegisterRoutes(router)

	// Register routes
	handler.NewPaymentHandler(reconciliationService).RegisterRoutes(&router.RouterGroup, jwtManager)
	handler.NewBookingHandler(bookingService).RegisterRoutes(&router.RouterGroup, jwtManager)
	handler.NewAdminBookingHandler(bookingService).RegisterRoutes(&router.RouterGroup, jwtManager)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down " + serviceName + "...")

	// Cancel the consumer context
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced shutdown", zap.Error(err))
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Warn("tracer shutdown failed", zap.Error(err))
	}

	log.Info(serviceName + " stopped")
}
