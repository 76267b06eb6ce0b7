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
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/courtsight/projection-service/internal/api/handlers"
	"github.com/courtsight/projection-service/internal/config"
	"github.com/courtsight/projection-service/internal/jobs"
	"github.com/courtsight/projection-service/internal/services"
	"github.com/courtsight/projection-service/internal/store"
	"github.com/courtsight/projection-service/internal/websocket"
	"github.com/courtsight/projection-service/pkg/database"
	"github.com/courtsight/projection-service/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	structuredLogger := logger.InitLogger(cfg.LogLevel, cfg.IsDevelopment())
	logger.WithService(cfg.ServiceName).WithFields(logrus.Fields{
		"environment":   cfg.Env,
		"port":          cfg.Port,
		"model_version": cfg.DefaultModelVersion,
	}).Info("Starting projection service")

	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewProjectionServiceConnection(cfg.DatabaseURL, cfg.IsDevelopment())
	if err != nil {
		logger.WithService(cfg.ServiceName).Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.WithService(cfg.ServiceName).Fatalf("Failed to parse Redis URL: %v", err)
	}
	redisClient := redis.NewClient(opt)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.WithService(cfg.ServiceName).Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// Stores and core services, explicitly constructed and injected.
	featureStore := store.NewGormFeatureStore(db.DB, structuredLogger)
	modelStore := store.NewGormModelStore(db.DB, structuredLogger)
	projectionLog := store.NewGormProjectionLog(db.DB, structuredLogger)

	cacheService := services.NewCacheService(redisClient, structuredLogger)
	claudeClient := services.NewClaudeClient(cfg, structuredLogger)
	interpreter := services.NewContextInterpreter(claudeClient, structuredLogger)

	engine := services.NewProjectionEngine(featureStore, modelStore, cacheService, interpreter, structuredLogger)
	engine.SetAuditLog(projectionLog)

	// WebSocket hub for streaming freshly composed payloads.
	hub := websocket.NewProjectionHub(structuredLogger)
	go hub.Run()
	engine.SetBroadcaster(hub)

	// Hourly cache stats sweep.
	maintenance := jobs.NewCacheMaintenance(cacheService, structuredLogger)
	if err := maintenance.Start(); err != nil {
		logger.WithService(cfg.ServiceName).Fatalf("Failed to start maintenance job: %v", err)
	}
	defer maintenance.Stop()

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	projectionHandler := handlers.NewProjectionHandler(engine, cfg.DefaultModelVersion, structuredLogger)
	healthHandler := handlers.NewHealthHandler(db, cacheService, claudeClient, structuredLogger)

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/projections/ai", projectionHandler.GetAIProjections)
		apiV1.POST("/projections/ai/strict", projectionHandler.GetAIProjectionsStrict)
		apiV1.GET("/projections/:gameId/baseline", projectionHandler.GetBaselineProjections)
	}

	router.GET("/ws/projections/:gameId", hub.HandleWebSocket)

	router.GET("/health", healthHandler.GetHealth)
	router.HEAD("/health", healthHandler.GetHealth)
	router.GET("/ready", healthHandler.GetReady)
	router.HEAD("/ready", healthHandler.GetReady)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	go func() {
		logger.WithService(cfg.ServiceName).WithField("port", cfg.Port).Info("Projection service started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithService(cfg.ServiceName).Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.WithService(cfg.ServiceName).Info("Shutting down projection service...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithService(cfg.ServiceName).Fatalf("Projection service forced to shutdown: %v", err)
	}

	logger.WithService(cfg.ServiceName).Info("Projection service exited")
}
