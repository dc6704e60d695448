// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/linkforge/linkforge/internal/analytics"
	"github.com/linkforge/linkforge/internal/auth"
	"github.com/linkforge/linkforge/internal/cache"
	"github.com/linkforge/linkforge/internal/config"
	"github.com/linkforge/linkforge/internal/domain"
	"github.com/linkforge/linkforge/internal/handler"
	"github.com/linkforge/linkforge/internal/notifier"
	postgresRepo "github.com/linkforge/linkforge/internal/repository/postgres"
	"github.com/linkforge/linkforge/internal/resolver"
	"github.com/linkforge/linkforge/internal/service"
	"github.com/linkforge/linkforge/internal/shortener"
	"github.com/linkforge/linkforge/internal/sweeper"
	customLogger "github.com/linkforge/linkforge/pkg/logger"
)

// gormWriter adapts our logger to gorm's logger.Writer interface
type gormWriter struct {
	logger *customLogger.Logger
}

// Printf implements the logger.Writer interface
func (w *gormWriter) Printf(format string, args ...interface{}) {
	w.logger.Info(fmt.Sprintf(format, args...))
}

func main() {
	// Simple health check for Docker - just make HTTP request to existing server
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		resp, err := http.Get("http://localhost:8081/health")
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load environment variables from .env file (development only)
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	appLogger := customLogger.NewLogger()
	appLogger.Info("Starting linkforge")

	cfg, err := config.LoadConfig()
	if err != nil {
		appLogger.Fatal("Failed to load configuration", "error", err)
	}

	db, err := initDatabase(cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize database", "error", err)
	}

	// L2 is optional: without Redis the tiered cache degrades to L1
	// and the resolver falls back to repository reads
	var l2 cache.URLCache
	redisCache, err := cache.NewRedisCache(cfg.CacheURL, cfg.PosCacheTTL, cfg.NegCacheTTL)
	if err != nil {
		appLogger.Warn("Shared cache unavailable, continuing without it", "error", err)
	} else {
		l2 = redisCache
	}

	l1, err := cache.NewMemoryCache(cfg.L1CacheMaxEntries, cfg.L1CacheTTL, cfg.NegCacheTTL)
	if err != nil {
		appLogger.Fatal("Failed to initialize in-process cache", "error", err)
	}

	urlCache := cache.NewTieredCache(l1, l2, appLogger)

	// Repositories
	urlRepo := postgresRepo.NewURLRepository(db)
	userRepo := postgresRepo.NewUserRepository(db)
	settingsRepo := postgresRepo.NewNotificationSettingsRepository(db)
	analyticsRepo := postgresRepo.NewAnalyticsRepository(db)

	// Webhook dispatcher
	dispatcher := notifier.NewDispatcher(settingsRepo, notifier.Config{
		QueueSize:  cfg.WebhookQueueSize,
		Workers:    cfg.WebhookWorkers,
		MaxRetries: cfg.WebhookMaxRetries,
		Timeout:    cfg.WebhookTimeout,
	}, appLogger)

	// Click-event publisher; without a queue the resolver simply skips
	// analytics emission
	var clicks resolver.ClickPublisher
	var publisher *analytics.Publisher
	if cfg.QueueURL != "" {
		publisher, err = analytics.NewPublisher(cfg.QueueURL, cfg.WebhookQueueSize, appLogger)
		if err != nil {
			appLogger.Warn("Analytics queue unavailable, continuing without it", "error", err)
		} else {
			clicks = publisher
		}
	}

	generator := shortener.NewCodeGenerator(cfg.ShortCodeLength, cfg.ReservedWords)

	urlResolver := resolver.New(urlRepo, urlCache, clicks, dispatcher, cfg.WebhookClickSample, appLogger)
	urlService := service.NewURLService(urlRepo, userRepo, analyticsRepo, urlCache, dispatcher, generator, cfg, appLogger)
	authenticator := auth.NewAuthenticator(userRepo, cfg.AuthJWTSecret, appLogger)

	urlHandler := handler.NewURLHandler(urlService, appLogger)
	redirectHandler := handler.NewRedirectHandler(urlResolver, cfg.RedirectStatus, appLogger)

	// Background sweeper: expiry notifications and soft-delete reaping
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	sw := sweeper.New(urlRepo, urlCache, dispatcher, cfg.SweepInterval, cfg.DeletedRetentionDays, appLogger)
	go sw.Run(sweepCtx)

	router := setupRouter(urlHandler, redirectHandler, authenticator, db, redisCache, cfg, appLogger)

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	go func() {
		appLogger.Info("Server starting", "port", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
	}

	// Teardown in reverse construction order: stop producing events,
	// then flush the outbound queues, then close the stores
	stopSweeper()
	dispatcher.Close()
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			appLogger.Error("Error closing analytics publisher", "error", err)
		}
	}
	if err := urlCache.Close(); err != nil {
		appLogger.Error("Error closing caches", "error", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			appLogger.Error("Error closing database pool", "error", err)
		}
	}

	appLogger.Info("Server exited successfully")
	appLogger.Sync()
}

// initDatabase connects to PostgreSQL with retry, tunes the pool and
// migrates the schema
func initDatabase(cfg *config.Config, log *customLogger.Logger) (*gorm.DB, error) {
	writer := &gormWriter{logger: log}

	dbLogger := gormlogger.New(
		writer,
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	// Connect to PostgreSQL with retry logic
	var db *gorm.DB
	var err error

	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{
			Logger:                 dbLogger,
			SkipDefaultTransaction: true,
			PrepareStmt:            true,
			// Create must report unique violations as
			// gorm.ErrDuplicatedKey for the allocator's retry loop
			TranslateError: true,
		})

		if err == nil {
			break
		}

		log.Warn("Failed to connect to database, retrying...", "attempt", i+1, "error", err)
		time.Sleep(5 * time.Second)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := db.AutoMigrate(
		&domain.URLMapping{},
		&domain.User{},
		&domain.NotificationSettings{},
		&domain.AnalyticsAggregate{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	log.Info("Database connection established successfully")
	return db, nil
}

// setupRouter configures the Gin router with middleware and routes
func setupRouter(
	urlHandler *handler.URLHandler,
	redirectHandler *handler.RedirectHandler,
	authenticator *auth.Authenticator,
	db *gorm.DB,
	redisCache *cache.RedisCache,
	cfg *config.Config,
	log *customLogger.Logger,
) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(handler.RequestTimer())
	router.Use(handler.LoggerMiddleware(log))
	router.Use(handler.CORSMiddleware(cfg))
	router.Use(handler.SecurityHeadersMiddleware())
	router.Use(handler.RateLimitMiddleware(cfg.RateLimitPerMinute))

	// Liveness with dependency pings; a degraded cache does not fail
	// the check because redirects degrade to repository reads
	router.GET("/health", healthHandler(db, redisCache))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(handler.TimeoutMiddleware(10 * time.Second))
	v1.Use(handler.Authenticate(authenticator, log))
	{
		v1.POST("/urls", urlHandler.CreateURL)
		v1.GET("/urls", handler.RequireAuth(), urlHandler.ListURLs)
		v1.GET("/urls/check-alias", urlHandler.CheckAlias)
		v1.GET("/urls/:shortCode", urlHandler.GetURLInfo)
		v1.DELETE("/urls/:shortCode", handler.RequireAuth(), urlHandler.DeleteURL)
		v1.PATCH("/urls/:shortCode/expiry", handler.RequireAuth(), urlHandler.UpdateExpiry)
		v1.GET("/urls/:shortCode/stats", handler.RequireAuth(), urlHandler.GetStats)
		v1.POST("/urls/bulk-delete", handler.RequireAuth(), urlHandler.BulkDelete)
		v1.POST("/webhooks/test", handler.RequireAuth(), urlHandler.SendTestWebhook)
	}

	// Short URL redirection (public endpoint)
	router.GET("/:shortCode", redirectHandler.Redirect)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "endpoint not found",
		})
	})

	return router
}

// healthHandler reports liveness and the state of each dependency
func healthHandler(db *gorm.DB, redisCache *cache.RedisCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := map[string]string{}

		checks["database"] = "ok"
		if sqlDB, err := db.DB(); err != nil {
			checks["database"] = err.Error()
		} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
			checks["database"] = err.Error()
		}

		checks["cache"] = "ok"
		if redisCache == nil {
			checks["cache"] = "disabled"
		} else if err := redisCache.Ping(c.Request.Context()); err != nil {
			checks["cache"] = err.Error()
		}

		status := http.StatusOK
		health := "healthy"
		if checks["database"] != "ok" {
			status = http.StatusServiceUnavailable
			health = "degraded"
		}

		c.JSON(status, domain.HealthResponse{
			Status:    health,
			Service:   "linkforge",
			Version:   "1.0.0",
			Timestamp: time.Now().UTC(),
			Checks:    checks,
		})
	}
}
