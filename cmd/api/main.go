package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"properpakistan-api/config"
	_ "properpakistan-api/docs" // Important for Swagger
	"properpakistan-api/internal/delivery/http/middleware"
	v1 "properpakistan-api/internal/delivery/http/v1"
	"properpakistan-api/internal/domain"
	"properpakistan-api/internal/repository/cache"
	"properpakistan-api/internal/repository/postgres"
	"properpakistan-api/internal/usecase"
	"properpakistan-api/pkg/auth"
	"properpakistan-api/pkg/database"
	"properpakistan-api/pkg/logger"
	"properpakistan-api/pkg/metrics"
	pkgredis "properpakistan-api/pkg/redis"
	"properpakistan-api/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// @title           ProperPakistan API
// @version         1.0
// @description     Profile and bookmark backend for ProperPakistan. Authentication is delegated to Supabase.
// @host            localhost:5000
// @BasePath        /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Log.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// 2. Setup Logger
	logger.InitWith(os.Stdout, cfg.LogLevel)
	logger.Log.Info("Starting ProperPakistan API", "port", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Setup Database
	dbPool, err := database.NewPostgresConnection(ctx, cfg.DBUrl)
	if err != nil {
		logger.Log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	// 4. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// 5. Redis (optional)
	redisClient, err := pkgredis.NewClient(ctx, pkgredis.Config{URL: cfg.UpstashRedisURL, Password: cfg.UpstashRedisPassword})
	switch {
	case errors.Is(err, pkgredis.ErrNotConfigured):
		logger.Log.Info("Redis not configured, using in-memory cache and rate limiting")
	case err != nil:
		logger.Log.Warn("Redis unavailable, using in-memory cache and rate limiting", "error", err)
		redisClient = nil
	default:
		defer redisClient.Close()
	}

	// 6. Setup Repositories
	profileRepo := postgres.NewProfileRepository(dbPool)
	bookmarkRepo := postgres.NewBookmarkRepository(dbPool)

	var profileCache domain.ProfileCache
	healthDeps := map[string]usecase.Pinger{"database": dbPool}
	if redisClient != nil {
		profileCache = cache.NewRedisProfileCache(redisClient, cfg.ProfileCacheTTL, m)
		healthDeps["redis"] = usecase.PingFunc(func(ctx context.Context) error {
			return pkgredis.HealthCheck(ctx, redisClient)
		})
	} else {
		profileCache = cache.NewMemoryProfileCache(cfg.ProfileCacheSize, cfg.ProfileCacheTTL, m)
	}

	// 7. Setup UseCases
	validate := validation.New()
	authUC := usecase.NewAuthUsecase(profileRepo, profileCache, validate, m)
	bookmarkUC := usecase.NewBookmarkUsecase(bookmarkRepo)
	healthUC := usecase.NewHealthUsecase(healthDeps)

	// 8. Setup Auth (HS256 project secret, RS256 via JWKS)
	jwksURL := cfg.SupabaseUrl + "/auth/v1/.well-known/jwks.json"
	verifier := auth.NewVerifier(cfg.SupabaseJWTSecret, auth.NewProvider(jwksURL, nil))

	rateLimiter := middleware.NewRateLimiter(redisClient)
	go rateLimiter.Cleanup(ctx, 5*time.Minute)

	// 9. Setup Router
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := v1.NewRouter(v1.RouterDeps{
		AuthUC:         authUC,
		BookmarkUC:     bookmarkUC,
		HealthUC:       healthUC,
		Verifier:       verifier,
		RateLimiter:    rateLimiter,
		Metrics:        m,
		FrontendURL:    cfg.FrontendURL,
		SyncRateLimit:  cfg.RateLimitSyncThreshold,
		SyncRateWindow: time.Duration(cfg.RateLimitWindowSeconds) * time.Second,
	})

	// 10. Start Server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("Listen failed", "error", err)
			stop()
		}
	}()

	// Graceful Shutdown
	<-ctx.Done()
	logger.Log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", "error", err)
	}

	logger.Log.Info("Server exiting")
}
