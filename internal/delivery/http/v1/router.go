package v1

import (
	"time"

	"properpakistan-api/internal/delivery/http/middleware"
	"properpakistan-api/internal/domain"
	"properpakistan-api/internal/usecase"
	"properpakistan-api/pkg/auth"
	"properpakistan-api/pkg/metrics"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type RouterDeps struct {
	AuthUC      domain.AuthUsecase
	BookmarkUC  domain.BookmarkUsecase
	HealthUC    usecase.HealthUsecase
	Verifier    *auth.Verifier
	RateLimiter *middleware.RateLimiter
	Metrics     *metrics.Metrics

	FrontendURL    string
	SyncRateLimit  int
	SyncRateWindow time.Duration
	DisableSwagger bool
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	// Global Middlewares
	r.Use(middleware.CORSMiddleware(deps.FrontendURL)) // CORS must be first!
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Metrics(deps.Metrics))
	r.Use(middleware.SecurityHeadersMiddleware())
	r.Use(middleware.ErrorHandler())
	r.NoRoute(middleware.NotFound())

	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	api := r.Group("/api")
	api.Use(middleware.CSRFMiddleware())

	NewHealthHandler(api, deps.HealthUC)

	if !deps.DisableSwagger {
		api.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	verified := api.Group("")
	verified.Use(middleware.VerifyToken(deps.Verifier, deps.Metrics))

	rateLimiter := deps.RateLimiter
	if rateLimiter == nil {
		rateLimiter = middleware.NewRateLimiter(nil)
	}
	if deps.SyncRateLimit <= 0 {
		deps.SyncRateLimit = 30
	}
	if deps.SyncRateWindow <= 0 {
		deps.SyncRateWindow = time.Minute
	}
	syncGroup := verified.Group("")
	syncGroup.Use(rateLimiter.Middleware(middleware.SyncRateLimitConfig(deps.SyncRateLimit, deps.SyncRateWindow)))

	profiled := verified.Group("")
	profiled.Use(middleware.LoadProfile(deps.AuthUC))

	admin := profiled.Group("")
	admin.Use(middleware.RequireAdmin())

	NewAuthHandler(syncGroup, profiled, admin, deps.AuthUC, deps.BookmarkUC)

	return r
}
