package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zawnaing-2024/vmaster/internal/api/handlers"
	"github.com/zawnaing-2024/vmaster/internal/api/middleware"
	"github.com/zawnaing-2024/vmaster/internal/auth"
	"github.com/zawnaing-2024/vmaster/internal/config"
	"github.com/zawnaing-2024/vmaster/internal/core"
)

type Server struct {
	Router  *gin.Engine
	handler *handlers.Handler
	issuer  *auth.Issuer
	auth    *auth.Service
	limiter *middleware.RateLimiter
	metrics prometheus.Gatherer
}

// NewServer builds the gin router. gatherer backs /metrics; nil leaves the
// endpoint out.
func NewServer(cfg *config.Config, deps handlers.Deps, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS())

	server := &Server{
		Router:  router,
		handler: handlers.NewHandler(deps),
		issuer:  deps.Auth.Issuer(),
		auth:    deps.Auth,
		limiter: middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		metrics: gatherer,
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	h := s.handler

	s.Router.GET("/health", h.Health)
	s.Router.GET("/ready", h.Ready)
	if s.metrics != nil {
		s.Router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{})))
	}

	authRoutes := s.Router.Group("/api/v1/auth")
	authRoutes.Use(s.limiter.Middleware())
	{
		authRoutes.POST("/admin/login", h.AdminLogin)
		authRoutes.POST("/tenant/login", h.TenantLogin)
	}

	api := s.Router.Group("/api/v1")
	api.Use(middleware.AuthRequired(s.issuer))
	api.Use(middleware.RequireRole(core.RoleAdmin, core.RoleTenant))
	api.Use(middleware.RequireActive(s.auth))
	adminOnly := middleware.RequireRole(core.RoleAdmin)

	// Tenants
	{
		api.GET("/tenants", adminOnly, h.ListTenants)
		api.POST("/tenants", adminOnly, h.CreateTenant)
		api.GET("/tenants/:id", h.GetTenant)
		api.PUT("/tenants/:id", adminOnly, h.UpdateTenant)
		api.PUT("/tenants/:id/status", adminOnly, h.ChangeTenantStatus)
		api.DELETE("/tenants/:id", adminOnly, h.DeleteTenant)

		api.GET("/tenants/:id/end-users", h.ListEndUsers)
		api.POST("/tenants/:id/end-users", h.CreateEndUser)
		api.GET("/tenants/:id/accounts", h.ListAccounts)
	}

	// End users
	{
		api.GET("/end-users/:id", h.GetEndUser)
		api.PUT("/end-users/:id", h.UpdateEndUser)
		api.PUT("/end-users/:id/status", h.ChangeEndUserStatus)
		api.DELETE("/end-users/:id", h.DeleteEndUser)
	}

	// Backends
	{
		api.GET("/backends", h.ListBackends)
		api.POST("/backends", adminOnly, h.CreateBackend)
		api.GET("/backends/:id", adminOnly, h.GetBackend)
		api.PUT("/backends/:id", adminOnly, h.UpdateBackend)
		api.DELETE("/backends/:id", adminOnly, h.DeleteBackend)
		api.POST("/backends/:id/test", adminOnly, h.TestBackend)
	}

	// Credential pool
	pool := api.Group("/pool", adminOnly)
	{
		pool.POST("/import", h.ImportPool)
		pool.GET("", h.ListPool)
		pool.GET("/stats", h.PoolStats)
		pool.DELETE("/:id", h.DeletePoolCredential)
		pool.POST("/:id/release", h.ReleasePoolCredential)
	}

	// Accounts
	{
		api.POST("/accounts", h.CreateAccount)
		api.POST("/accounts/resume-deletions", adminOnly, h.ResumeDeletions)
		api.GET("/accounts/:id", h.GetAccount)
		api.DELETE("/accounts/:id", h.DeleteAccount)
	}

	// Notifications
	{
		api.GET("/notifications", h.ListNotifications)
		api.GET("/notifications/unread-count", h.UnreadNotifications)
		api.PUT("/notifications/read-all", h.MarkAllNotificationsRead)
		api.PUT("/notifications/:id/read", h.MarkNotificationRead)
	}

	mobile := s.Router.Group("/api/v1/mobile")
	mobile.POST("/login", s.limiter.Middleware(), h.MobileLogin)
	mobileAuth := mobile.Group("")
	mobileAuth.Use(middleware.AuthRequired(s.issuer), middleware.RequireRole(core.RoleEndUser), middleware.RequireActive(s.auth))
	{
		mobileAuth.GET("/accounts", h.MobileAccounts)
		mobileAuth.POST("/accounts/:id/report", h.ReportUsage)
	}
}
