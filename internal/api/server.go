// Package api exposes the analytics engine over HTTP: gin router, tenant
// auth, rate limiting, and the websocket push path for live metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"pos-analytics/config"
	"pos-analytics/internal/analytics"
	"pos-analytics/internal/auth"
	"pos-analytics/internal/cache"
	"pos-analytics/internal/database"
	"pos-analytics/internal/eod"
	"pos-analytics/internal/events"
	"pos-analytics/internal/live"
	"pos-analytics/internal/logging"
	"pos-analytics/internal/period"
)

// RateLimiter provides simple in-memory rate limiting per endpoint.
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// Server is the HTTP API server.
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	db          *database.DB
	repo        *database.Repository
	analytics   *analytics.Service
	builder     *eod.Builder
	tracker     *live.Tracker
	cacheSvc    *cache.CacheService
	bus         *events.Bus
	hub         *Hub
	jwt         *auth.JWTManager
	cfg         config.ServerConfig
	authEnabled bool
	rateLimiter *RateLimiter
	log         *logging.Logger
}

// NewServer wires the API server.
func NewServer(
	cfg *config.Config,
	db *database.DB,
	repo *database.Repository,
	analyticsSvc *analytics.Service,
	builder *eod.Builder,
	tracker *live.Tracker,
	cacheSvc *cache.CacheService,
	bus *events.Bus,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.AllowedOrigins
	if len(corsConfig.AllowOrigins) == 1 && corsConfig.AllowOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowOrigins = nil
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Business-ID"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:      router,
		db:          db,
		repo:        repo,
		analytics:   analyticsSvc,
		builder:     builder,
		tracker:     tracker,
		cacheSvc:    cacheSvc,
		bus:         bus,
		jwt:         auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry),
		cfg:         cfg.Server,
		authEnabled: cfg.Auth.Enabled,
		rateLimiter: NewRateLimiter(cfg.Server.RateLimitPerMin, time.Minute),
		log:         logging.WithComponent("api"),
	}
	s.hub = NewHub(bus)
	s.setupRoutes()
	return s
}

// traceMiddleware attaches a trace ID to each request and logs completion
// with the status and latency.
func (s *Server) traceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ctx, reqLog := logging.WithTraceContext(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		reqLog.WithComponent("http").Info("request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if !s.rateLimiter.Allow(path) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   true,
				"message": "rate limit exceeded, slow down",
				"path":    path,
			})
			return
		}
		c.Next()
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	api.Use(s.traceMiddleware())
	api.Use(s.rateLimitMiddleware())
	api.Use(auth.Middleware(s.jwt, s.authEnabled))

	an := api.Group("/analytics")
	{
		an.GET("/dashboard", s.handleDashboard)
		an.GET("/live", s.handleLiveMetrics)
		an.GET("/revenue/trends", s.handleTrends)
		an.GET("/revenue/forecast", s.handleForecast)
		an.GET("/products/abc", s.handleABC)
		an.GET("/products/performance", s.handleProductPerformance)
		an.GET("/customers/rfm", s.handleRFM)
		an.GET("/staff/performance", s.handleStaffPerformance)
		an.GET("/inventory/intelligence", s.handleInventoryIntelligence)
		an.GET("/baseline", s.handleBaseline)

		an.GET("/cache/status", s.handleCacheStatus)
		an.POST("/cache/invalidate", s.handleCacheInvalidate)
		an.POST("/cache/warm", s.handleCacheWarm)
	}

	pos := api.Group("/pos")
	{
		pos.POST("/orders", s.handleCreateOrder)
		pos.POST("/orders/:id/payments", s.handleRecordPayment)
		pos.POST("/orders/:id/refunds", s.handleRecordRefund)
		pos.POST("/shifts", s.handleOpenShift)
		pos.POST("/shifts/:id/close", s.handleCloseShift)
		pos.PUT("/products", s.handleUpsertProduct)
		pos.POST("/customers", s.handleUpsertCustomer)
	}

	eodGroup := api.Group("/eod")
	{
		eodGroup.GET("/reports", s.handleListReports)
		eodGroup.GET("/reports/:date", s.handleGetReport)
		eodGroup.POST("/reports/generate", s.handleGenerateReport)
		eodGroup.POST("/reports/:id/review", s.handleReviewReport)
	}

	s.router.GET("/ws", s.hub.HandleConnection(s.jwt, s.authEnabled))
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.hub.Run(ctx)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info("api server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	dbStatus := "healthy"
	status := http.StatusOK
	if err := s.db.HealthCheck(ctx); err != nil {
		dbStatus = "unreachable"
		status = http.StatusServiceUnavailable
	}

	cacheStatus := "healthy"
	if err := s.cacheSvc.Ping(ctx); err != nil {
		cacheStatus = "degraded"
	}

	c.JSON(status, gin.H{
		"status":   dbStatus,
		"database": dbStatus,
		"cache":    cacheStatus,
		"time":     time.Now().UTC().Format(time.RFC3339),
	})
}

// errorResponse is a helper to send error responses.
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses.
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// respondError maps domain errors onto HTTP statuses: validation 400,
// conflicts 409, missing rows 404, everything else 500.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, period.ErrInvalidPeriod):
		errorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, eod.ErrConflict):
		errorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, database.ErrNotFound):
		errorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, analytics.ErrInsufficientHistory):
		errorResponse(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, cache.ErrUnavailable):
		errorResponse(c, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		errorResponse(c, http.StatusServiceUnavailable, "data store timed out")
	default:
		errorResponse(c, http.StatusInternalServerError, err.Error())
	}
}

// resolvePeriod builds the reporting period from the common query params:
// a named preset, or explicit startDate/endDate in RFC 3339 or date-only
// form. Defaults to today in the business's timezone.
func (s *Server) resolvePeriod(c *gin.Context, businessID string) (period.ReportingPeriod, error) {
	biz, err := s.repo.GetBusiness(c.Request.Context(), businessID)
	if err != nil {
		return period.ReportingPeriod{}, err
	}
	loc := biz.Location()

	startStr := c.Query("startDate")
	endStr := c.Query("endDate")
	if startStr != "" || endStr != "" {
		start, err := parseDate(startStr, loc)
		if err != nil {
			return period.ReportingPeriod{}, period.ValidationError{Field: "startDate", Message: err.Error()}
		}
		end, err := parseDate(endStr, loc)
		if err != nil {
			return period.ReportingPeriod{}, period.ValidationError{Field: "endDate", Message: err.Error()}
		}
		return period.FromRange(businessID, start, end)
	}

	preset := c.DefaultQuery("period", period.PresetToday)
	return period.FromPreset(businessID, preset, time.Now(), loc)
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want RFC 3339 or YYYY-MM-DD", s)
	}
	return t, nil
}

func wantRefresh(c *gin.Context) bool {
	return c.Query("refresh") == "true" || c.Query("refresh") == "1"
}
