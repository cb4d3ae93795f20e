// Package httpapi exposes the order engine over HTTP and websocket.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"cryptoRiskEngine/internal/analytics"
	"cryptoRiskEngine/internal/domain"
	"cryptoRiskEngine/internal/ports"
)

// Engine is the order service surface the HTTP layer drives.
type Engine interface {
	Submit(ctx context.Context, req *domain.OrderRequest) (*domain.OrderResult, error)
	PaperTrading() bool
	Venue() string
	RiskConfig() domain.RiskConfig
	Snapshot() *domain.LedgerSnapshot
	Trades(limit int) []*domain.Trade
	Performance() *analytics.PerformanceMetrics
	SuggestQuantity(ctx context.Context, symbol string, referencePrice, stopLoss decimal.Decimal) (decimal.Decimal, decimal.Decimal, error)
	Health(ctx context.Context) error
	ResetDaily(ctx context.Context) *domain.LedgerSnapshot
	ResetDrawdownHalt(ctx context.Context) (*domain.LedgerSnapshot, error)
	ReloadRiskConfig(ctx context.Context, cfg domain.RiskConfig) error
	AuditTrail(ctx context.Context, limit int) ([]*domain.AuditEntry, error)
}

// EventSource lists recently published engine events.
type EventSource interface {
	Recent(ctx context.Context, count int64) ([]domain.Event, error)
}

// Config configures the HTTP server.
type Config struct {
	Engine Engine
	Logger ports.Logger
	Hub    *Hub // Optional websocket hub; /ws is not mounted without it

	APIKey     string // Expected X-API-Key; empty accepts any non-empty key
	AdminToken string // Expected X-Admin-Token; empty disables admin routes

	// RiskLoader re-reads the risk profile on reload. When nil the current
	// limits are the base for a reload request.
	RiskLoader func() (domain.RiskConfig, error)
	Events     EventSource // Optional, backs /api/admin/events

	MetricsHandler http.Handler // Defaults to the prometheus default gatherer

	RateLimit       int           // Requests per window per client on dashboard routes, 0 disables
	RateLimitWindow time.Duration // Defaults to one minute
}

// Server holds the gin router and its dependencies.
type Server struct {
	engine     Engine
	logger     ports.Logger
	hub        *Hub
	validate   *validator.Validate
	apiKey     string
	adminToken string
	riskLoader func() (domain.RiskConfig, error)
	events     EventSource
	router     *gin.Engine
}

// NewServer builds the router.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("%w: engine is required for HTTP server", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for HTTP server", ports.ErrConfigurationError)
	}

	s := &Server{
		engine:     cfg.Engine,
		logger:     cfg.Logger,
		hub:        cfg.Hub,
		validate:   validator.New(),
		apiKey:     cfg.APIKey,
		adminToken: cfg.AdminToken,
		riskLoader: cfg.RiskLoader,
		events:     cfg.Events,
	}

	metricsHandler := cfg.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())
	s.registerRoutes(router, metricsHandler, newRateLimiter(cfg.RateLimit, cfg.RateLimitWindow))
	s.router = router
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes(router *gin.Engine, metricsHandler http.Handler, limiter *rateLimiter) {
	router.GET("/health", s.Health)
	router.GET("/metrics", gin.WrapH(metricsHandler))
	if s.hub != nil {
		router.GET("/ws", s.hub.Serve)
	}

	api := router.Group("/api")
	api.GET("/health", s.Health)

	dashboard := api.Group("/dashboard", limiter.middleware())
	{
		dashboard.GET("/summary", s.Summary)
		dashboard.GET("/performance", s.Performance)
	}

	authed := api.Group("", s.requireAPIKey())
	{
		authed.GET("/settings", s.Settings)
		authed.POST("/paper/order", s.PaperOrder)
		authed.POST("/orders", s.PlaceOrder)
		authed.GET("/positions", s.Positions)
		authed.GET("/trades", s.Trades)
		authed.GET("/risk/size", s.SuggestSize)
	}

	if s.adminToken != "" {
		admin := api.Group("/admin", s.requireAdminToken())
		{
			admin.POST("/reset-drawdown", s.ResetDrawdown)
			admin.POST("/reset-daily", s.ResetDaily)
			admin.POST("/risk/reload", s.ReloadRisk)
			admin.GET("/audit", s.Audit)
			admin.GET("/events", s.RecentEvents)
		}
	}
}
