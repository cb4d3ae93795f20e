package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"cryptoRiskEngine/internal/domain"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// GET /health
func (s *Server) Health(c *gin.Context) {
	if err := s.engine.Health(c.Request.Context()); err != nil {
		s.logger.Warn(c.Request.Context(), "Health check failed", map[string]interface{}{"error": err.Error()})
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GET /api/dashboard/summary
func (s *Server) Summary(c *gin.Context) {
	c.JSON(http.StatusOK, newSummary(s.engine.Snapshot(), s.engine.PaperTrading()))
}

// GET /api/dashboard/performance
func (s *Server) Performance(c *gin.Context) {
	c.JSON(http.StatusOK, newPerformanceResponse(s.engine.Performance()))
}

// GET /api/settings
func (s *Server) Settings(c *gin.Context) {
	c.JSON(http.StatusOK, settingsResponse{
		Risk:                   newRiskSettings(s.engine.RiskConfig()),
		PaperTrading:           s.engine.PaperTrading(),
		Venue:                  s.engine.Venue(),
		AllowMultiplePositions: s.engine.Snapshot().AllowMultiple,
	})
}

// POST /api/paper/order
func (s *Server) PaperOrder(c *gin.Context) {
	if !s.engine.PaperTrading() {
		c.JSON(http.StatusConflict, gin.H{"error": "paper_trading_disabled", "detail": "engine is running against a live venue, use /api/orders"})
		return
	}
	s.submit(c)
}

// POST /api/orders
func (s *Server) PlaceOrder(c *gin.Context) {
	s.submit(c)
}

func (s *Server) submit(c *gin.Context) {
	var body orderRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := s.validate.Struct(body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "validation_errors": formatValidationError(err)})
		return
	}
	req, err := body.toDomain()
	if err != nil {
		s.writeError(c, err)
		return
	}

	res, err := s.engine.Submit(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if res.Status == domain.StatusRejected {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "risk_rejected",
			"reason": string(res.Rejection.Reason),
			"detail": res.Rejection.Detail,
			"order":  newOrderResponse(res),
		})
		return
	}
	c.JSON(http.StatusOK, newOrderResponse(res))
}

// GET /api/positions?symbol=XYZ
func (s *Server) Positions(c *gin.Context) {
	snap := s.engine.Snapshot()
	views := snap.Positions
	if symbol := strings.ToUpper(c.Query("symbol")); symbol != "" {
		views = snap.PositionsFor(symbol)
	}
	out := make([]positionDTO, 0, len(views))
	for _, p := range views {
		out = append(out, newPositionDTO(p))
	}
	c.JSON(http.StatusOK, gin.H{"positions": out, "count": len(out)})
}

// GET /api/trades?limit=N
func (s *Server) Trades(c *gin.Context) {
	limit, ok := s.limitParam(c)
	if !ok {
		return
	}
	trades := s.engine.Trades(limit)
	out := make([]tradeDTO, 0, len(trades))
	for _, t := range trades {
		out = append(out, newTradeDTO(t))
	}
	c.JSON(http.StatusOK, gin.H{"trades": out, "count": len(out)})
}

// GET /api/risk/size?symbol=XYZ&current_price=P&stop_loss=S
func (s *Server) SuggestSize(c *gin.Context) {
	symbol := strings.ToUpper(c.Query("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing 'symbol' query parameter"})
		return
	}
	price, ok := decimalParam(c, "current_price")
	if !ok {
		return
	}
	stop, ok := decimalParam(c, "stop_loss")
	if !ok {
		return
	}

	qty, ref, err := s.engine.SuggestQuantity(c.Request.Context(), symbol, price, stop)
	if err != nil {
		s.writeError(c, err)
		return
	}
	cfg := s.engine.RiskConfig()
	c.JSON(http.StatusOK, gin.H{
		"symbol":                     symbol,
		"quantity":                   qty.InexactFloat64(),
		"current_price":              ref.InexactFloat64(),
		"stop_loss":                  stop.InexactFloat64(),
		"notional":                   qty.Mul(ref).InexactFloat64(),
		"max_risk_per_trade_percent": cfg.MaxRiskPerTradePercent.InexactFloat64(),
	})
}

// POST /api/admin/reset-drawdown
func (s *Server) ResetDrawdown(c *gin.Context) {
	snap, err := s.engine.ResetDrawdownHalt(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSummary(snap, s.engine.PaperTrading()))
}

// POST /api/admin/reset-daily
func (s *Server) ResetDaily(c *gin.Context) {
	snap := s.engine.ResetDaily(c.Request.Context())
	c.JSON(http.StatusOK, newSummary(snap, s.engine.PaperTrading()))
}

// POST /api/admin/risk/reload
func (s *Server) ReloadRisk(c *gin.Context) {
	var body riskReloadRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if err := s.validate.Struct(body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "validation_errors": formatValidationError(err)})
			return
		}
	}

	base := s.engine.RiskConfig()
	if s.riskLoader != nil {
		loaded, err := s.riskLoader()
		if err != nil {
			s.logger.Warn(c.Request.Context(), "Risk profile reload failed", map[string]interface{}{"error": err.Error()})
			c.JSON(http.StatusBadRequest, gin.H{"error": "risk_profile_invalid", "detail": err.Error()})
			return
		}
		base = loaded
	}

	cfg := body.apply(base)
	if err := s.engine.ReloadRiskConfig(c.Request.Context(), cfg); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"risk": newRiskSettings(s.engine.RiskConfig())})
}

// GET /api/admin/audit?limit=N
func (s *Server) Audit(c *gin.Context) {
	limit, ok := s.limitParam(c)
	if !ok {
		return
	}
	entries, err := s.engine.AuditTrail(c.Request.Context(), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]auditDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditDTO{
			ID:        e.ID,
			CreatedAt: e.CreatedAt,
			Component: e.Component,
			EventType: e.EventType,
			Message:   e.Message,
			Payload:   e.Payload,
		})
	}
	c.JSON(http.StatusOK, gin.H{"entries": out, "count": len(out)})
}

// GET /api/admin/events?limit=N
func (s *Server) RecentEvents(c *gin.Context) {
	if s.events == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event stream not configured"})
		return
	}
	limit, ok := s.limitParam(c)
	if !ok {
		return
	}
	events, err := s.events.Recent(c.Request.Context(), int64(limit))
	if err != nil {
		s.logger.Warn(c.Request.Context(), "Reading event stream failed", map[string]interface{}{"error": err.Error()})
		c.JSON(http.StatusBadGateway, gin.H{"error": "event stream unavailable"})
		return
	}
	out := make([]eventDTO, 0, len(events))
	for _, e := range events {
		out = append(out, eventDTO{Type: string(e.Type), Timestamp: e.Timestamp, Payload: e.Payload})
	}
	c.JSON(http.StatusOK, gin.H{"events": out, "count": len(out)})
}

func (s *Server) limitParam(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > maxListLimit {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and " + strconv.Itoa(maxListLimit)})
		return 0, false
	}
	return limit, true
}

func decimalParam(c *gin.Context, key string) (decimal.Decimal, bool) {
	raw := c.Query(key)
	if raw == "" {
		return decimal.Zero, true
	}
	v, err := decimal.NewFromString(raw)
	if err != nil || v.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid '" + key + "' query parameter"})
		return decimal.Zero, false
	}
	return v, true
}
