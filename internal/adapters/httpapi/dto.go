package httpapi

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cryptoRiskEngine/internal/analytics"
	"cryptoRiskEngine/internal/domain"
)

type orderRequest struct {
	ClientOrderID string   `json:"client_order_id" validate:"omitempty,max=64"`
	Symbol        string   `json:"symbol" validate:"required,alphanum,min=2,max=30"`
	Side          string   `json:"side" validate:"required,oneof=buy sell BUY SELL"`
	OrderType     string   `json:"order_type" validate:"required,oneof=market limit MARKET LIMIT"`
	Amount        float64  `json:"amount" validate:"required,gt=0"`
	Price         *float64 `json:"price" validate:"omitempty,gt=0"`
	StopLoss      *float64 `json:"stop_loss" validate:"omitempty,gt=0"`
	CurrentPrice  *float64 `json:"current_price" validate:"omitempty,gt=0"`
}

// toDomain converts a validated request body. Prices omitted by the caller stay zero.
func (r *orderRequest) toDomain() (*domain.OrderRequest, error) {
	side, err := domain.ParseOrderSide(r.Side)
	if err != nil {
		return nil, domain.NewValidationError("side", "must be buy or sell")
	}
	typ, err := domain.ParseOrderType(r.OrderType)
	if err != nil {
		return nil, domain.NewValidationError("order_type", "must be market or limit")
	}
	req := &domain.OrderRequest{
		ClientOrderID:  r.ClientOrderID,
		Symbol:         strings.ToUpper(r.Symbol),
		Side:           side,
		Type:           typ,
		Amount:         decimal.NewFromFloat(r.Amount),
		LimitPrice:     optionalDecimal(r.Price),
		StopLoss:       optionalDecimal(r.StopLoss),
		ReferencePrice: optionalDecimal(r.CurrentPrice),
	}
	return req, nil
}

func optionalDecimal(v *float64) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*v)
}

type orderResponse struct {
	OrderID       string         `json:"order_id"`
	ClientOrderID string         `json:"client_order_id,omitempty"`
	Symbol        string         `json:"symbol"`
	Side          string         `json:"side"`
	OrderType     string         `json:"order_type"`
	Amount        float64        `json:"amount"`
	FilledAmount  float64        `json:"filled_amount"`
	AveragePrice  float64        `json:"average_price"`
	Fee           float64        `json:"fee"`
	Status        string         `json:"status"`
	Venue         string         `json:"venue,omitempty"`
	RealizedPnL   float64        `json:"realized_pnl"`
	ClosedTrades  []tradeDTO     `json:"closed_trades,omitempty"`
	ProcessedAt   time.Time      `json:"processed_at"`
	Rejection     *rejectionBody `json:"rejection,omitempty"`
}

type rejectionBody struct {
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

func newOrderResponse(res *domain.OrderResult) orderResponse {
	out := orderResponse{
		OrderID:       res.OrderID,
		ClientOrderID: res.ClientOrderID,
		Symbol:        res.Symbol,
		Side:          strings.ToLower(string(res.Side)),
		OrderType:     strings.ToLower(string(res.Type)),
		Amount:        res.Amount.InexactFloat64(),
		AveragePrice:  res.AveragePrice().InexactFloat64(),
		Status:        string(res.Status),
		ProcessedAt:   res.ProcessedAt,
	}
	if res.Fill != nil {
		out.FilledAmount = res.Fill.Quantity.InexactFloat64()
		out.Fee = res.Fill.Fee.InexactFloat64()
		out.Venue = res.Fill.Venue
	}
	realized := decimal.Zero
	for _, t := range res.ClosedTrades {
		realized = realized.Add(t.RealizedPnL)
		out.ClosedTrades = append(out.ClosedTrades, newTradeDTO(t))
	}
	out.RealizedPnL = realized.InexactFloat64()
	if res.Rejection != nil {
		out.Rejection = &rejectionBody{Reason: string(res.Rejection.Reason), Detail: res.Rejection.Detail}
	}
	return out
}

type summaryResponse struct {
	Status          string    `json:"status"`
	Mode            string    `json:"mode"`
	OpenPositions   int       `json:"open_positions"`
	DailyPnLPercent float64   `json:"daily_pnl_percent"`
	DailyPnL        float64   `json:"daily_pnl"`
	DailyTrades     int       `json:"daily_trades"`
	Equity          float64   `json:"equity"`
	Balance         float64   `json:"balance"`
	UnrealizedPnL   float64   `json:"unrealized_pnl"`
	PeakEquity      float64   `json:"peak_equity"`
	DrawdownPercent float64   `json:"drawdown_percent"`
	Halted          bool      `json:"halted"`
	HaltReason      string    `json:"halt_reason,omitempty"`
	TradingDay      string    `json:"trading_day"`
	Timestamp       time.Time `json:"timestamp"`
}

func newSummary(snap *domain.LedgerSnapshot, paper bool) summaryResponse {
	status := "ok"
	if snap.Halted() {
		status = "halted"
	}
	mode := "live"
	if paper {
		mode = "paper"
	}
	reason := snap.HaltReason
	if reason == "" && snap.DailyLossHalted {
		reason = string(domain.ReasonDailyLossLimit)
	}
	return summaryResponse{
		Status:          status,
		Mode:            mode,
		OpenPositions:   snap.OpenPositionCount(),
		DailyPnLPercent: snap.DailyPnLPercent().InexactFloat64(),
		DailyPnL:        snap.DailyRealizedPnL.InexactFloat64(),
		DailyTrades:     snap.DailyTradeCount,
		Equity:          snap.Equity.InexactFloat64(),
		Balance:         snap.Balance.InexactFloat64(),
		UnrealizedPnL:   snap.UnrealizedPnL.InexactFloat64(),
		PeakEquity:      snap.PeakEquity.InexactFloat64(),
		DrawdownPercent: snap.DrawdownPercent().InexactFloat64(),
		Halted:          snap.Halted(),
		HaltReason:      reason,
		TradingDay:      snap.TradingDay.Format("2006-01-02"),
		Timestamp:       snap.TakenAt,
	}
}

type riskSettings struct {
	MaxOpenPositions       int     `json:"max_open_positions"`
	MaxTradesPerDay        int     `json:"max_trades_per_day"`
	MaxRiskPerTradePercent float64 `json:"max_risk_per_trade_percent"`
	MaxDailyLossPercent    float64 `json:"max_daily_loss_percent"`
	MaxDrawdownPercent     float64 `json:"max_drawdown_percent"`
}

type settingsResponse struct {
	Risk                   riskSettings `json:"risk"`
	PaperTrading           bool         `json:"paper_trading"`
	Venue                  string       `json:"venue"`
	AllowMultiplePositions bool         `json:"allow_multiple_positions"`
}

func newRiskSettings(cfg domain.RiskConfig) riskSettings {
	return riskSettings{
		MaxOpenPositions:       cfg.MaxOpenPositions,
		MaxTradesPerDay:        cfg.MaxTradesPerDay,
		MaxRiskPerTradePercent: cfg.MaxRiskPerTradePercent.InexactFloat64(),
		MaxDailyLossPercent:    cfg.MaxDailyLossPercent.InexactFloat64(),
		MaxDrawdownPercent:     cfg.MaxDrawdownPercent.InexactFloat64(),
	}
}

// riskReloadRequest overrides individual limits on reload. Omitted fields keep the base value.
type riskReloadRequest struct {
	MaxOpenPositions       *int     `json:"max_open_positions" validate:"omitempty,gte=1"`
	MaxTradesPerDay        *int     `json:"max_trades_per_day" validate:"omitempty,gte=1"`
	MaxRiskPerTradePercent *float64 `json:"max_risk_per_trade_percent" validate:"omitempty,gt=0,lte=100"`
	MaxDailyLossPercent    *float64 `json:"max_daily_loss_percent" validate:"omitempty,gt=0,lte=100"`
	MaxDrawdownPercent     *float64 `json:"max_drawdown_percent" validate:"omitempty,gt=0,lte=100"`
}

func (r *riskReloadRequest) apply(base domain.RiskConfig) domain.RiskConfig {
	out := base
	if r.MaxOpenPositions != nil {
		out.MaxOpenPositions = *r.MaxOpenPositions
	}
	if r.MaxTradesPerDay != nil {
		out.MaxTradesPerDay = *r.MaxTradesPerDay
	}
	if r.MaxRiskPerTradePercent != nil {
		out.MaxRiskPerTradePercent = decimal.NewFromFloat(*r.MaxRiskPerTradePercent)
	}
	if r.MaxDailyLossPercent != nil {
		out.MaxDailyLossPercent = decimal.NewFromFloat(*r.MaxDailyLossPercent)
	}
	if r.MaxDrawdownPercent != nil {
		out.MaxDrawdownPercent = decimal.NewFromFloat(*r.MaxDrawdownPercent)
	}
	return out
}

type positionDTO struct {
	ID            string    `json:"id"`
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	EntryPrice    float64   `json:"entry_price"`
	Quantity      float64   `json:"quantity"`
	MarkPrice     float64   `json:"mark_price"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	OpenedAt      time.Time `json:"opened_at"`
}

func newPositionDTO(p domain.PositionView) positionDTO {
	return positionDTO{
		ID:            p.ID,
		Symbol:        p.Symbol,
		Side:          string(p.Side),
		EntryPrice:    p.EntryPrice.InexactFloat64(),
		Quantity:      p.Quantity.InexactFloat64(),
		MarkPrice:     p.MarkPrice.InexactFloat64(),
		UnrealizedPnL: p.UnrealizedPnL.InexactFloat64(),
		OpenedAt:      p.OpenedAt,
	}
}

type tradeDTO struct {
	ID          int64     `json:"id,omitempty"`
	PositionID  string    `json:"position_id"`
	OrderID     string    `json:"order_id"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	EntryPrice  float64   `json:"entry_price"`
	ExitPrice   float64   `json:"exit_price"`
	Quantity    float64   `json:"quantity"`
	Fee         float64   `json:"fee"`
	RealizedPnL float64   `json:"realized_pnl"`
	OpenedAt    time.Time `json:"opened_at"`
	ClosedAt    time.Time `json:"closed_at"`
}

func newTradeDTO(t *domain.Trade) tradeDTO {
	return tradeDTO{
		ID:          t.ID,
		PositionID:  t.PositionID,
		OrderID:     t.OrderID,
		Symbol:      t.Symbol,
		Side:        string(t.Side),
		EntryPrice:  t.EntryPrice.InexactFloat64(),
		ExitPrice:   t.ExitPrice.InexactFloat64(),
		Quantity:    t.Quantity.InexactFloat64(),
		Fee:         t.Fee.InexactFloat64(),
		RealizedPnL: t.RealizedPnL.InexactFloat64(),
		OpenedAt:    t.OpenedAt,
		ClosedAt:    t.ClosedAt,
	}
}

type equityPointDTO struct {
	Time     time.Time `json:"time"`
	Value    float64   `json:"value"`
	Drawdown float64   `json:"drawdown"`
}

type performanceResponse struct {
	TotalTrades          int                `json:"total_trades"`
	WinningTrades        int                `json:"winning_trades"`
	LosingTrades         int                `json:"losing_trades"`
	WinRate              float64            `json:"win_rate"`
	TotalProfit          float64            `json:"total_profit"`
	TotalFees            float64            `json:"total_fees"`
	ProfitFactor         float64            `json:"profit_factor"`
	AverageWin           float64            `json:"average_win"`
	AverageLoss          float64            `json:"average_loss"`
	Expectancy           float64            `json:"expectancy"`
	MaxDrawdown          float64            `json:"max_drawdown"`
	FinalBalance         float64            `json:"final_balance"`
	ReturnOnInvestment   float64            `json:"return_on_investment"`
	MaxConsecutiveWins   int                `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int                `json:"max_consecutive_losses"`
	AverageTradeSeconds  float64            `json:"average_trade_seconds"`
	MonthlyReturns       map[string]float64 `json:"monthly_returns"`
	EquityCurve          []equityPointDTO   `json:"equity_curve"`
}

func newPerformanceResponse(m *analytics.PerformanceMetrics) performanceResponse {
	out := performanceResponse{
		TotalTrades:          m.TotalTrades,
		WinningTrades:        m.WinningTrades,
		LosingTrades:         m.LosingTrades,
		WinRate:              m.WinRate,
		TotalProfit:          m.TotalProfit.InexactFloat64(),
		TotalFees:            m.TotalFees.InexactFloat64(),
		ProfitFactor:         m.ProfitFactor,
		AverageWin:           m.AverageWin.InexactFloat64(),
		AverageLoss:          m.AverageLoss.InexactFloat64(),
		Expectancy:           m.Expectancy.InexactFloat64(),
		MaxDrawdown:          m.MaxDrawdown,
		FinalBalance:         m.FinalBalance.InexactFloat64(),
		ReturnOnInvestment:   m.ReturnOnInvestment,
		MaxConsecutiveWins:   m.MaxConsecutiveWins,
		MaxConsecutiveLosses: m.MaxConsecutiveLosses,
		AverageTradeSeconds:  m.AverageTradeDuration.Seconds(),
		MonthlyReturns:       make(map[string]float64, len(m.MonthlyReturns)),
		EquityCurve:          make([]equityPointDTO, 0, len(m.EquityCurve)),
	}
	for month, ret := range m.MonthlyReturns {
		out.MonthlyReturns[month] = ret.InexactFloat64()
	}
	for _, p := range m.EquityCurve {
		out.EquityCurve = append(out.EquityCurve, equityPointDTO{Time: p.Time, Value: p.Value.InexactFloat64(), Drawdown: p.Drawdown})
	}
	return out
}

type auditDTO struct {
	ID        int64                  `json:"id"`
	CreatedAt time.Time              `json:"created_at"`
	Component string                 `json:"component"`
	EventType string                 `json:"event_type"`
	Message   string                 `json:"message"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

type eventDTO struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}
