package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"cryptoRiskEngine/internal/analytics"
	"cryptoRiskEngine/internal/domain"
	"cryptoRiskEngine/internal/ledger"
	"cryptoRiskEngine/internal/metrics"
	"cryptoRiskEngine/internal/ports"
	"cryptoRiskEngine/internal/risk"
)

const (
	defaultResetCheckInterval = time.Minute
	defaultBalanceAsset       = "USDT"
	maintenanceTimeout        = 10 * time.Second
)

// Dependencies wires an OrderService. Market, Balances, Audit and Events are
// optional.
type Dependencies struct {
	Logger   ports.Logger
	Ledger   *ledger.Ledger
	Executor ports.Executor
	Repo     ports.LedgerRepository
	Audit    ports.AuditRepository
	Market   ports.MarketDataProvider
	Balances ports.BalanceProvider // Exchange account, reconciled against the ledger on every Run tick
	Events   ports.EventPublisher
	Risk     domain.RiskConfig

	PaperTrading            bool
	MaxConsecutiveFailures  int             // Execution failures in a row that halt trading, 0 disables
	BalanceAsset            string          // Quote asset to reconcile, defaults to USDT
	BalanceTolerancePercent decimal.Decimal // Allowed balance drift as a percent of equity
	Now                     func() time.Time
	ResetCheckInterval      time.Duration // How often Run checks for a new trading day
}

// OrderService runs every order through snapshot, risk evaluation, execution
// and ledger update. One order at a time holds the processing lock, so two
// concurrent orders can never both be approved against the same state.
type OrderService struct {
	logger   ports.Logger
	ledger   *ledger.Ledger
	executor ports.Executor
	repo     ports.LedgerRepository
	audit    ports.AuditRepository
	market   ports.MarketDataProvider
	events   ports.EventPublisher

	balances ports.BalanceProvider

	paper            bool
	maxFailures      int
	balanceAsset     string
	balanceTolerance decimal.Decimal
	now              func() time.Time
	resetInterval    time.Duration

	mu   sync.Mutex // Serializes order processing and ledger mutations
	risk atomic.Pointer[domain.RiskConfig]

	// Guarded by mu.
	consecutiveFailures int
	pendingTrades       []*domain.Trade  // Closed trades the store has not accepted yet
	balanceOffset       *decimal.Decimal // Exchange minus ledger cash at the first reconciliation
}

// NewOrderService creates a new application service instance.
func NewOrderService(deps Dependencies) (*OrderService, error) {
	if deps.Logger == nil || deps.Ledger == nil || deps.Executor == nil || deps.Repo == nil {
		return nil, fmt.Errorf("%w: missing required dependencies for OrderService", ports.ErrConfigurationError)
	}
	if err := deps.Risk.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrConfigurationError, err)
	}

	s := &OrderService{
		logger:           deps.Logger,
		ledger:           deps.Ledger,
		executor:         deps.Executor,
		repo:             deps.Repo,
		audit:            deps.Audit,
		market:           deps.Market,
		events:           deps.Events,
		balances:         deps.Balances,
		paper:            deps.PaperTrading,
		maxFailures:      deps.MaxConsecutiveFailures,
		balanceAsset:     deps.BalanceAsset,
		balanceTolerance: deps.BalanceTolerancePercent,
		now:              deps.Now,
		resetInterval:    deps.ResetCheckInterval,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.balanceAsset == "" {
		s.balanceAsset = defaultBalanceAsset
	}
	if s.resetInterval <= 0 {
		s.resetInterval = defaultResetCheckInterval
	}
	cfg := deps.Risk
	s.risk.Store(&cfg)
	return s, nil
}

// PaperTrading reports whether orders are routed to the simulated venue.
func (s *OrderService) PaperTrading() bool {
	return s.paper
}

// Venue returns the name of the execution venue.
func (s *OrderService) Venue() string {
	return s.executor.Name()
}

// RiskConfig returns the limits currently in force.
func (s *OrderService) RiskConfig() domain.RiskConfig {
	return *s.risk.Load()
}

// Snapshot returns a consistent view of the ledger. It does not wait for
// in-flight orders.
func (s *OrderService) Snapshot() *domain.LedgerSnapshot {
	return s.ledger.Snapshot()
}

// Trades returns up to limit recent closed trades, oldest first.
func (s *OrderService) Trades(limit int) []*domain.Trade {
	return s.ledger.Trades(limit)
}

// Performance summarises the closed-trade history.
func (s *OrderService) Performance() *analytics.PerformanceMetrics {
	snap := s.ledger.Snapshot()
	return analytics.AnalyzePerformance(s.ledger.Trades(0), snap.StartingCapital)
}

// SuggestQuantity sizes an order so that it uses the full per-trade risk budget.
func (s *OrderService) SuggestQuantity(ctx context.Context, symbol string, referencePrice, stopLoss decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	price, err := s.resolvePrice(ctx, symbol, referencePrice)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	qty, err := risk.SuggestQuantity(s.ledger.Snapshot().Equity, s.RiskConfig(), price, stopLoss, risk.DefaultQuantityPrecision)
	return qty, price, err
}

// Health checks the storage backend.
func (s *OrderService) Health(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// resolvePrice returns price if set, otherwise asks the market data provider.
func (s *OrderService) resolvePrice(ctx context.Context, symbol string, price decimal.Decimal) (decimal.Decimal, error) {
	if !price.IsZero() {
		return price, nil
	}
	if s.market == nil {
		return decimal.Zero, domain.NewValidationError("current_price", "is required when no market data source is configured")
	}
	last, err := s.market.GetTickerPrice(ctx, symbol)
	if err != nil {
		s.logger.Warn(ctx, "Failed to fetch reference price", map[string]interface{}{"symbol": symbol, "error": err.Error()})
		return decimal.Zero, domain.NewValidationError("current_price", "could not be fetched from market data")
	}
	return decimal.NewFromFloat(last), nil
}

// Submit validates, risk-checks, executes and books one order.
//
// A risk rejection is a normal outcome and is returned as a result with
// StatusRejected and a nil error. Validation problems return a
// *domain.ValidationError, execution problems a *ports.ExecutionFailure and a
// broken ledger a *domain.LedgerConsistencyError.
func (s *OrderService) Submit(ctx context.Context, req *domain.OrderRequest) (*domain.OrderResult, error) {
	op := "Submit"

	price, err := s.resolvePrice(ctx, req.Symbol, req.ReferencePrice)
	if err != nil {
		metrics.OrdersTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	req.ReferencePrice = price
	if err := req.Validate(); err != nil {
		metrics.OrdersTotal.WithLabelValues("invalid").Inc()
		s.logger.Debug(ctx, op+": Order failed validation", map[string]interface{}{"symbol": req.Symbol, "error": err.Error()})
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rollDayLocked(ctx)

	// The reference price only values this evaluation; a fill moves the mark.
	snap := s.ledger.SnapshotWithMark(req.Symbol, req.ReferencePrice)
	cfg := s.RiskConfig()
	decision := risk.Evaluate(req, snap, cfg)
	if !decision.Approved {
		return s.rejectLocked(ctx, req, decision), nil
	}

	if err := ctx.Err(); err != nil {
		failure := ports.ClassifyExecutionError(s.executor.Name(), err)
		s.recordFailureLocked(ctx, req, failure)
		return nil, failure
	}

	start := s.now()
	fill, err := s.executor.Execute(ctx, req)
	metrics.ExecutionLatency.WithLabelValues(s.executor.Name()).Observe(s.now().Sub(start).Seconds())
	if err != nil {
		failure := ports.ClassifyExecutionError(s.executor.Name(), err)
		s.recordFailureLocked(ctx, req, failure)
		return nil, failure
	}

	// A confirmed fill is booked even if the caller has gone away.
	persistCtx := context.WithoutCancel(ctx)
	res, err := s.ledger.ApplyFill(fill)
	if err != nil {
		s.haltForInconsistencyLocked(persistCtx, err)
		return nil, err
	}
	s.consecutiveFailures = 0
	s.persistLocked(persistCtx, res.ClosedTrades)

	result := &domain.OrderResult{
		OrderID:       fill.OrderID,
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Amount:        req.Amount,
		Status:        domain.StatusFilled,
		Fill:          fill,
		ClosedTrades:  res.ClosedTrades,
		ProcessedAt:   s.now(),
	}

	after := s.ledger.Snapshot()
	metrics.OrdersTotal.WithLabelValues("filled").Inc()
	metrics.ObserveSnapshot(after)
	s.logger.Info(ctx, "Order filled", map[string]interface{}{
		"orderID":     fill.OrderID,
		"symbol":      fill.Symbol,
		"side":        fill.Side,
		"price":       fill.Price.String(),
		"quantity":    fill.Quantity.String(),
		"fee":         fill.Fee.String(),
		"realizedPnL": res.RealizedPnL.String(),
		"equity":      after.Equity.String(),
		"tradesToday": after.DailyTradeCount,
	})

	s.publish(persistCtx, domain.EventOrderFilled, map[string]interface{}{
		"order_id":      fill.OrderID,
		"symbol":        fill.Symbol,
		"side":          string(fill.Side),
		"price":         fill.Price.String(),
		"quantity":      fill.Quantity.String(),
		"fee":           fill.Fee.String(),
		"realized_pnl":  res.RealizedPnL.String(),
		"equity":        after.Equity.String(),
		"trades_closed": len(res.ClosedTrades),
	})
	if res.Opened != nil {
		s.publish(persistCtx, domain.EventPositionOpened, positionPayload(res.Opened))
	}
	for _, t := range res.ClosedTrades {
		s.publish(persistCtx, domain.EventPositionClosed, map[string]interface{}{
			"position_id":  t.PositionID,
			"symbol":       t.Symbol,
			"quantity":     t.Quantity.String(),
			"exit_price":   t.ExitPrice.String(),
			"realized_pnl": t.RealizedPnL.String(),
		})
	}
	return result, nil
}

func (s *OrderService) rejectLocked(ctx context.Context, req *domain.OrderRequest, decision domain.Decision) *domain.OrderResult {
	rejection := decision.Rejection()
	metrics.OrdersTotal.WithLabelValues("rejected").Inc()
	metrics.RiskRejections.WithLabelValues(string(rejection.Reason)).Inc()

	if decision.Halt != domain.HaltNone {
		s.ledger.Halt(decision.Halt, rejection.Detail)
		s.persistLocked(ctx, nil)
		s.logger.Warn(ctx, "Trading halted", map[string]interface{}{
			"kind":   decision.Halt,
			"reason": rejection.Reason,
			"detail": rejection.Detail,
		})
		s.recordAudit(ctx, "risk", string(domain.EventHaltTriggered), rejection.Detail, map[string]interface{}{
			"kind":   string(decision.Halt),
			"reason": string(rejection.Reason),
		})
		s.publish(ctx, domain.EventHaltTriggered, map[string]interface{}{
			"kind":   string(decision.Halt),
			"reason": string(rejection.Reason),
			"detail": rejection.Detail,
		})
		metrics.ObserveSnapshot(s.ledger.Snapshot())
	}

	s.logger.Info(ctx, "Order rejected by risk", map[string]interface{}{
		"symbol": req.Symbol,
		"side":   req.Side,
		"amount": req.Amount.String(),
		"reason": rejection.Reason,
		"detail": rejection.Detail,
	})
	s.publish(ctx, domain.EventOrderRejected, map[string]interface{}{
		"symbol": req.Symbol,
		"side":   string(req.Side),
		"amount": req.Amount.String(),
		"reason": string(rejection.Reason),
		"detail": rejection.Detail,
	})

	return &domain.OrderResult{
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Amount:        req.Amount,
		Status:        domain.StatusRejected,
		Rejection:     rejection,
		ProcessedAt:   s.now(),
	}
}

// recordFailureLocked reports a failed execution and trips the circuit
// breaker once MaxConsecutiveFailures venue failures happen in a row.
// Caller cancellations do not count.
func (s *OrderService) recordFailureLocked(ctx context.Context, req *domain.OrderRequest, failure *ports.ExecutionFailure) {
	metrics.OrdersTotal.WithLabelValues("failed").Inc()
	metrics.ExecutionFailures.WithLabelValues(string(failure.Kind)).Inc()
	s.logger.Error(ctx, failure, "Order execution failed", map[string]interface{}{
		"symbol":   req.Symbol,
		"side":     req.Side,
		"amount":   req.Amount.String(),
		"kind":     failure.Kind,
		"attempts": failure.Attempts,
	})
	persistCtx := context.WithoutCancel(ctx)
	s.publish(persistCtx, domain.EventOrderFailed, map[string]interface{}{
		"symbol": req.Symbol,
		"side":   string(req.Side),
		"amount": req.Amount.String(),
		"kind":   string(failure.Kind),
	})

	if failure.Kind == ports.FailureCancelled {
		return
	}
	s.consecutiveFailures++
	if s.maxFailures <= 0 || s.consecutiveFailures < s.maxFailures || s.ledger.Snapshot().DrawdownHalted {
		return
	}
	err := fmt.Errorf("%d consecutive execution failures, last %s: %w", s.consecutiveFailures, failure.Kind, failure)
	s.haltLocked(persistCtx, "executor", "Execution circuit breaker tripped, trading halted until operator reset", err)
}

func (s *OrderService) haltForInconsistencyLocked(ctx context.Context, err error) {
	s.haltLocked(ctx, "ledger", "Ledger consistency violated, trading halted until operator reset", err)
}

// haltLocked latches a consistency halt raised by component.
func (s *OrderService) haltLocked(ctx context.Context, component, msg string, err error) {
	s.ledger.Halt(domain.HaltConsistency, err.Error())
	s.logger.Error(ctx, err, msg)
	s.persistLocked(ctx, nil)
	s.recordAudit(ctx, component, string(domain.EventHaltTriggered), err.Error(), map[string]interface{}{
		"kind": string(domain.HaltConsistency),
	})
	s.publish(ctx, domain.EventHaltTriggered, map[string]interface{}{
		"kind":   string(domain.HaltConsistency),
		"detail": err.Error(),
	})
	metrics.ObserveSnapshot(s.ledger.Snapshot())
}

// persistLocked writes closed trades and the ledger state. Storage failures
// are logged and counted; the in-memory ledger stays authoritative. Trades the
// store rejects are queued and retried on the next call.
func (s *OrderService) persistLocked(ctx context.Context, trades []*domain.Trade) {
	queue := make([]*domain.Trade, 0, len(s.pendingTrades)+len(trades))
	queue = append(append(queue, s.pendingTrades...), trades...)
	s.pendingTrades = nil
	for _, t := range queue {
		id, err := s.repo.CreateTrade(ctx, t)
		if err != nil {
			metrics.PersistErrors.Inc()
			s.logger.Error(ctx, err, "Failed to persist trade", map[string]interface{}{"positionID": t.PositionID, "orderID": t.OrderID})
			s.pendingTrades = append(s.pendingTrades, t)
			continue
		}
		t.ID = id
	}
	if err := s.repo.SaveState(ctx, s.ledger.State()); err != nil {
		metrics.PersistErrors.Inc()
		s.logger.Error(ctx, err, "Failed to persist ledger state")
	}
}

func (s *OrderService) recordAudit(ctx context.Context, component, eventType, message string, payload map[string]interface{}) {
	if s.audit == nil {
		return
	}
	entry := &domain.AuditEntry{
		CreatedAt: s.now(),
		Component: component,
		EventType: eventType,
		Message:   message,
		Payload:   payload,
	}
	if err := s.audit.RecordAudit(ctx, entry); err != nil {
		s.logger.Warn(ctx, "Failed to record audit entry", map[string]interface{}{"eventType": eventType, "error": err.Error()})
	}
}

func (s *OrderService) publish(ctx context.Context, eventType domain.EventType, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	evt := domain.Event{Type: eventType, Timestamp: s.now(), Payload: payload}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.Warn(ctx, "Failed to publish event", map[string]interface{}{"type": eventType, "error": err.Error()})
	}
}

func positionPayload(p *domain.Position) map[string]interface{} {
	return map[string]interface{}{
		"position_id": p.ID,
		"symbol":      p.Symbol,
		"side":        string(p.Side),
		"entry_price": p.EntryPrice.String(),
		"quantity":    p.Quantity.String(),
	}
}

// IsExecutionFailure reports whether err is an execution failure and returns it.
func IsExecutionFailure(err error) (*ports.ExecutionFailure, bool) {
	var f *ports.ExecutionFailure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
