package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cryptoRiskEngine/internal/domain"
	"cryptoRiskEngine/internal/metrics"
)

// Restore loads the persisted ledger state and trade history. It must be
// called before the service accepts orders.
func (s *OrderService) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.repo.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("failed to load ledger state: %w", err)
	}
	if state == nil {
		s.logger.Info(ctx, "No persisted ledger state found, starting fresh")
		s.persistLocked(ctx, nil)
		return nil
	}

	trades, err := s.repo.FindTrades(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to load trade history: %w", err)
	}
	if err := s.ledger.Restore(state, trades); err != nil {
		s.haltForInconsistencyLocked(ctx, err)
		return fmt.Errorf("restored ledger state is inconsistent: %w", err)
	}

	snap := s.ledger.Snapshot()
	metrics.ObserveSnapshot(snap)
	s.logger.Info(ctx, "Ledger state restored", map[string]interface{}{
		"openPositions":  snap.OpenPositionCount(),
		"equity":         snap.Equity.String(),
		"tradesToday":    snap.DailyTradeCount,
		"drawdownHalted": snap.DrawdownHalted,
		"trades":         len(trades),
	})
	s.rollDayLocked(ctx)
	return nil
}

// Run performs periodic maintenance until ctx is cancelled. Every tick checks
// for a new trading day, refreshes position marks from market data and
// reconciles the exchange balance.
func (s *OrderService) Run(ctx context.Context) error {
	s.logger.Info(ctx, "Daily reset scheduler started", map[string]interface{}{"interval": s.resetInterval.String()})
	ticker := time.NewTicker(s.resetInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Daily reset scheduler stopped")
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			s.mu.Lock()
			s.maintainLocked(ctx)
			s.mu.Unlock()
		}
	}
}

func (s *OrderService) maintainLocked(ctx context.Context) {
	s.rollDayLocked(ctx)

	callCtx, cancel := context.WithTimeout(ctx, maintenanceTimeout)
	defer cancel()
	s.markToMarketLocked(callCtx)
	s.reconcileBalanceLocked(callCtx)
}

// markToMarketLocked values open positions at the latest ticker price.
func (s *OrderService) markToMarketLocked(ctx context.Context) {
	if s.market == nil {
		return
	}
	seen := make(map[string]bool)
	for _, v := range s.ledger.Snapshot().Positions {
		symbol := v.Position.Symbol
		if seen[symbol] {
			continue
		}
		seen[symbol] = true
		price, err := s.market.GetTickerPrice(ctx, symbol)
		if err != nil {
			s.logger.Warn(ctx, "Failed to refresh mark price", map[string]interface{}{"symbol": symbol, "error": err.Error()})
			continue
		}
		s.ledger.Mark(symbol, decimal.NewFromFloat(price))
	}
	metrics.ObserveSnapshot(s.ledger.Snapshot())
}

// reconcileBalanceLocked compares the free quote balance at the exchange with
// the cash the ledger expects. The first observation fixes the offset between
// the two, so funds outside the ledger's capital do not count. Drift beyond
// BalanceTolerancePercent of equity latches a consistency halt.
func (s *OrderService) reconcileBalanceLocked(ctx context.Context) {
	if s.balances == nil {
		return
	}
	snap := s.ledger.Snapshot()
	if snap.DrawdownHalted {
		return
	}
	raw, err := s.balances.GetAccountBalance(ctx, s.balanceAsset)
	if err != nil {
		s.logger.Warn(ctx, "Failed to fetch exchange balance", map[string]interface{}{"asset": s.balanceAsset, "error": err.Error()})
		return
	}
	exchange := decimal.NewFromFloat(raw)
	expected := ledgerCash(snap)
	offset := exchange.Sub(expected)
	if s.balanceOffset == nil {
		s.balanceOffset = &offset
		s.logger.Info(ctx, "Exchange balance baseline recorded", map[string]interface{}{
			"asset":    s.balanceAsset,
			"exchange": exchange.String(),
			"ledger":   expected.String(),
		})
		return
	}

	drift := offset.Sub(*s.balanceOffset).Abs()
	limit := snap.Equity.Abs().Mul(s.balanceTolerance).Div(decimal.NewFromInt(100))
	if drift.LessThanOrEqual(limit) {
		return
	}
	err = &domain.LedgerConsistencyError{
		Invariant: "exchange_balance",
		Detail: fmt.Sprintf("%s balance %s differs from ledger cash %s by %s (tolerance %s)",
			s.balanceAsset, exchange.StringFixed(2), expected.StringFixed(2), drift.StringFixed(2), limit.StringFixed(2)),
	}
	s.haltLocked(ctx, "reconciler", "Exchange balance does not match the ledger, trading halted until operator reset", err)
}

// ledgerCash is the quote balance implied by the ledger: long positions tie
// up their entry notional and short positions add their proceeds.
func ledgerCash(snap *domain.LedgerSnapshot) decimal.Decimal {
	cash := snap.Balance
	for _, v := range snap.Positions {
		notional := v.Position.EntryPrice.Mul(v.Position.Quantity)
		if v.Position.Side == domain.Short {
			cash = cash.Add(notional)
		} else {
			cash = cash.Sub(notional)
		}
	}
	return cash
}

// rollDayLocked resets the daily counters once per trading day.
func (s *OrderService) rollDayLocked(ctx context.Context) {
	now := s.now()
	if !s.ledger.NeedsDailyReset(now) {
		return
	}
	s.resetDailyLocked(ctx, now, "scheduler")
}

func (s *OrderService) resetDailyLocked(ctx context.Context, now time.Time, source string) {
	before := s.ledger.Snapshot()
	s.ledger.ResetDaily(now)
	after := s.ledger.Snapshot()
	s.persistLocked(ctx, nil)
	metrics.ObserveSnapshot(after)

	s.logger.Info(ctx, "Trading day reset", map[string]interface{}{
		"source":          source,
		"tradingDay":      after.TradingDay.Format("2006-01-02"),
		"previousTrades":  before.DailyTradeCount,
		"previousPnL":     before.DailyRealizedPnL.String(),
		"dayStartEquity":  after.DayStartEquity.String(),
		"drawdownHalted":  after.DrawdownHalted,
		"dailyHaltLifted": before.DailyLossHalted,
	})
	s.recordAudit(ctx, source, string(domain.EventDailyReset), "daily counters reset", map[string]interface{}{
		"previous_trades": before.DailyTradeCount,
		"previous_pnl":    before.DailyRealizedPnL.String(),
	})
	s.publish(ctx, domain.EventDailyReset, map[string]interface{}{
		"trading_day":      after.TradingDay.Format("2006-01-02"),
		"day_start_equity": after.DayStartEquity.String(),
	})
}

// ResetDaily forces a trading-day reset. The drawdown halt is not lifted.
func (s *OrderService) ResetDaily(ctx context.Context) *domain.LedgerSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetDailyLocked(ctx, s.now(), "operator")
	return s.ledger.Snapshot()
}

// ResetDrawdownHalt lifts a drawdown or consistency halt after operator review.
// The equity peak is rebased to current equity.
func (s *OrderService) ResetDrawdownHalt(ctx context.Context) (*domain.LedgerSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.ledger.Snapshot()
	s.ledger.ResetDrawdownHalt()
	s.consecutiveFailures = 0
	s.balanceOffset = nil
	if err := s.ledger.CheckConsistency(); err != nil {
		s.haltForInconsistencyLocked(ctx, err)
		return s.ledger.Snapshot(), err
	}
	s.persistLocked(ctx, nil)
	after := s.ledger.Snapshot()
	metrics.ObserveSnapshot(after)

	s.logger.Warn(ctx, "Drawdown halt reset by operator", map[string]interface{}{
		"previousReason": before.HaltReason,
		"previousPeak":   before.PeakEquity.String(),
		"newPeak":        after.PeakEquity.String(),
	})
	s.recordAudit(ctx, "operator", string(domain.EventHaltCleared), "drawdown halt reset", map[string]interface{}{
		"previous_reason": before.HaltReason,
		"new_peak":        after.PeakEquity.String(),
	})
	s.publish(ctx, domain.EventHaltCleared, map[string]interface{}{
		"kind":     string(domain.HaltDrawdown),
		"new_peak": after.PeakEquity.String(),
	})
	return after, nil
}

// ReloadRiskConfig swaps the risk limits. Orders already being evaluated
// finish under the old limits.
func (s *OrderService) ReloadRiskConfig(ctx context.Context, cfg domain.RiskConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.RiskConfig()
	s.risk.Store(&cfg)

	s.logger.Info(ctx, "Risk configuration reloaded", map[string]interface{}{
		"maxRiskPerTrade":  cfg.MaxRiskPerTradePercent.String(),
		"maxDailyLoss":     cfg.MaxDailyLossPercent.String(),
		"maxDrawdown":      cfg.MaxDrawdownPercent.String(),
		"maxOpenPositions": cfg.MaxOpenPositions,
		"maxTradesPerDay":  cfg.MaxTradesPerDay,
	})
	s.recordAudit(ctx, "operator", string(domain.EventRiskConfigReset), "risk limits reloaded", map[string]interface{}{
		"old_max_trades_per_day": old.MaxTradesPerDay,
		"new_max_trades_per_day": cfg.MaxTradesPerDay,
		"old_max_open_positions": old.MaxOpenPositions,
		"new_max_open_positions": cfg.MaxOpenPositions,
		"old_max_risk_per_trade": old.MaxRiskPerTradePercent.String(),
		"new_max_risk_per_trade": cfg.MaxRiskPerTradePercent.String(),
		"old_max_daily_loss":     old.MaxDailyLossPercent.String(),
		"new_max_daily_loss":     cfg.MaxDailyLossPercent.String(),
		"old_max_drawdown":       old.MaxDrawdownPercent.String(),
		"new_max_drawdown":       cfg.MaxDrawdownPercent.String(),
	})
	s.publish(ctx, domain.EventRiskConfigReset, map[string]interface{}{
		"max_trades_per_day": cfg.MaxTradesPerDay,
		"max_open_positions": cfg.MaxOpenPositions,
	})
	return nil
}

// AuditTrail returns the most recent audit entries, newest first.
func (s *OrderService) AuditTrail(ctx context.Context, limit int) ([]*domain.AuditEntry, error) {
	if s.audit == nil {
		return nil, nil
	}
	return s.audit.FindAudit(ctx, limit)
}
