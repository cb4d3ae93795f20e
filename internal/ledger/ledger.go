// Package ledger keeps the authoritative record of positions, P&L and the
// counters the risk evaluator reads.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cryptoRiskEngine/internal/domain"
)

// Config configures a new Ledger.
type Config struct {
	StartingCapital decimal.Decimal
	AllowMultiple   bool
	Location        *time.Location   // Trading-day boundary, defaults to UTC
	Now             func() time.Time // Clock, defaults to time.Now
	NewID           func() string    // Position ID generator, defaults to uuid
}

// FillResult describes the effect of one applied fill.
type FillResult struct {
	Opened       *domain.Position // New position, if any
	Increased    *domain.Position // Existing position that was scaled into, if any
	ClosedTrades []*domain.Trade
	RealizedPnL  decimal.Decimal // Net change of realized P&L, fees included
}

// Ledger is safe for concurrent use. Mutations are serialized by the caller's
// order-processing lock; the internal RWMutex only guards the copy taken by
// Snapshot and the other readers.
type Ledger struct {
	mu sync.RWMutex

	allowMultiple bool
	loc           *time.Location
	now           func() time.Time
	newID         func() string

	startingCapital decimal.Decimal
	realized        decimal.Decimal
	grossRealized   decimal.Decimal
	feesPaid        decimal.Decimal
	peak            decimal.Decimal
	dayStartEquity  decimal.Decimal
	dailyRealized   decimal.Decimal
	dailyTrades     int
	tradingDay      time.Time
	dailyLossHalted bool
	drawdownHalted  bool
	haltReason      string

	positions []*domain.Position // FIFO by open time
	marks     map[string]decimal.Decimal
	trades    []*domain.Trade
}

// New returns an empty ledger funded with the starting capital.
func New(cfg Config) *Ledger {
	l := &Ledger{
		allowMultiple:   cfg.AllowMultiple,
		loc:             cfg.Location,
		now:             cfg.Now,
		newID:           cfg.NewID,
		startingCapital: cfg.StartingCapital,
		realized:        decimal.Zero,
		grossRealized:   decimal.Zero,
		feesPaid:        decimal.Zero,
		peak:            cfg.StartingCapital,
		dayStartEquity:  cfg.StartingCapital,
		dailyRealized:   decimal.Zero,
		marks:           make(map[string]decimal.Decimal),
	}
	if l.loc == nil {
		l.loc = time.UTC
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.newID == nil {
		l.newID = func() string { return uuid.NewString() }
	}
	l.tradingDay = l.dayOf(l.now())
	return l
}

// AllowMultiple reports whether several positions per symbol are permitted.
func (l *Ledger) AllowMultiple() bool {
	return l.allowMultiple
}

func (l *Ledger) dayOf(t time.Time) time.Time {
	t = t.In(l.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, l.loc)
}

// Mark records the latest price observed for symbol and raises the equity
// peak if the new valuation exceeds it.
func (l *Ledger) Mark(symbol string, price decimal.Decimal) {
	if !price.IsPositive() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.marks[symbol] = price
	l.updatePeakLocked()
}

// ApplyFill books a confirmed fill. Opposite-side exposure on the symbol is
// reduced oldest first; any remainder opens a position, or extends the
// existing one when multiple positions per symbol are disabled.
func (l *Ledger) ApplyFill(fill *domain.Fill) (*FillResult, error) {
	if err := validateFill(fill); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	incoming := fill.Side.PositionSide()
	remaining := fill.Quantity
	fee := fill.Fee
	result := &FillResult{}
	gross := decimal.Zero

	kept := l.positions[:0:0]
	for _, p := range l.positions {
		if p.Symbol != fill.Symbol || p.Side == incoming || !remaining.IsPositive() {
			kept = append(kept, p)
			continue
		}

		closeQty := decimal.Min(remaining, p.Quantity)
		pnl := fill.Price.Sub(p.EntryPrice).Mul(closeQty).Mul(p.Direction())
		feeShare := fee.Mul(closeQty).Div(fill.Quantity)
		trade := &domain.Trade{
			PositionID:  p.ID,
			OrderID:     fill.OrderID,
			Symbol:      p.Symbol,
			Side:        p.Side,
			EntryPrice:  p.EntryPrice,
			ExitPrice:   fill.Price,
			Quantity:    closeQty,
			GrossPnL:    pnl,
			Fee:         feeShare,
			RealizedPnL: pnl.Sub(feeShare),
			OpenedAt:    p.OpenedAt,
			ClosedAt:    fill.Timestamp,
		}
		result.ClosedTrades = append(result.ClosedTrades, trade)
		gross = gross.Add(pnl)
		remaining = remaining.Sub(closeQty)

		if closeQty.LessThan(p.Quantity) {
			p.Quantity = p.Quantity.Sub(closeQty)
			p.UpdatedAt = fill.Timestamp
			kept = append(kept, p)
		}
	}
	l.positions = kept

	if remaining.IsPositive() {
		var existing *domain.Position
		if !l.allowMultiple {
			for _, p := range l.positions {
				if p.Symbol == fill.Symbol && p.Side == incoming {
					existing = p
					break
				}
			}
		}
		if existing != nil {
			total := existing.Quantity.Add(remaining)
			existing.EntryPrice = existing.EntryPrice.Mul(existing.Quantity).
				Add(fill.Price.Mul(remaining)).
				Div(total)
			existing.Quantity = total
			existing.UpdatedAt = fill.Timestamp
			result.Increased = existing.Clone()
		} else {
			p := &domain.Position{
				ID:         l.newID(),
				Symbol:     fill.Symbol,
				Side:       incoming,
				EntryPrice: fill.Price,
				Quantity:   remaining,
				OpenedAt:   fill.Timestamp,
				UpdatedAt:  fill.Timestamp,
			}
			l.positions = append(l.positions, p)
			result.Opened = p.Clone()
		}
	}

	result.RealizedPnL = gross.Sub(fee)
	l.grossRealized = l.grossRealized.Add(gross)
	l.feesPaid = l.feesPaid.Add(fee)
	l.realized = l.realized.Add(result.RealizedPnL)
	l.dailyRealized = l.dailyRealized.Add(result.RealizedPnL)
	l.dailyTrades++
	l.marks[fill.Symbol] = fill.Price
	l.trades = append(l.trades, result.ClosedTrades...)
	l.updatePeakLocked()

	if err := l.checkLocked(); err != nil {
		return result, err
	}
	return result, nil
}

func validateFill(fill *domain.Fill) error {
	switch {
	case fill == nil:
		return &domain.LedgerConsistencyError{Invariant: "fill", Detail: "nil fill"}
	case fill.Symbol == "":
		return &domain.LedgerConsistencyError{Invariant: "fill", Detail: "missing symbol"}
	case fill.Side != domain.Buy && fill.Side != domain.Sell:
		return &domain.LedgerConsistencyError{Invariant: "fill", Detail: fmt.Sprintf("unknown side %q", fill.Side)}
	case !fill.Quantity.IsPositive():
		return &domain.LedgerConsistencyError{Invariant: "fill", Detail: "quantity must be positive"}
	case !fill.Price.IsPositive():
		return &domain.LedgerConsistencyError{Invariant: "fill", Detail: "price must be positive"}
	case fill.Fee.IsNegative():
		return &domain.LedgerConsistencyError{Invariant: "fill", Detail: "fee must not be negative"}
	}
	return nil
}

func (l *Ledger) markFor(p *domain.Position) decimal.Decimal {
	if m, ok := l.marks[p.Symbol]; ok {
		return m
	}
	return p.EntryPrice
}

func (l *Ledger) unrealizedLocked() decimal.Decimal {
	total := decimal.Zero
	for _, p := range l.positions {
		total = total.Add(p.PnLAt(l.markFor(p)))
	}
	return total
}

func (l *Ledger) equityLocked() decimal.Decimal {
	return l.startingCapital.Add(l.realized).Add(l.unrealizedLocked())
}

func (l *Ledger) updatePeakLocked() {
	if eq := l.equityLocked(); eq.GreaterThan(l.peak) {
		l.peak = eq
	}
}

// Snapshot returns a consistent copy of the ledger.
func (l *Ledger) Snapshot() *domain.LedgerSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked("", decimal.Zero)
}

// SnapshotWithMark is Snapshot with symbol valued at price. The stored marks
// and the peak equity are left untouched.
func (l *Ledger) SnapshotWithMark(symbol string, price decimal.Decimal) *domain.LedgerSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked(symbol, price)
}

func (l *Ledger) snapshotLocked(symbol string, price decimal.Decimal) *domain.LedgerSnapshot {
	views := make([]domain.PositionView, 0, len(l.positions))
	unrealized := decimal.Zero
	for _, p := range l.positions {
		mark := l.markFor(p)
		if symbol != "" && p.Symbol == symbol && price.IsPositive() {
			mark = price
		}
		pnl := p.PnLAt(mark)
		unrealized = unrealized.Add(pnl)
		views = append(views, domain.PositionView{Position: *p, MarkPrice: mark, UnrealizedPnL: pnl})
	}
	balance := l.startingCapital.Add(l.realized)

	return &domain.LedgerSnapshot{
		Positions:        views,
		StartingCapital:  l.startingCapital,
		RealizedPnL:      l.realized,
		UnrealizedPnL:    unrealized,
		Balance:          balance,
		Equity:           balance.Add(unrealized),
		PeakEquity:       l.peak,
		DayStartEquity:   l.dayStartEquity,
		DailyRealizedPnL: l.dailyRealized,
		DailyTradeCount:  l.dailyTrades,
		TradingDay:       l.tradingDay,
		DailyLossHalted:  l.dailyLossHalted,
		DrawdownHalted:   l.drawdownHalted,
		HaltReason:       l.haltReason,
		AllowMultiple:    l.allowMultiple,
		TakenAt:          l.now(),
	}
}

// Trades returns up to limit of the most recent closed trades, oldest first.
func (l *Ledger) Trades(limit int) []*domain.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()

	src := l.trades
	if limit > 0 && len(src) > limit {
		src = src[len(src)-limit:]
	}
	out := make([]*domain.Trade, len(src))
	for i, t := range src {
		c := *t
		out[i] = &c
	}
	return out
}

// NeedsDailyReset reports whether now falls on a later trading day.
func (l *Ledger) NeedsDailyReset(now time.Time) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.dayOf(now).After(l.tradingDay)
}

// ResetDaily starts a new trading day: the trade counter and daily P&L are
// cleared, the daily-loss halt is lifted and the current equity becomes the
// day's baseline. The drawdown halt and the equity peak are untouched.
func (l *Ledger) ResetDaily(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.dailyTrades = 0
	l.dailyRealized = decimal.Zero
	l.dayStartEquity = l.equityLocked()
	l.dailyLossHalted = false
	l.tradingDay = l.dayOf(now)
}

// Halt latches a trading halt.
func (l *Ledger) Halt(kind domain.HaltKind, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch kind {
	case domain.HaltDailyLoss:
		l.dailyLossHalted = true
	case domain.HaltDrawdown, domain.HaltConsistency:
		l.drawdownHalted = true
		l.haltReason = reason
	}
}

// ResetDrawdownHalt lifts an operator-level halt and rebases the equity peak
// to current equity so the old drawdown does not immediately re-trigger.
func (l *Ledger) ResetDrawdownHalt() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.drawdownHalted = false
	l.haltReason = ""
	l.peak = l.equityLocked()
}

// State returns the durable part of the ledger for persistence.
func (l *Ledger) State() *domain.LedgerState {
	l.mu.RLock()
	defer l.mu.RUnlock()

	positions := make([]*domain.Position, len(l.positions))
	for i, p := range l.positions {
		positions[i] = p.Clone()
	}
	marks := make(map[string]decimal.Decimal, len(l.marks))
	for k, v := range l.marks {
		marks[k] = v
	}
	return &domain.LedgerState{
		StartingCapital:  l.startingCapital,
		RealizedPnL:      l.realized,
		GrossRealizedPnL: l.grossRealized,
		FeesPaid:         l.feesPaid,
		PeakEquity:       l.peak,
		DayStartEquity:   l.dayStartEquity,
		DailyRealizedPnL: l.dailyRealized,
		DailyTradeCount:  l.dailyTrades,
		TradingDay:       l.tradingDay,
		DailyLossHalted:  l.dailyLossHalted,
		DrawdownHalted:   l.drawdownHalted,
		HaltReason:       l.haltReason,
		Positions:        positions,
		Marks:            marks,
		UpdatedAt:        l.now(),
	}
}

// Restore replaces the ledger contents with a persisted state and trade
// history. The restored state must satisfy the ledger invariants.
func (l *Ledger) Restore(state *domain.LedgerState, trades []*domain.Trade) error {
	if state == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.startingCapital = state.StartingCapital
	l.realized = state.RealizedPnL
	l.grossRealized = state.GrossRealizedPnL
	l.feesPaid = state.FeesPaid
	l.peak = state.PeakEquity
	l.dayStartEquity = state.DayStartEquity
	l.dailyRealized = state.DailyRealizedPnL
	l.dailyTrades = state.DailyTradeCount
	l.tradingDay = l.dayOf(state.TradingDay)
	l.dailyLossHalted = state.DailyLossHalted
	l.drawdownHalted = state.DrawdownHalted
	l.haltReason = state.HaltReason

	l.positions = make([]*domain.Position, 0, len(state.Positions))
	for _, p := range state.Positions {
		l.positions = append(l.positions, p.Clone())
	}
	l.marks = make(map[string]decimal.Decimal, len(state.Marks))
	for k, v := range state.Marks {
		l.marks[k] = v
	}
	l.trades = append([]*domain.Trade(nil), trades...)

	return l.checkLocked()
}

// CheckConsistency verifies the ledger invariants.
func (l *Ledger) CheckConsistency() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.checkLocked()
}

func (l *Ledger) checkLocked() error {
	sides := make(map[string]domain.PositionSide)
	counts := make(map[string]int)
	for _, p := range l.positions {
		if !p.Quantity.IsPositive() {
			return &domain.LedgerConsistencyError{Invariant: "position_quantity", Detail: fmt.Sprintf("position %s has quantity %s", p.ID, p.Quantity)}
		}
		if !p.EntryPrice.IsPositive() {
			return &domain.LedgerConsistencyError{Invariant: "position_entry", Detail: fmt.Sprintf("position %s has entry price %s", p.ID, p.EntryPrice)}
		}
		if side, ok := sides[p.Symbol]; ok && side != p.Side {
			return &domain.LedgerConsistencyError{Invariant: "opposing_positions", Detail: fmt.Sprintf("%s is both long and short", p.Symbol)}
		}
		sides[p.Symbol] = p.Side
		counts[p.Symbol]++
		if !l.allowMultiple && counts[p.Symbol] > 1 {
			return &domain.LedgerConsistencyError{Invariant: "single_position", Detail: fmt.Sprintf("%s has %d positions", p.Symbol, counts[p.Symbol])}
		}
	}
	if !l.realized.Equal(l.grossRealized.Sub(l.feesPaid)) {
		return &domain.LedgerConsistencyError{Invariant: "realized_pnl", Detail: fmt.Sprintf("realized %s != gross %s - fees %s", l.realized, l.grossRealized, l.feesPaid)}
	}
	if l.dailyTrades < 0 {
		return &domain.LedgerConsistencyError{Invariant: "daily_trades", Detail: "negative trade count"}
	}
	if eq := l.equityLocked(); l.peak.LessThan(eq) {
		return &domain.LedgerConsistencyError{Invariant: "peak_equity", Detail: fmt.Sprintf("peak %s below equity %s", l.peak, eq)}
	}
	return nil
}
