package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// LedgerSnapshot is an immutable, self-consistent view of account state.
type LedgerSnapshot struct {
	Positions        []PositionView
	StartingCapital  decimal.Decimal
	RealizedPnL      decimal.Decimal // Cumulative, net of fees
	UnrealizedPnL    decimal.Decimal // Sum over open positions at their marks
	Balance          decimal.Decimal // StartingCapital + RealizedPnL
	Equity           decimal.Decimal // Balance + UnrealizedPnL
	PeakEquity       decimal.Decimal
	DayStartEquity   decimal.Decimal
	DailyRealizedPnL decimal.Decimal
	DailyTradeCount  int
	TradingDay       time.Time
	DailyLossHalted  bool
	DrawdownHalted   bool
	HaltReason       string
	AllowMultiple    bool
	TakenAt          time.Time
}

// OpenPositionCount returns the number of open positions.
func (s *LedgerSnapshot) OpenPositionCount() int {
	return len(s.Positions)
}

// PositionsFor returns the open positions for symbol in FIFO order.
func (s *LedgerSnapshot) PositionsFor(symbol string) []PositionView {
	var out []PositionView
	for _, p := range s.Positions {
		if p.Symbol == symbol {
			out = append(out, p)
		}
	}
	return out
}

// DailyPnLPercent is today's realized P&L relative to the equity at day start.
func (s *LedgerSnapshot) DailyPnLPercent() decimal.Decimal {
	if !s.DayStartEquity.IsPositive() {
		return decimal.Zero
	}
	return s.DailyRealizedPnL.Div(s.DayStartEquity).Mul(hundred)
}

// DrawdownPercent is the decline of current equity from its peak.
func (s *LedgerSnapshot) DrawdownPercent() decimal.Decimal {
	if !s.PeakEquity.IsPositive() || s.Equity.GreaterThanOrEqual(s.PeakEquity) {
		return decimal.Zero
	}
	return s.PeakEquity.Sub(s.Equity).Div(s.PeakEquity).Mul(hundred)
}

// Halted reports whether any trading halt is latched.
func (s *LedgerSnapshot) Halted() bool {
	return s.DailyLossHalted || s.DrawdownHalted
}

// LedgerState is the durable part of the ledger, persisted after every change.
type LedgerState struct {
	StartingCapital  decimal.Decimal
	RealizedPnL      decimal.Decimal
	GrossRealizedPnL decimal.Decimal
	FeesPaid         decimal.Decimal
	PeakEquity       decimal.Decimal
	DayStartEquity   decimal.Decimal
	DailyRealizedPnL decimal.Decimal
	DailyTradeCount  int
	TradingDay       time.Time
	DailyLossHalted  bool
	DrawdownHalted   bool
	HaltReason       string
	Positions        []*Position
	Marks            map[string]decimal.Decimal
	UpdatedAt        time.Time
}
