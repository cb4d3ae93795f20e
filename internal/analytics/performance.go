// Package analytics derives performance statistics from closed trades.
package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"cryptoRiskEngine/internal/domain"
)

// PerformanceMetrics summarises a closed-trade history.
type PerformanceMetrics struct {
	TotalTrades          int
	WinningTrades        int
	LosingTrades         int
	WinRate              float64 // Fraction of trades with positive net P&L
	TotalProfit          decimal.Decimal
	TotalFees            decimal.Decimal
	GrossWins            decimal.Decimal
	GrossLosses          decimal.Decimal // Reported as a positive amount
	ProfitFactor         float64         // GrossWins / GrossLosses, 0 when there are no losses
	AverageWin           decimal.Decimal
	AverageLoss          decimal.Decimal // Negative or zero
	Expectancy           decimal.Decimal // Mean net P&L per trade
	MaxDrawdown          float64         // Largest peak-to-trough fall of realized balance, as a fraction
	FinalBalance         decimal.Decimal
	ReturnOnInvestment   float64
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageTradeDuration time.Duration
	MonthlyReturns       map[string]decimal.Decimal
	EquityCurve          []EquityPoint
}

// EquityPoint is the realized balance after one closed trade.
type EquityPoint struct {
	Time     time.Time
	Value    decimal.Decimal
	Drawdown float64
}

// MonthlyReturn is the realized P&L of one calendar month.
type MonthlyReturn struct {
	Month  time.Time
	Return decimal.Decimal
}

// AnalyzePerformance computes statistics over trades in closing order.
// The input slice is not modified.
func AnalyzePerformance(trades []*domain.Trade, initialBalance decimal.Decimal) *PerformanceMetrics {
	m := &PerformanceMetrics{
		TotalProfit:    decimal.Zero,
		TotalFees:      decimal.Zero,
		GrossWins:      decimal.Zero,
		GrossLosses:    decimal.Zero,
		AverageWin:     decimal.Zero,
		AverageLoss:    decimal.Zero,
		Expectancy:     decimal.Zero,
		FinalBalance:   initialBalance,
		MonthlyReturns: make(map[string]decimal.Decimal),
		EquityCurve:    make([]EquityPoint, 0, len(trades)),
	}
	if len(trades) == 0 {
		return m
	}

	ordered := make([]*domain.Trade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ClosedAt.Before(ordered[j].ClosedAt)
	})

	balance := initialBalance
	peak := initialBalance
	var wins, losses int
	var totalDuration time.Duration

	for _, t := range ordered {
		m.TotalTrades++
		m.TotalFees = m.TotalFees.Add(t.Fee)
		pnl := t.RealizedPnL

		if t.IsWin() {
			m.WinningTrades++
			m.GrossWins = m.GrossWins.Add(pnl)
			wins++
			losses = 0
		} else {
			m.LosingTrades++
			m.GrossLosses = m.GrossLosses.Add(pnl.Neg())
			losses++
			wins = 0
		}
		m.MaxConsecutiveWins = max(m.MaxConsecutiveWins, wins)
		m.MaxConsecutiveLosses = max(m.MaxConsecutiveLosses, losses)

		balance = balance.Add(pnl)
		m.TotalProfit = m.TotalProfit.Add(pnl)
		month := t.ClosedAt.UTC().Format("2006-01")
		m.MonthlyReturns[month] = m.MonthlyReturns[month].Add(pnl)

		if balance.GreaterThan(peak) {
			peak = balance
		}
		dd := 0.0
		if peak.IsPositive() {
			dd = peak.Sub(balance).Div(peak).InexactFloat64()
		}
		if dd > m.MaxDrawdown {
			m.MaxDrawdown = dd
		}
		m.EquityCurve = append(m.EquityCurve, EquityPoint{Time: t.ClosedAt, Value: balance, Drawdown: dd})

		if !t.OpenedAt.IsZero() && t.ClosedAt.After(t.OpenedAt) {
			totalDuration += t.ClosedAt.Sub(t.OpenedAt)
		}
	}

	n := decimal.NewFromInt(int64(m.TotalTrades))
	m.FinalBalance = balance
	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	m.Expectancy = m.TotalProfit.Div(n)
	m.AverageTradeDuration = totalDuration / time.Duration(m.TotalTrades)
	if m.WinningTrades > 0 {
		m.AverageWin = m.GrossWins.Div(decimal.NewFromInt(int64(m.WinningTrades)))
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = m.GrossLosses.Neg().Div(decimal.NewFromInt(int64(m.LosingTrades)))
	}
	if m.GrossLosses.IsPositive() {
		m.ProfitFactor = m.GrossWins.Div(m.GrossLosses).InexactFloat64()
	}
	if initialBalance.IsPositive() {
		m.ReturnOnInvestment = balance.Sub(initialBalance).Div(initialBalance).InexactFloat64()
	}
	return m
}

// GetMonthlyReturns returns the monthly returns sorted by month.
func (m *PerformanceMetrics) GetMonthlyReturns() []MonthlyReturn {
	returns := make([]MonthlyReturn, 0, len(m.MonthlyReturns))
	for month, pnl := range m.MonthlyReturns {
		date, _ := time.Parse("2006-01", month)
		returns = append(returns, MonthlyReturn{Month: date, Return: pnl})
	}
	sort.Slice(returns, func(i, j int) bool {
		return returns[i].Month.Before(returns[j].Month)
	})
	return returns
}
