// Package risk decides whether an order may be executed against a ledger snapshot.
package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"cryptoRiskEngine/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Projection describes how filling an order in full would change the book.
type Projection struct {
	// ClosingQuantity offsets existing opposite-side exposure on the symbol.
	ClosingQuantity decimal.Decimal
	// OpeningQuantity adds new exposure.
	OpeningQuantity decimal.Decimal
	// ClosedPositions counts positions the order would close entirely.
	ClosedPositions int
	// ScalesIn is true when the opening quantity merges into an existing
	// same-side position instead of creating a new one.
	ScalesIn bool
}

// OpensNewPosition reports whether the order would occupy a new position slot.
func (p Projection) OpensNewPosition() bool {
	return p.OpeningQuantity.IsPositive() && !p.ScalesIn
}

// Project matches the order against the snapshot's open positions the same way
// the ledger will: opposite-side positions are reduced oldest first, and any
// remainder opens or extends exposure.
func Project(req *domain.OrderRequest, snap *domain.LedgerSnapshot) Projection {
	incoming := req.Side.PositionSide()
	remaining := req.Amount
	proj := Projection{ClosingQuantity: decimal.Zero}
	sameSideOpen := false

	for _, p := range snap.PositionsFor(req.Symbol) {
		if p.Side == incoming {
			sameSideOpen = true
			continue
		}
		if !remaining.IsPositive() {
			continue
		}
		closeQty := decimal.Min(remaining, p.Quantity)
		proj.ClosingQuantity = proj.ClosingQuantity.Add(closeQty)
		remaining = remaining.Sub(closeQty)
		if closeQty.Equal(p.Quantity) {
			proj.ClosedPositions++
		}
	}

	proj.OpeningQuantity = remaining
	proj.ScalesIn = remaining.IsPositive() && sameSideOpen && !snap.AllowMultiple
	return proj
}

// TradeRiskPercent is the capital at risk for qty as a percentage of equity.
// With a stop, the per-unit risk is the distance to the stop; without one the
// whole notional is considered at risk.
func TradeRiskPercent(qty, referencePrice, stopLoss, equity decimal.Decimal) decimal.Decimal {
	if !equity.IsPositive() {
		return decimal.Zero
	}
	perUnit := referencePrice
	if !stopLoss.IsZero() {
		perUnit = referencePrice.Sub(stopLoss).Abs()
	}
	return qty.Mul(perUnit).Div(equity).Mul(hundred)
}

// Evaluate applies the risk rules to a validated order. It is a pure function
// of its inputs and never mutates the snapshot.
//
// Latched halts are reported first. The remaining rules run in a fixed order
// and the first failing rule determines the reason:
// trade count, open positions, per-trade risk, daily loss, drawdown.
func Evaluate(req *domain.OrderRequest, snap *domain.LedgerSnapshot, cfg domain.RiskConfig) domain.Decision {
	if snap.DrawdownHalted {
		detail := "trading halted until operator reset"
		if snap.HaltReason != "" {
			detail = snap.HaltReason
		}
		return reject(domain.ReasonMaxDrawdown, detail, domain.HaltNone)
	}
	if snap.DailyLossHalted {
		return reject(domain.ReasonDailyLossLimit, "trading halted until next trading day", domain.HaltNone)
	}

	if snap.DailyTradeCount >= cfg.MaxTradesPerDay {
		return reject(domain.ReasonDailyTradeLimit,
			fmt.Sprintf("%d trades today, limit %d", snap.DailyTradeCount, cfg.MaxTradesPerDay),
			domain.HaltNone)
	}

	proj := Project(req, snap)

	if proj.OpensNewPosition() {
		after := snap.OpenPositionCount() - proj.ClosedPositions
		if after >= cfg.MaxOpenPositions {
			return reject(domain.ReasonMaxPositions,
				fmt.Sprintf("%d positions open, limit %d", snap.OpenPositionCount(), cfg.MaxOpenPositions),
				domain.HaltNone)
		}
	}

	riskPct := decimal.Zero
	if proj.OpeningQuantity.IsPositive() {
		if !snap.Equity.IsPositive() {
			return reject(domain.ReasonRiskPerTrade, "equity is not positive", domain.HaltNone)
		}
		riskPct = TradeRiskPercent(proj.OpeningQuantity, req.ReferencePrice, req.StopLoss, snap.Equity)
		if riskPct.GreaterThan(cfg.MaxRiskPerTradePercent) {
			return reject(domain.ReasonRiskPerTrade,
				fmt.Sprintf("risk %s%% of equity exceeds %s%%", riskPct.StringFixed(4), cfg.MaxRiskPerTradePercent.String()),
				domain.HaltNone)
		}
	}

	if daily := snap.DailyPnLPercent(); daily.LessThanOrEqual(cfg.MaxDailyLossPercent.Neg()) {
		return reject(domain.ReasonDailyLossLimit,
			fmt.Sprintf("daily P&L %s%% breaches -%s%%", daily.StringFixed(4), cfg.MaxDailyLossPercent.String()),
			domain.HaltDailyLoss)
	}

	if dd := snap.DrawdownPercent(); dd.GreaterThanOrEqual(cfg.MaxDrawdownPercent) {
		return reject(domain.ReasonMaxDrawdown,
			fmt.Sprintf("drawdown %s%% from peak %s reaches %s%%", dd.StringFixed(4), snap.PeakEquity.StringFixed(2), cfg.MaxDrawdownPercent.String()),
			domain.HaltDrawdown)
	}

	return domain.Decision{
		Approved:        true,
		OpeningQuantity: proj.OpeningQuantity,
		RiskPercent:     riskPct,
	}
}

func reject(reason domain.RejectionReason, detail string, halt domain.HaltKind) domain.Decision {
	return domain.Decision{Approved: false, Reason: reason, Detail: detail, Halt: halt}
}
