package domain

import "github.com/shopspring/decimal"

// RiskConfig holds the limits enforced before every execution.
// Percentages are expressed in percent units (1.0 means 1%).
type RiskConfig struct {
	MaxRiskPerTradePercent decimal.Decimal
	MaxDailyLossPercent    decimal.Decimal
	MaxDrawdownPercent     decimal.Decimal
	MaxOpenPositions       int
	MaxTradesPerDay        int
}

// DefaultRiskConfig returns the conservative defaults used when nothing is configured.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		MaxRiskPerTradePercent: decimal.NewFromFloat(1.0),
		MaxDailyLossPercent:    decimal.NewFromFloat(3.0),
		MaxDrawdownPercent:     decimal.NewFromFloat(10.0),
		MaxOpenPositions:       2,
		MaxTradesPerDay:        6,
	}
}

// Validate rejects limits that would make every order fail or none.
func (c RiskConfig) Validate() error {
	hundred := decimal.NewFromInt(100)
	switch {
	case !c.MaxRiskPerTradePercent.IsPositive() || c.MaxRiskPerTradePercent.GreaterThan(hundred):
		return NewValidationError("max_risk_per_trade", "must be in (0, 100]")
	case !c.MaxDailyLossPercent.IsPositive() || c.MaxDailyLossPercent.GreaterThan(hundred):
		return NewValidationError("max_daily_loss", "must be in (0, 100]")
	case !c.MaxDrawdownPercent.IsPositive() || c.MaxDrawdownPercent.GreaterThan(hundred):
		return NewValidationError("max_drawdown", "must be in (0, 100]")
	case c.MaxOpenPositions < 1:
		return NewValidationError("max_open_positions", "must be at least 1")
	case c.MaxTradesPerDay < 1:
		return NewValidationError("max_trades_per_day", "must be at least 1")
	}
	return nil
}

// Decision is the evaluator's verdict for one order.
type Decision struct {
	Approved bool
	Reason   RejectionReason
	Detail   string
	// Halt is set when the rejection must latch a trading halt.
	Halt HaltKind
	// OpeningQuantity is the part of the order that adds exposure.
	OpeningQuantity decimal.Decimal
	// RiskPercent is the computed risk of the opening quantity as % of equity.
	RiskPercent decimal.Decimal
}

// Rejection converts a negative decision into a RiskRejection.
func (d Decision) Rejection() *RiskRejection {
	if d.Approved {
		return nil
	}
	return &RiskRejection{Reason: d.Reason, Detail: d.Detail}
}
