package risk

import (
	"github.com/shopspring/decimal"

	"cryptoRiskEngine/internal/domain"
)

// DefaultQuantityPrecision is the number of decimals kept when sizing.
const DefaultQuantityPrecision int32 = 6

// SuggestQuantity returns the largest quantity whose risk stays within the
// per-trade limit, rounded down to precision decimals.
func SuggestQuantity(equity decimal.Decimal, cfg domain.RiskConfig, referencePrice, stopLoss decimal.Decimal, precision int32) (decimal.Decimal, error) {
	if !referencePrice.IsPositive() {
		return decimal.Zero, domain.NewValidationError("current_price", "must be greater than zero")
	}
	perUnit := referencePrice
	if !stopLoss.IsZero() {
		perUnit = referencePrice.Sub(stopLoss).Abs()
		if !perUnit.IsPositive() {
			return decimal.Zero, domain.NewValidationError("stop_loss", "must differ from current_price")
		}
	}
	if !equity.IsPositive() {
		return decimal.Zero, nil
	}
	budget := equity.Mul(cfg.MaxRiskPerTradePercent).Div(hundred)
	return budget.Div(perUnit).RoundFloor(precision), nil
}
