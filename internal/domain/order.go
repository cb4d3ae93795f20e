package domain

import (
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{2,30}$`)

// OrderRequest is an order as submitted by a caller.
type OrderRequest struct {
	ClientOrderID  string          // Optional caller-supplied id, echoed back
	Symbol         string          // Trading symbol, upper case
	Side           OrderSide       // BUY or SELL
	Type           OrderType       // MARKET or LIMIT
	Amount         decimal.Decimal // Base-asset quantity, > 0
	LimitPrice     decimal.Decimal // Required for LIMIT, zero otherwise
	StopLoss       decimal.Decimal // Optional protective stop, zero when absent
	ReferencePrice decimal.Decimal // Price used for sizing and marking
}

// HasStop reports whether a protective stop was supplied.
func (r *OrderRequest) HasStop() bool {
	return !r.StopLoss.IsZero()
}

// Validate checks the request shape. It returns a *ValidationError on the
// first offending field.
func (r *OrderRequest) Validate() error {
	switch {
	case !symbolPattern.MatchString(r.Symbol):
		return NewValidationError("symbol", "must be 2-30 upper-case alphanumerics")
	case r.Side != Buy && r.Side != Sell:
		return NewValidationError("side", "must be buy or sell")
	case r.Type != Market && r.Type != Limit:
		return NewValidationError("type", "must be market or limit")
	case !r.Amount.IsPositive():
		return NewValidationError("amount", "must be greater than zero")
	case !r.ReferencePrice.IsPositive():
		return NewValidationError("current_price", "must be greater than zero")
	}

	if r.Type == Limit && !r.LimitPrice.IsPositive() {
		return NewValidationError("price", "limit orders require a positive price")
	}
	if r.Type == Market && !r.LimitPrice.IsZero() {
		return NewValidationError("price", "market orders must not carry a price")
	}

	if r.HasStop() {
		if !r.StopLoss.IsPositive() {
			return NewValidationError("stop_loss", "must be greater than zero")
		}
		if r.Side == Buy && !r.StopLoss.LessThan(r.ReferencePrice) {
			return NewValidationError("stop_loss", "must be below current_price for buys")
		}
		if r.Side == Sell && !r.StopLoss.GreaterThan(r.ReferencePrice) {
			return NewValidationError("stop_loss", "must be above current_price for sells")
		}
	}
	return nil
}

// Fill is an execution confirmed by an execution adapter.
type Fill struct {
	OrderID   string
	Symbol    string
	Side      OrderSide
	Price     decimal.Decimal // Average fill price
	Quantity  decimal.Decimal // Executed quantity, may be less than requested
	Fee       decimal.Decimal // Fee charged in quote currency
	Venue     string          // "paper" or "binance"
	Timestamp time.Time
}

// Notional returns price times quantity.
func (f *Fill) Notional() decimal.Decimal {
	return f.Price.Mul(f.Quantity)
}

// OrderResult is returned to callers for every order that passed validation.
type OrderResult struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Side          OrderSide
	Type          OrderType
	Amount        decimal.Decimal // Requested quantity
	Status        OrderStatus
	Fill          *Fill          // Set when Status is StatusFilled
	Rejection     *RiskRejection // Set when Status is StatusRejected
	ClosedTrades  []*Trade       // Trades realized by the fill
	ProcessedAt   time.Time
}

// AveragePrice returns the fill price or zero for unfilled orders.
func (r *OrderResult) AveragePrice() decimal.Decimal {
	if r.Fill == nil {
		return decimal.Zero
	}
	return r.Fill.Price
}
