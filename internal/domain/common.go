package domain

import (
	"fmt"
	"strings"
)

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// ParseOrderSide accepts "buy"/"sell" in any case.
func ParseOrderSide(s string) (OrderSide, error) {
	switch OrderSide(strings.ToUpper(strings.TrimSpace(s))) {
	case Buy:
		return Buy, nil
	case Sell:
		return Sell, nil
	}
	return "", fmt.Errorf("unknown order side %q", s)
}

// Opposite returns the other side of the book.
func (s OrderSide) Opposite() OrderSide {
	if s == Buy {
		return Sell
	}
	return Buy
}

// PositionSide returns the position direction a fill on this side opens.
func (s OrderSide) PositionSide() PositionSide {
	if s == Buy {
		return Long
	}
	return Short
}

// OrderType represents how an order is priced.
type OrderType string

const (
	Market OrderType = "MARKET"
	Limit  OrderType = "LIMIT"
)

// ParseOrderType accepts "market"/"limit" in any case.
func ParseOrderType(s string) (OrderType, error) {
	switch OrderType(strings.ToUpper(strings.TrimSpace(s))) {
	case Market:
		return Market, nil
	case Limit:
		return Limit, nil
	}
	return "", fmt.Errorf("unknown order type %q", s)
}

// PositionSide is the direction of an open position.
type PositionSide string

const (
	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
)

// OrderStatus is the terminal state reported for a submitted order.
type OrderStatus string

const (
	StatusFilled   OrderStatus = "filled"
	StatusRejected OrderStatus = "rejected"
)

// RejectionReason names the risk rule that blocked an order.
type RejectionReason string

const (
	ReasonDailyTradeLimit RejectionReason = "DAILY_TRADE_LIMIT"
	ReasonMaxPositions    RejectionReason = "MAX_POSITIONS"
	ReasonRiskPerTrade    RejectionReason = "RISK_PER_TRADE_EXCEEDED"
	ReasonDailyLossLimit  RejectionReason = "DAILY_LOSS_LIMIT"
	ReasonMaxDrawdown     RejectionReason = "MAX_DRAWDOWN"
)

// HaltKind identifies a trading halt latched by the risk layer.
type HaltKind string

const (
	HaltNone HaltKind = ""
	// HaltDailyLoss clears at the next trading-day reset.
	HaltDailyLoss HaltKind = "DAILY_LOSS"
	// HaltDrawdown survives day boundaries until an operator reset.
	HaltDrawdown HaltKind = "DRAWDOWN"
	// HaltConsistency is raised when ledger invariants are violated.
	HaltConsistency HaltKind = "CONSISTENCY"
)
