package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is an open exposure on one symbol.
type Position struct {
	ID         string          // Ledger-assigned identifier
	Symbol     string          // Trading symbol (e.g., "BTCUSDT")
	Side       PositionSide    // LONG or SHORT
	EntryPrice decimal.Decimal // Volume-weighted entry price
	Quantity   decimal.Decimal // Remaining open quantity, always positive
	OpenedAt   time.Time       // Time of the first fill that opened the position
	UpdatedAt  time.Time       // Time of the last fill that touched the position
}

// Direction is +1 for longs and -1 for shorts.
func (p *Position) Direction() decimal.Decimal {
	if p.Side == Short {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// PnLAt returns the gross P&L of the whole position if marked at price.
func (p *Position) PnLAt(price decimal.Decimal) decimal.Decimal {
	return price.Sub(p.EntryPrice).Mul(p.Quantity).Mul(p.Direction())
}

// Notional returns quantity times entry price.
func (p *Position) Notional() decimal.Decimal {
	return p.Quantity.Mul(p.EntryPrice)
}

// Clone returns an independent copy.
func (p *Position) Clone() *Position {
	c := *p
	return &c
}

// PositionView is a position as seen at a snapshot, with its mark applied.
type PositionView struct {
	Position
	MarkPrice     decimal.Decimal
	UnrealizedPnL decimal.Decimal
}
