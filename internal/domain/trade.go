package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade records a (partial) close of a position.
type Trade struct {
	ID          int64           // Database identifier, 0 until persisted
	PositionID  string          // Position this trade reduced
	OrderID     string          // Order whose fill closed the quantity
	Symbol      string          // Trading symbol
	Side        PositionSide    // Side of the position that was closed
	EntryPrice  decimal.Decimal // Entry price of the closed quantity
	ExitPrice   decimal.Decimal // Fill price of the closing order
	Quantity    decimal.Decimal // Quantity closed
	GrossPnL    decimal.Decimal // P&L before fees
	Fee         decimal.Decimal // Share of the closing fill's fee
	RealizedPnL decimal.Decimal // GrossPnL minus Fee
	OpenedAt    time.Time       // When the position was opened
	ClosedAt    time.Time       // When the closing fill happened
}

// IsWin reports whether the trade realized a profit net of fees.
func (t *Trade) IsWin() bool {
	return t.RealizedPnL.IsPositive()
}
