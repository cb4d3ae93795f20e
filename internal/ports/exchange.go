package ports

import (
	"context"
	"time"

	"cryptoRiskEngine/internal/domain"
)

// OrderResponse represents the essential details returned after placing an order.
type OrderResponse struct {
	OrderID       int64     // Exchange's order ID
	Symbol        string    // Symbol for the order
	ClientOrderID string    // User-defined order ID
	Price         float64   // Limit price (0 for market orders)
	AvgPrice      float64   // Average filled price
	OrigQuantity  float64   // Original quantity requested
	ExecutedQty   float64   // Quantity filled
	Status        string    // Order status (e.g., NEW, FILLED, EXPIRED)
	TimeInForce   string    // Time in force (e.g., GTC, IOC)
	Type          string    // Order type (MARKET, LIMIT)
	Side          string    // Order side (BUY, SELL)
	Timestamp     time.Time // Time the order response was generated
}

// MarketDataProvider supplies reference prices when a caller omits one.
type MarketDataProvider interface {
	// GetTickerPrice retrieves the last traded price for a symbol.
	GetTickerPrice(ctx context.Context, symbol string) (float64, error)
}

// BalanceProvider reports account balances held at the exchange.
type BalanceProvider interface {
	// GetAccountBalance retrieves the available balance for an asset (e.g., "USDT").
	GetAccountBalance(ctx context.Context, asset string) (float64, error)
}

// ExchangeClient is the subset of exchange operations the live executor needs.
type ExchangeClient interface {
	MarketDataProvider
	BalanceProvider

	// SetServerTime synchronizes the client's time offset with the exchange.
	SetServerTime(ctx context.Context) error

	// PlaceMarketOrder places a market order and returns its execution report.
	PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string) (*OrderResponse, error)

	// PlaceLimitOrder places an immediate-or-cancel limit order. Any quantity
	// not filled immediately is cancelled by the exchange.
	PlaceLimitOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity, price string) (*OrderResponse, error)

	// Ping checks the connectivity to the exchange API.
	Ping(ctx context.Context) error
}
