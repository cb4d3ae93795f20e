package ports

import (
	"context"

	"cryptoRiskEngine/internal/domain"
)

// Executor turns an approved order into a confirmed fill.
// Implementations must return either a fill or an error, never both, and must
// not report a fill for an order that did not execute.
type Executor interface {
	// Name identifies the venue ("paper", "binance").
	Name() string
	// Execute places the order. Errors should be (or wrap) *ExecutionFailure.
	Execute(ctx context.Context, order *domain.OrderRequest) (*domain.Fill, error)
}

// EventPublisher fans engine events out to external subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, evt domain.Event) error
}
