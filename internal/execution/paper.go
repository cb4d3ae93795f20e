// Package execution contains the venues an approved order can be sent to.
package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cryptoRiskEngine/internal/domain"
	"cryptoRiskEngine/internal/ports"
)

const paperVenue = "paper"

var bpsDivisor = decimal.NewFromInt(10000)

// PaperConfig configures the simulated venue.
type PaperConfig struct {
	FeeRate     decimal.Decimal // Fraction of notional charged per fill, e.g. 0.0004
	SlippageBps decimal.Decimal // Adverse slippage applied to market orders
	Logger      ports.Logger
	Now         func() time.Time
}

// PaperExecutor fills every order immediately without touching an exchange.
// Market orders fill at the reference price adjusted for slippage; limit
// orders fill at their limit price.
type PaperExecutor struct {
	feeRate     decimal.Decimal
	slippageBps decimal.Decimal
	logger      ports.Logger
	now         func() time.Time
}

// NewPaperExecutor creates a paper venue.
func NewPaperExecutor(cfg PaperConfig) (*PaperExecutor, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for paper executor", ports.ErrConfigurationError)
	}
	if cfg.FeeRate.IsNegative() || cfg.SlippageBps.IsNegative() {
		return nil, fmt.Errorf("%w: paper fee rate and slippage must not be negative", ports.ErrConfigurationError)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &PaperExecutor{
		feeRate:     cfg.FeeRate,
		slippageBps: cfg.SlippageBps,
		logger:      cfg.Logger,
		now:         now,
	}, nil
}

// Name implements ports.Executor.
func (p *PaperExecutor) Name() string {
	return paperVenue
}

// Execute implements ports.Executor.
func (p *PaperExecutor) Execute(ctx context.Context, order *domain.OrderRequest) (*domain.Fill, error) {
	if err := ctx.Err(); err != nil {
		return nil, ports.ClassifyExecutionError(paperVenue, err)
	}

	price, err := p.fillPrice(order)
	if err != nil {
		return nil, err
	}

	fill := &domain.Fill{
		OrderID:   "paper-" + uuid.NewString(),
		Symbol:    order.Symbol,
		Side:      order.Side,
		Price:     price,
		Quantity:  order.Amount,
		Venue:     paperVenue,
		Timestamp: p.now(),
	}
	fill.Fee = fill.Notional().Mul(p.feeRate)

	p.logger.Debug(ctx, "Paper order filled", map[string]interface{}{
		"orderID":  fill.OrderID,
		"symbol":   fill.Symbol,
		"side":     fill.Side,
		"price":    fill.Price.String(),
		"quantity": fill.Quantity.String(),
		"fee":      fill.Fee.String(),
	})
	return fill, nil
}

func (p *PaperExecutor) fillPrice(order *domain.OrderRequest) (decimal.Decimal, error) {
	if order.Type == domain.Limit {
		if !order.LimitPrice.IsPositive() {
			return decimal.Zero, &ports.ExecutionFailure{Kind: ports.FailureRejected, Venue: paperVenue, Attempts: 1, Err: ports.ErrInvalidRequest}
		}
		return order.LimitPrice, nil
	}
	if !order.ReferencePrice.IsPositive() {
		return decimal.Zero, &ports.ExecutionFailure{Kind: ports.FailureRejected, Venue: paperVenue, Attempts: 1, Err: ports.ErrInvalidRequest}
	}
	slip := order.ReferencePrice.Mul(p.slippageBps).Div(bpsDivisor)
	if order.Side == domain.Buy {
		return order.ReferencePrice.Add(slip), nil
	}
	return order.ReferencePrice.Sub(slip), nil
}
