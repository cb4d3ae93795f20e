package execution

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"cryptoRiskEngine/internal/domain"
	"cryptoRiskEngine/internal/ports"
)

const liveVenue = "binance"

// LiveConfig configures the exchange-backed venue.
type LiveConfig struct {
	Client  ports.ExchangeClient
	Logger  ports.Logger
	Timeout time.Duration   // Upper bound for a single placement call
	FeeRate decimal.Decimal // Taker fee used to estimate the fill fee
	Now     func() time.Time
}

// LiveExecutor routes orders to the exchange. A placement that does not
// complete within Timeout is reported as a TIMEOUT failure and never
// assumed to have filled.
type LiveExecutor struct {
	client  ports.ExchangeClient
	logger  ports.Logger
	timeout time.Duration
	feeRate decimal.Decimal
	now     func() time.Time
}

// NewLiveExecutor creates an exchange venue.
func NewLiveExecutor(cfg LiveConfig) (*LiveExecutor, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("%w: exchange client is required for live executor", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for live executor", ports.ErrConfigurationError)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("%w: live executor timeout must be positive", ports.ErrConfigurationError)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &LiveExecutor{
		client:  cfg.Client,
		logger:  cfg.Logger,
		timeout: cfg.Timeout,
		feeRate: cfg.FeeRate,
		now:     now,
	}, nil
}

// Name implements ports.Executor.
func (l *LiveExecutor) Name() string {
	return liveVenue
}

// Execute implements ports.Executor.
func (l *LiveExecutor) Execute(ctx context.Context, order *domain.OrderRequest) (*domain.Fill, error) {
	op := "LiveExecutor.Execute"
	if err := ctx.Err(); err != nil {
		return nil, ports.ClassifyExecutionError(liveVenue, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	qty := order.Amount.String()
	var (
		resp *ports.OrderResponse
		err  error
	)
	if order.Type == domain.Limit {
		resp, err = l.client.PlaceLimitOrder(callCtx, order.Symbol, order.Side, qty, order.LimitPrice.String())
	} else {
		resp, err = l.client.PlaceMarketOrder(callCtx, order.Symbol, order.Side, qty)
	}
	if err == nil && callCtx.Err() != nil {
		if resp == nil || resp.ExecutedQty <= 0 {
			err = callCtx.Err()
		} else {
			// The exchange confirmed execution; the fill must be booked.
			l.logger.Warn(ctx, op+": Fill confirmed after the placement deadline", map[string]interface{}{
				"symbol":  order.Symbol,
				"orderID": resp.OrderID,
				"status":  resp.Status,
			})
		}
	}
	if err != nil {
		failure := ports.ClassifyExecutionError(liveVenue, err)
		if failure.Kind == ports.FailureCancelled && ctx.Err() == nil {
			failure.Kind = ports.FailureTimeout
		}
		l.logger.Warn(ctx, op+": Order placement failed", map[string]interface{}{
			"symbol": order.Symbol,
			"side":   order.Side,
			"type":   order.Type,
			"kind":   failure.Kind,
			"error":  err.Error(),
		})
		return nil, failure
	}

	if resp == nil || resp.ExecutedQty <= 0 {
		status := ""
		if resp != nil {
			status = resp.Status
		}
		return nil, &ports.ExecutionFailure{
			Kind:     ports.FailureNotFilled,
			Venue:    liveVenue,
			Attempts: 1,
			Err:      fmt.Errorf("%w: status %q", ports.ErrOrderNotFilled, status),
		}
	}

	price := decimal.NewFromFloat(resp.AvgPrice)
	if !price.IsPositive() {
		// Some responses omit the average price; fall back to the best known price.
		price = order.ReferencePrice
		if order.Type == domain.Limit {
			price = order.LimitPrice
		}
		l.logger.Warn(ctx, op+": Exchange reported no average price, using fallback", map[string]interface{}{
			"orderID":  resp.OrderID,
			"fallback": price.String(),
		})
	}

	fill := &domain.Fill{
		OrderID:   strconv.FormatInt(resp.OrderID, 10),
		Symbol:    order.Symbol,
		Side:      order.Side,
		Price:     price,
		Quantity:  decimal.NewFromFloat(resp.ExecutedQty),
		Venue:     liveVenue,
		Timestamp: resp.Timestamp,
	}
	if fill.Timestamp.IsZero() {
		fill.Timestamp = l.now()
	}
	fill.Fee = fill.Notional().Mul(l.feeRate)

	l.logger.Info(ctx, "Live order filled", map[string]interface{}{
		"orderID":  fill.OrderID,
		"symbol":   fill.Symbol,
		"side":     fill.Side,
		"price":    fill.Price.String(),
		"quantity": fill.Quantity.String(),
		"status":   resp.Status,
	})
	return fill, nil
}
