package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/jpillora/backoff"

	"cryptoRiskEngine/internal/domain"
	"cryptoRiskEngine/internal/ports"
)

// RetryConfig configures RetryingExecutor.
type RetryConfig struct {
	MaxAttempts int           // Total attempts including the first, >= 1
	BaseDelay   time.Duration // Delay before the second attempt
	MaxDelay    time.Duration // Upper bound for any delay
	Logger      ports.Logger
}

// RetryingExecutor retries transient failures (timeouts, rate limits,
// unavailability) of the wrapped executor with exponential backoff.
// Other failures are returned after the first attempt.
type RetryingExecutor struct {
	next        ports.Executor
	maxAttempts int
	backoff     *backoff.Backoff
	logger      ports.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewRetryingExecutor wraps next with a retry policy.
func NewRetryingExecutor(next ports.Executor, cfg RetryConfig) (*RetryingExecutor, error) {
	if next == nil {
		return nil, fmt.Errorf("%w: executor to wrap is required", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for retrying executor", ports.ErrConfigurationError)
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay * 8
	}
	return &RetryingExecutor{
		next:        next,
		maxAttempts: cfg.MaxAttempts,
		backoff: &backoff.Backoff{
			Min:    cfg.BaseDelay,
			Max:    cfg.MaxDelay,
			Factor: 2,
			Jitter: true,
		},
		logger: cfg.Logger,
		sleep:  sleepContext,
	}, nil
}

// Name implements ports.Executor.
func (r *RetryingExecutor) Name() string {
	return r.next.Name()
}

// Execute implements ports.Executor.
func (r *RetryingExecutor) Execute(ctx context.Context, order *domain.OrderRequest) (*domain.Fill, error) {
	var failure *ports.ExecutionFailure
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		fill, err := r.next.Execute(ctx, order)
		if err == nil {
			return fill, nil
		}

		failure = ports.ClassifyExecutionError(r.next.Name(), err)
		failure.Attempts = attempt
		if !failure.Transient() || attempt == r.maxAttempts {
			break
		}

		// ForAttempt is stateless, so concurrent orders do not share a retry counter.
		delay := r.backoff.ForAttempt(float64(attempt - 1))
		r.logger.Warn(ctx, "Execution failed, retrying", map[string]interface{}{
			"symbol":  order.Symbol,
			"attempt": attempt,
			"kind":    failure.Kind,
			"delay":   delay.String(),
		})
		if err := r.sleep(ctx, delay); err != nil {
			return nil, &ports.ExecutionFailure{Kind: ports.FailureCancelled, Venue: r.next.Name(), Attempts: attempt, Err: err}
		}
	}
	return nil, failure
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
