package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoRiskEngine/internal/domain"
	"cryptoRiskEngine/internal/ledger"
	"cryptoRiskEngine/internal/ports"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(dur time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(dur)
}

type fixture struct {
	svc    *OrderService
	ledger *ledger.Ledger
	exec   *mockExecutor
	repo   *mockRepo
	audit  *mockAudit
	events *mockPublisher
	logger *mockLogger
	clock  *testClock
}

func testRisk() domain.RiskConfig {
	return domain.RiskConfig{
		MaxRiskPerTradePercent: d("1"),
		MaxDailyLossPercent:    d("3"),
		MaxDrawdownPercent:     d("10"),
		MaxOpenPositions:       2,
		MaxTradesPerDay:        6,
	}
}

func newFixture(t *testing.T, mutate func(*Dependencies)) *fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)}
	f := &fixture{
		exec:   &mockExecutor{fee: decimal.Zero},
		repo:   &mockRepo{},
		audit:  &mockAudit{},
		events: &mockPublisher{},
		logger: &mockLogger{},
		clock:  clock,
	}
	f.ledger = ledger.New(ledger.Config{StartingCapital: d("10000"), Now: clock.Now})

	deps := Dependencies{
		Logger:       f.logger,
		Ledger:       f.ledger,
		Executor:     f.exec,
		Repo:         f.repo,
		Audit:        f.audit,
		Events:       f.events,
		Risk:         testRisk(),
		PaperTrading: true,
		Now:          clock.Now,
	}
	if mutate != nil {
		mutate(&deps)
	}
	svc, err := NewOrderService(deps)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func order(symbol string, side domain.OrderSide, amount, price string) *domain.OrderRequest {
	return &domain.OrderRequest{
		Symbol:         symbol,
		Side:           side,
		Type:           domain.Market,
		Amount:         d(amount),
		ReferencePrice: d(price),
	}
}

func TestNewOrderService_Validation(t *testing.T) {
	_, err := NewOrderService(Dependencies{})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	l := ledger.New(ledger.Config{StartingCapital: d("1000")})
	bad := testRisk()
	bad.MaxTradesPerDay = 0
	_, err = NewOrderService(Dependencies{Logger: &mockLogger{}, Ledger: l, Executor: &mockExecutor{}, Repo: &mockRepo{}, Risk: bad})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestSubmit_FillsAndBooks(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.svc.Submit(context.Background(), order("BTCUSDT", domain.Buy, "0.8", "100"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFilled, res.Status)
	assert.Equal(t, "mock-1", res.OrderID)
	assert.True(t, res.AveragePrice().Equal(d("100")))

	snap := f.svc.Snapshot()
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, 1, snap.DailyTradeCount)
	require.NotNil(t, f.repo.state)
	assert.Len(t, f.repo.state.Positions, 1)
	assert.Equal(t, 1, f.events.count(domain.EventOrderFilled))
	assert.Equal(t, 1, f.events.count(domain.EventPositionOpened))
}

func TestSubmit_RiskPerTradeRejection(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.svc.Submit(context.Background(), order("BTCUSDT", domain.Buy, "1.5", "100"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, res.Status)
	require.NotNil(t, res.Rejection)
	assert.Equal(t, domain.ReasonRiskPerTrade, res.Rejection.Reason)
	assert.Equal(t, int32(0), f.exec.calls.Load())
	assert.Equal(t, 0, f.svc.Snapshot().DailyTradeCount)
	assert.Equal(t, 1, f.events.count(domain.EventOrderRejected))
}

func TestSubmit_SeventhOrderHitsDailyTradeLimit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		side := domain.Buy
		if i%2 == 1 {
			side = domain.Sell
		}
		res, err := f.svc.Submit(ctx, order("BTCUSDT", side, "0.5", "100"))
		require.NoError(t, err)
		require.Equal(t, domain.StatusFilled, res.Status, "order %d", i+1)
	}

	res, err := f.svc.Submit(ctx, order("BTCUSDT", domain.Buy, "0.5", "100"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, res.Status)
	assert.Equal(t, domain.ReasonDailyTradeLimit, res.Rejection.Reason)
	assert.Equal(t, int32(6), f.exec.calls.Load())
}

func TestSubmit_ExecutionFailureDoesNotConsumeTradeSlot(t *testing.T) {
	f := newFixture(t, nil)
	f.exec.errs = []error{&ports.ExecutionFailure{Kind: ports.FailureInsufficientFunds, Venue: "mock"}}

	res, err := f.svc.Submit(context.Background(), order("BTCUSDT", domain.Buy, "0.5", "100"))
	assert.Nil(t, res)
	var failure *ports.ExecutionFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, ports.FailureInsufficientFunds, failure.Kind)

	snap := f.svc.Snapshot()
	assert.Equal(t, 0, snap.DailyTradeCount)
	assert.Empty(t, snap.Positions)
	assert.Equal(t, 1, f.events.count(domain.EventOrderFailed))

	res, err = f.svc.Submit(context.Background(), order("BTCUSDT", domain.Buy, "0.5", "100"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFilled, res.Status)
	assert.Equal(t, 1, f.svc.Snapshot().DailyTradeCount)
}

func TestSubmit_UnclassifiedExecutorErrorIsWrapped(t *testing.T) {
	f := newFixture(t, nil)
	f.exec.errs = []error{fmt.Errorf("PlaceMarketOrder failed: %w", ports.ErrRateLimited)}

	_, err := f.svc.Submit(context.Background(), order("BTCUSDT", domain.Buy, "0.5", "100"))
	failure, ok := IsExecutionFailure(err)
	require.True(t, ok)
	assert.Equal(t, ports.FailureRateLimited, failure.Kind)
}

func TestSubmit_ConcurrentOrdersNeverExceedPositionLimit(t *testing.T) {
	f := newFixture(t, func(deps *Dependencies) {
		cfg := testRisk()
		cfg.MaxOpenPositions = 1
		cfg.MaxTradesPerDay = 100
		deps.Risk = cfg
	})
	f.exec.delay = 5 * time.Millisecond

	const workers = 8
	var wg sync.WaitGroup
	results := make([]*domain.OrderResult, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			symbol := fmt.Sprintf("COIN%dUSDT", i)
			results[i], errs[i] = f.svc.Submit(context.Background(), order(symbol, domain.Buy, "0.5", "100"))
		}(i)
	}
	wg.Wait()

	filled := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		switch results[i].Status {
		case domain.StatusFilled:
			filled++
		case domain.StatusRejected:
			assert.Equal(t, domain.ReasonMaxPositions, results[i].Rejection.Reason)
		}
	}
	assert.Equal(t, 1, filled)
	assert.Equal(t, int32(1), f.exec.calls.Load())
	assert.Len(t, f.svc.Snapshot().Positions, 1)
}

func TestSubmit_DrawdownHaltSurvivesDayBoundary(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// Full notional of 10000 but only 0.1 per unit at risk.
	big := order("BTCUSDT", domain.Buy, "100", "100")
	big.StopLoss = d("99.9")
	res, err := f.svc.Submit(ctx, big)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFilled, res.Status)

	// Marking BTC at 88 puts equity 12% below its peak.
	res, err = f.svc.Submit(ctx, order("BTCUSDT", domain.Buy, "0.01", "88"))
	require.NoError(t, err)
	require.Equal(t, domain.StatusRejected, res.Status)
	assert.Equal(t, domain.ReasonMaxDrawdown, res.Rejection.Reason)
	assert.True(t, f.svc.Snapshot().DrawdownHalted)
	assert.Contains(t, f.audit.types(), string(domain.EventHaltTriggered))

	f.clock.Advance(24 * time.Hour)
	res, err = f.svc.Submit(ctx, order("ETHUSDT", domain.Buy, "0.01", "10"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, res.Status)
	assert.Equal(t, domain.ReasonMaxDrawdown, res.Rejection.Reason)
	assert.Equal(t, 0, f.svc.Snapshot().DailyTradeCount, "day was reset")

	snap, err := f.svc.ResetDrawdownHalt(ctx)
	require.NoError(t, err)
	assert.False(t, snap.DrawdownHalted)
	assert.True(t, snap.PeakEquity.Equal(snap.Equity))

	res, err = f.svc.Submit(ctx, order("ETHUSDT", domain.Buy, "0.01", "10"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFilled, res.Status)
	assert.Equal(t, int32(2), f.exec.calls.Load())
}

func TestSubmit_DailyLossHaltClearsNextDay(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	open := order("BTCUSDT", domain.Buy, "100", "100")
	open.StopLoss = d("99.9")
	_, err := f.svc.Submit(ctx, open)
	require.NoError(t, err)

	res, err := f.svc.Submit(ctx, order("BTCUSDT", domain.Sell, "100", "96"))
	require.NoError(t, err)
	require.Equal(t, domain.StatusFilled, res.Status)
	require.Len(t, res.ClosedTrades, 1)
	assert.True(t, res.ClosedTrades[0].RealizedPnL.Equal(d("-400")))
	assert.Len(t, f.repo.trades, 1)

	res, err = f.svc.Submit(ctx, order("ETHUSDT", domain.Buy, "0.01", "10"))
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonDailyLossLimit, res.Rejection.Reason)
	assert.True(t, f.svc.Snapshot().DailyLossHalted)

	f.clock.Advance(24 * time.Hour)
	res, err = f.svc.Submit(ctx, order("ETHUSDT", domain.Buy, "0.01", "10"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFilled, res.Status)

	snap := f.svc.Snapshot()
	assert.False(t, snap.DailyLossHalted)
	assert.True(t, snap.DayStartEquity.Equal(d("9600")))
}

func TestSubmit_CancelledBeforeExecution(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Submit(ctx, order("BTCUSDT", domain.Buy, "0.5", "100"))
	failure, ok := IsExecutionFailure(err)
	require.True(t, ok)
	assert.Equal(t, ports.FailureCancelled, failure.Kind)
	assert.Equal(t, int32(0), f.exec.calls.Load())
	assert.Equal(t, 0, f.svc.Snapshot().DailyTradeCount)
}

func TestSubmit_Validation(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name string
		req  *domain.OrderRequest
	}{
		{name: "zero amount", req: order("BTCUSDT", domain.Buy, "0", "100")},
		{name: "lower-case symbol", req: order("btcusdt", domain.Buy, "1", "100")},
		{name: "missing price without market data", req: order("BTCUSDT", domain.Buy, "1", "0")},
		{name: "limit without price", req: &domain.OrderRequest{Symbol: "BTCUSDT", Side: domain.Buy, Type: domain.Limit, Amount: d("1"), ReferencePrice: d("100")}},
		{name: "stop on the wrong side", req: &domain.OrderRequest{Symbol: "BTCUSDT", Side: domain.Buy, Type: domain.Market, Amount: d("1"), ReferencePrice: d("100"), StopLoss: d("101")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Submit(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, domain.IsValidationError(err))
		})
	}
	assert.Equal(t, int32(0), f.exec.calls.Load())
}

func TestSubmit_ReferencePriceFromMarketData(t *testing.T) {
	f := newFixture(t, func(deps *Dependencies) {
		deps.Market = &mockMarket{price: 200}
	})

	res, err := f.svc.Submit(context.Background(), order("BTCUSDT", domain.Buy, "0.4", "0"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFilled, res.Status)
	assert.True(t, res.AveragePrice().Equal(d("200")))

	f2 := newFixture(t, func(deps *Dependencies) {
		deps.Market = &mockMarket{err: errors.New("unreachable")}
	})
	_, err = f2.svc.Submit(context.Background(), order("BTCUSDT", domain.Buy, "0.4", "0"))
	assert.True(t, domain.IsValidationError(err))
}

func TestSubmit_InconsistentFillHaltsTrading(t *testing.T) {
	f := newFixture(t, nil)
	f.exec.override = func(o *domain.OrderRequest) *domain.Fill {
		return &domain.Fill{OrderID: "bad", Symbol: o.Symbol, Side: o.Side, Price: o.ReferencePrice, Quantity: decimal.Zero}
	}

	_, err := f.svc.Submit(context.Background(), order("BTCUSDT", domain.Buy, "0.5", "100"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLedgerConsistency)

	f.exec.override = nil
	res, err := f.svc.Submit(context.Background(), order("BTCUSDT", domain.Buy, "0.5", "100"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, res.Status)
	assert.Equal(t, domain.ReasonMaxDrawdown, res.Rejection.Reason)

	_, err = f.svc.ResetDrawdownHalt(context.Background())
	require.NoError(t, err)
	res, err = f.svc.Submit(context.Background(), order("BTCUSDT", domain.Buy, "0.5", "100"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFilled, res.Status)
}

func TestSubmit_PersistenceFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, nil)
	f.repo.saveErr = errStorage
	f.events.err = errors.New("redis down")

	res, err := f.svc.Submit(context.Background(), order("BTCUSDT", domain.Buy, "0.5", "100"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFilled, res.Status)
	assert.Contains(t, f.logger.errorMsgs, "Failed to persist ledger state")
	assert.Contains(t, f.logger.warnMsgs, "Failed to publish event")
}

func TestReloadRiskConfig(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, order("BTCUSDT", domain.Buy, "0.5", "100"))
	require.NoError(t, err)

	cfg := testRisk()
	cfg.MaxTradesPerDay = 1
	require.NoError(t, f.svc.ReloadRiskConfig(ctx, cfg))
	assert.Equal(t, 1, f.svc.RiskConfig().MaxTradesPerDay)

	res, err := f.svc.Submit(ctx, order("BTCUSDT", domain.Buy, "0.5", "100"))
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonDailyTradeLimit, res.Rejection.Reason)

	cfg.MaxDrawdownPercent = decimal.Zero
	err = f.svc.ReloadRiskConfig(ctx, cfg)
	assert.True(t, domain.IsValidationError(err))
	assert.Equal(t, 1, f.svc.RiskConfig().MaxTradesPerDay)
	assert.Contains(t, f.audit.types(), string(domain.EventRiskConfigReset))
}

func TestResetDaily(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, order("BTCUSDT", domain.Buy, "0.5", "100"))
	require.NoError(t, err)

	snap := f.svc.ResetDaily(ctx)
	assert.Equal(t, 0, snap.DailyTradeCount)
	assert.Len(t, snap.Positions, 1, "positions survive the reset")
	assert.Contains(t, f.audit.types(), string(domain.EventDailyReset))
}

func TestRestore(t *testing.T) {
	source := newFixture(t, nil)
	ctx := context.Background()
	_, err := source.svc.Submit(ctx, order("BTCUSDT", domain.Buy, "0.5", "100"))
	require.NoError(t, err)
	_, err = source.svc.Submit(ctx, order("BTCUSDT", domain.Sell, "0.2", "110"))
	require.NoError(t, err)
	source.ledger.Halt(domain.HaltDrawdown, "manual test halt")
	source.svc.mu.Lock()
	source.svc.persistLocked(ctx, nil)
	source.svc.mu.Unlock()

	f := newFixture(t, nil)
	f.repo.state = source.repo.state
	f.repo.trades = source.repo.trades
	require.NoError(t, f.svc.Restore(ctx))

	snap := f.svc.Snapshot()
	require.Len(t, snap.Positions, 1)
	assert.True(t, snap.Positions[0].Quantity.Equal(d("0.3")))
	assert.Equal(t, 2, snap.DailyTradeCount)
	assert.True(t, snap.DrawdownHalted)
	assert.Equal(t, "manual test halt", snap.HaltReason)
	assert.Len(t, f.svc.Trades(0), 1)
}

func TestRestore_EmptyStoreStartsFresh(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.svc.Restore(context.Background()))
	require.NotNil(t, f.repo.state)
	assert.True(t, f.repo.state.StartingCapital.Equal(d("10000")))
}

func TestRestore_LoadError(t *testing.T) {
	f := newFixture(t, nil)
	f.repo.loadErr = errStorage
	err := f.svc.Restore(context.Background())
	assert.ErrorIs(t, err, errStorage)
}

func TestRun_RollsTradingDay(t *testing.T) {
	f := newFixture(t, func(deps *Dependencies) {
		deps.ResetCheckInterval = time.Millisecond
	})
	_, err := f.svc.Submit(context.Background(), order("BTCUSDT", domain.Buy, "0.5", "100"))
	require.NoError(t, err)
	f.clock.Advance(24 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.svc.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return f.svc.Snapshot().DailyTradeCount == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestPerformance(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.svc.Submit(ctx, order("BTCUSDT", domain.Buy, "0.5", "100"))
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, order("BTCUSDT", domain.Sell, "0.5", "120"))
	require.NoError(t, err)

	perf := f.svc.Performance()
	assert.Equal(t, 1, perf.TotalTrades)
	assert.True(t, perf.TotalProfit.Equal(d("10")))
	assert.True(t, perf.FinalBalance.Equal(d("10010")))
}

func TestSuggestQuantity(t *testing.T) {
	f := newFixture(t, nil)
	qty, price, err := f.svc.SuggestQuantity(context.Background(), "BTCUSDT", d("100"), d("98"))
	require.NoError(t, err)
	assert.True(t, price.Equal(d("100")))
	assert.True(t, qty.Equal(d("50")))
}

func (f *fixture) tick(ctx context.Context) {
	f.svc.mu.Lock()
	defer f.svc.mu.Unlock()
	f.svc.maintainLocked(ctx)
}

func TestSubmit_RejectedOrderLeavesMarksAndPeak(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.Submit(ctx, order("BTCUSDT", domain.Buy, "0.8", "100"))
	require.NoError(t, err)
	require.Equal(t, domain.StatusFilled, res.Status)
	before := f.svc.Snapshot()

	// An outlier reference price is rejected and must not revalue the book.
	res, err = f.svc.Submit(ctx, order("BTCUSDT", domain.Buy, "100", "10000"))
	require.NoError(t, err)
	require.Equal(t, domain.StatusRejected, res.Status)
	assert.Equal(t, domain.ReasonRiskPerTrade, res.Rejection.Reason)

	after := f.svc.Snapshot()
	assert.True(t, after.PeakEquity.Equal(before.PeakEquity))
	assert.True(t, after.Equity.Equal(before.Equity))
	require.Len(t, after.Positions, 1)
	assert.True(t, after.Positions[0].MarkPrice.Equal(d("100")))

	res, err = f.svc.Submit(ctx, order("BTCUSDT", domain.Sell, "0.1", "100"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFilled, res.Status)
	assert.False(t, f.svc.Snapshot().DrawdownHalted)
}

func TestSubmit_ConsecutiveFailuresTripCircuitBreaker(t *testing.T) {
	f := newFixture(t, func(deps *Dependencies) {
		deps.MaxConsecutiveFailures = 3
	})
	ctx := context.Background()
	unavailable := &ports.ExecutionFailure{Kind: ports.FailureUnavailable, Venue: "mock"}
	f.exec.errs = []error{unavailable, unavailable, unavailable}

	for i := 0; i < 3; i++ {
		_, err := f.svc.Submit(ctx, order("BTCUSDT", domain.Buy, "0.5", "100"))
		require.Error(t, err)
		assert.Equal(t, i == 2, f.svc.Snapshot().DrawdownHalted, "after failure %d", i+1)
	}
	assert.Contains(t, f.svc.Snapshot().HaltReason, "3 consecutive execution failures")
	assert.Equal(t, 1, f.events.count(domain.EventHaltTriggered))
	assert.Contains(t, f.logger.errorMsgs, "Execution circuit breaker tripped, trading halted until operator reset")

	res, err := f.svc.Submit(ctx, order("BTCUSDT", domain.Buy, "0.5", "100"))
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonMaxDrawdown, res.Rejection.Reason)
	assert.Equal(t, int32(3), f.exec.calls.Load())

	_, err = f.svc.ResetDrawdownHalt(ctx)
	require.NoError(t, err)
	f.exec.errs = []error{unavailable}
	_, err = f.svc.Submit(ctx, order("BTCUSDT", domain.Buy, "0.5", "100"))
	require.Error(t, err)
	assert.False(t, f.svc.Snapshot().DrawdownHalted, "count restarts after operator reset")
}

func TestSubmit_FillResetsFailureCount(t *testing.T) {
	f := newFixture(t, func(deps *Dependencies) {
		deps.MaxConsecutiveFailures = 2
	})
	ctx := context.Background()
	timeout := &ports.ExecutionFailure{Kind: ports.FailureTimeout, Venue: "mock"}

	f.exec.errs = []error{timeout}
	_, err := f.svc.Submit(ctx, order("BTCUSDT", domain.Buy, "0.5", "100"))
	require.Error(t, err)

	res, err := f.svc.Submit(ctx, order("BTCUSDT", domain.Buy, "0.5", "100"))
	require.NoError(t, err)
	require.Equal(t, domain.StatusFilled, res.Status)

	f.exec.errs = []error{timeout}
	_, err = f.svc.Submit(ctx, order("BTCUSDT", domain.Buy, "0.5", "100"))
	require.Error(t, err)
	assert.False(t, f.svc.Snapshot().DrawdownHalted)
}

func TestSubmit_CallerCancellationDoesNotTripCircuitBreaker(t *testing.T) {
	f := newFixture(t, func(deps *Dependencies) {
		deps.MaxConsecutiveFailures = 1
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Submit(ctx, order("BTCUSDT", domain.Buy, "0.5", "100"))
	require.Error(t, err)
	assert.False(t, f.svc.Snapshot().DrawdownHalted)
}

func TestSubmit_FailedTradeWriteIsRetried(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.repo.createFailures = 1

	_, err := f.svc.Submit(ctx, order("BTCUSDT", domain.Buy, "0.5", "100"))
	require.NoError(t, err)
	res, err := f.svc.Submit(ctx, order("BTCUSDT", domain.Sell, "0.5", "110"))
	require.NoError(t, err)
	require.Len(t, res.ClosedTrades, 1)
	assert.Empty(t, f.repo.trades)
	assert.Contains(t, f.logger.errorMsgs, "Failed to persist trade")

	_, err = f.svc.Submit(ctx, order("ETHUSDT", domain.Buy, "0.5", "10"))
	require.NoError(t, err)
	require.Len(t, f.repo.trades, 1)
	assert.Equal(t, res.ClosedTrades[0].PositionID, f.repo.trades[0].PositionID)
	assert.Equal(t, int64(1), f.repo.trades[0].ID)
	assert.Empty(t, f.svc.pendingTrades)
}

func TestMaintain_MarksOpenPositionsFromMarketData(t *testing.T) {
	f := newFixture(t, func(deps *Dependencies) {
		deps.Market = &mockMarket{price: 110}
	})
	ctx := context.Background()
	_, err := f.svc.Submit(ctx, order("BTCUSDT", domain.Buy, "0.5", "100"))
	require.NoError(t, err)

	f.tick(ctx)

	snap := f.svc.Snapshot()
	require.Len(t, snap.Positions, 1)
	assert.True(t, snap.Positions[0].MarkPrice.Equal(d("110")))
	assert.True(t, snap.UnrealizedPnL.Equal(d("5")))
	assert.True(t, snap.PeakEquity.Equal(d("10005")))
}

func TestMaintain_BalanceDriftHaltsTrading(t *testing.T) {
	// The account holds 3000 USDT more than the ledger's capital.
	balances := &mockBalances{balances: []float64{12950, 12960, 12800}}
	f := newFixture(t, func(deps *Dependencies) {
		deps.Balances = balances
		deps.BalanceTolerancePercent = d("1")
	})
	ctx := context.Background()
	_, err := f.svc.Submit(ctx, order("BTCUSDT", domain.Buy, "0.5", "100"))
	require.NoError(t, err)

	f.tick(ctx) // baseline: ledger cash 9950
	assert.False(t, f.svc.Snapshot().DrawdownHalted)
	f.tick(ctx) // drift 10 within 100
	assert.False(t, f.svc.Snapshot().DrawdownHalted)
	f.tick(ctx) // drift 150
	snap := f.svc.Snapshot()
	assert.True(t, snap.DrawdownHalted)
	assert.Contains(t, snap.HaltReason, "exchange_balance")
	assert.Equal(t, []string{"USDT", "USDT", "USDT"}, balances.assets)
	assert.Equal(t, 1, f.events.count(domain.EventHaltTriggered))

	var components []string
	for _, e := range f.audit.entries {
		components = append(components, e.Component)
	}
	assert.Contains(t, components, "reconciler")

	res, err := f.svc.Submit(ctx, order("BTCUSDT", domain.Sell, "0.5", "100"))
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonMaxDrawdown, res.Rejection.Reason)
}

func TestMaintain_BalanceFetchErrorIsNotFatal(t *testing.T) {
	f := newFixture(t, func(deps *Dependencies) {
		deps.Balances = &mockBalances{err: errors.New("exchange down")}
		deps.BalanceAsset = "FDUSD"
	})
	f.tick(context.Background())
	assert.False(t, f.svc.Snapshot().DrawdownHalted)
	assert.Contains(t, f.logger.warnMsgs, "Failed to fetch exchange balance")
}

func TestRun_ReconcilesExchangeBalance(t *testing.T) {
	f := newFixture(t, func(deps *Dependencies) {
		deps.Balances = &mockBalances{balances: []float64{10000, 9000}}
		deps.BalanceTolerancePercent = d("0.5")
		deps.ResetCheckInterval = time.Millisecond
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.svc.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return f.svc.Snapshot().DrawdownHalted
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
