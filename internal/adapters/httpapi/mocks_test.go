package httpapi

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"cryptoRiskEngine/internal/analytics"
	"cryptoRiskEngine/internal/domain"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockEngine struct {
	mu sync.Mutex

	paper     bool
	risk      domain.RiskConfig
	snapshot  *domain.LedgerSnapshot
	trades    []*domain.Trade
	healthErr error

	submitResult *domain.OrderResult
	submitErr    error
	lastRequest  *domain.OrderRequest

	resetDrawdownErr error
	resetDailyCalls  int
	reloadErr        error
	reloaded         *domain.RiskConfig
	audit            []*domain.AuditEntry

	suggestQty   decimal.Decimal
	suggestPrice decimal.Decimal
	suggestErr   error
}

func newMockEngine() *mockEngine {
	return &mockEngine{
		paper: true,
		risk:  domain.DefaultRiskConfig(),
		snapshot: &domain.LedgerSnapshot{
			StartingCapital: decimal.NewFromInt(10000),
			Balance:         decimal.NewFromInt(10000),
			Equity:          decimal.NewFromInt(10000),
			PeakEquity:      decimal.NewFromInt(10000),
			DayStartEquity:  decimal.NewFromInt(10000),
		},
	}
}

func (m *mockEngine) Submit(ctx context.Context, req *domain.OrderRequest) (*domain.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRequest = req
	return m.submitResult, m.submitErr
}

func (m *mockEngine) PaperTrading() bool { return m.paper }

func (m *mockEngine) Venue() string {
	if m.paper {
		return "paper"
	}
	return "binance"
}

func (m *mockEngine) RiskConfig() domain.RiskConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.risk
}

func (m *mockEngine) Snapshot() *domain.LedgerSnapshot { return m.snapshot }

func (m *mockEngine) Trades(limit int) []*domain.Trade {
	if limit > 0 && len(m.trades) > limit {
		return m.trades[len(m.trades)-limit:]
	}
	return m.trades
}

func (m *mockEngine) Performance() *analytics.PerformanceMetrics {
	return analytics.AnalyzePerformance(m.trades, m.snapshot.StartingCapital)
}

func (m *mockEngine) SuggestQuantity(ctx context.Context, symbol string, referencePrice, stopLoss decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	return m.suggestQty, m.suggestPrice, m.suggestErr
}

func (m *mockEngine) Health(ctx context.Context) error { return m.healthErr }

func (m *mockEngine) ResetDaily(ctx context.Context) *domain.LedgerSnapshot {
	m.resetDailyCalls++
	return m.snapshot
}

func (m *mockEngine) ResetDrawdownHalt(ctx context.Context) (*domain.LedgerSnapshot, error) {
	return m.snapshot, m.resetDrawdownErr
}

func (m *mockEngine) ReloadRiskConfig(ctx context.Context, cfg domain.RiskConfig) error {
	if m.reloadErr != nil {
		return m.reloadErr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.risk = cfg
	m.reloaded = &cfg
	return nil
}

func (m *mockEngine) AuditTrail(ctx context.Context, limit int) ([]*domain.AuditEntry, error) {
	return m.audit, nil
}

type mockEvents struct {
	events []domain.Event
	err    error
}

func (m *mockEvents) Recent(ctx context.Context, count int64) ([]domain.Event, error) {
	return m.events, m.err
}
