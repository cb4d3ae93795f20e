package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"cryptoRiskEngine/internal/domain"
)

// Mock implementations
type mockLogger struct {
	mu        sync.Mutex
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

// mockExecutor fills at the limit or reference price unless an error is queued.
type mockExecutor struct {
	mu    sync.Mutex
	calls atomic.Int32
	errs  []error
	delay time.Duration
	fee   decimal.Decimal
	// override replaces the generated fill when set.
	override func(order *domain.OrderRequest) *domain.Fill
}

func (m *mockExecutor) Name() string { return "mock" }

func (m *mockExecutor) Execute(ctx context.Context, order *domain.OrderRequest) (*domain.Fill, error) {
	n := m.calls.Add(1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()

	if m.override != nil {
		return m.override(order), nil
	}
	price := order.ReferencePrice
	if order.Type == domain.Limit {
		price = order.LimitPrice
	}
	return &domain.Fill{
		OrderID:   fmt.Sprintf("mock-%d", n),
		Symbol:    order.Symbol,
		Side:      order.Side,
		Price:     price,
		Quantity:  order.Amount,
		Fee:       m.fee,
		Venue:     "mock",
		Timestamp: time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC),
	}, nil
}

type mockRepo struct {
	mu             sync.Mutex
	state          *domain.LedgerState
	trades         []*domain.Trade
	saveCalls      int
	saveErr        error
	loadErr        error
	createFailures int // CreateTrade calls that fail before writes succeed
}

func (m *mockRepo) SaveState(ctx context.Context, state *domain.LedgerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.state = state
	return nil
}

func (m *mockRepo) LoadState(ctx context.Context) (*domain.LedgerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.loadErr
}

func (m *mockRepo) CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createFailures > 0 {
		m.createFailures--
		return 0, errStorage
	}
	m.trades = append(m.trades, trade)
	return int64(len(m.trades)), nil
}

func (m *mockRepo) FindTrades(ctx context.Context, limit int) ([]*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Trade(nil), m.trades...), nil
}

func (m *mockRepo) Ping(ctx context.Context) error { return nil }

type mockAudit struct {
	mu      sync.Mutex
	entries []*domain.AuditEntry
}

func (m *mockAudit) RecordAudit(ctx context.Context, entry *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAudit) FindAudit(ctx context.Context, limit int) ([]*domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.AuditEntry(nil), m.entries...), nil
}

func (m *mockAudit) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.EventType
	}
	return out
}

type mockPublisher struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (m *mockPublisher) Publish(ctx context.Context, evt domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return m.err
}

func (m *mockPublisher) count(t domain.EventType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type mockMarket struct {
	price float64
	err   error
}

func (m *mockMarket) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.price, nil
}

// mockBalances reports balances in order; the last one repeats.
type mockBalances struct {
	mu       sync.Mutex
	balances []float64
	err      error
	assets   []string
}

func (m *mockBalances) GetAccountBalance(ctx context.Context, asset string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets = append(m.assets, asset)
	if m.err != nil {
		return 0, m.err
	}
	b := m.balances[0]
	if len(m.balances) > 1 {
		m.balances = m.balances[1:]
	}
	return b, nil
}

var errStorage = errors.New("disk full")
