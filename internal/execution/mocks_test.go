package execution

import (
	"context"
	"sync"

	"cryptoRiskEngine/internal/domain"
	"cryptoRiskEngine/internal/ports"
)

type mockLogger struct {
	mu       sync.Mutex
	warnMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockExchange struct {
	orderResponses map[string]*ports.OrderResponse
	orderErrors    map[string]error
	block          bool // Wait for ctx cancellation, then fail
	answerLate     bool // Wait for ctx cancellation, then answer normally
	placements     int
	lastQuantity   string
	lastPrice      string
}

func (m *mockExchange) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	return 100, nil
}

func (m *mockExchange) SetServerTime(ctx context.Context) error { return nil }

func (m *mockExchange) GetAccountBalance(ctx context.Context, asset string) (float64, error) {
	return 1000.0, nil
}

func (m *mockExchange) PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string) (*ports.OrderResponse, error) {
	m.lastQuantity = quantity
	return m.answer(ctx, "market_"+string(side))
}

func (m *mockExchange) PlaceLimitOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity, price string) (*ports.OrderResponse, error) {
	m.lastQuantity = quantity
	m.lastPrice = price
	return m.answer(ctx, "limit_"+string(side))
}

func (m *mockExchange) Ping(ctx context.Context) error { return nil }

func (m *mockExchange) answer(ctx context.Context, key string) (*ports.OrderResponse, error) {
	m.placements++
	if m.block || m.answerLate {
		<-ctx.Done()
		if m.block {
			return nil, ctx.Err()
		}
	}
	return m.orderResponses[key], m.orderErrors[key]
}

// scriptedExecutor returns the queued errors in order, then fills.
type scriptedExecutor struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (s *scriptedExecutor) Name() string { return "scripted" }

func (s *scriptedExecutor) Execute(ctx context.Context, order *domain.OrderRequest) (*domain.Fill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	return &domain.Fill{OrderID: "ok", Symbol: order.Symbol, Side: order.Side, Price: order.ReferencePrice, Quantity: order.Amount}, nil
}
