package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoRiskEngine/internal/domain"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func testConfig() domain.RiskConfig {
	return domain.RiskConfig{
		MaxRiskPerTradePercent: d("1"),
		MaxDailyLossPercent:    d("3"),
		MaxDrawdownPercent:     d("10"),
		MaxOpenPositions:       2,
		MaxTradesPerDay:        6,
	}
}

func flatSnapshot(equity string) *domain.LedgerSnapshot {
	e := d(equity)
	return &domain.LedgerSnapshot{
		StartingCapital:  e,
		Balance:          e,
		Equity:           e,
		PeakEquity:       e,
		DayStartEquity:   e,
		RealizedPnL:      decimal.Zero,
		UnrealizedPnL:    decimal.Zero,
		DailyRealizedPnL: decimal.Zero,
		TradingDay:       time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
}

func openPosition(symbol string, side domain.PositionSide, qty, entry string) domain.PositionView {
	return domain.PositionView{
		Position: domain.Position{
			ID:         symbol + "-" + string(side),
			Symbol:     symbol,
			Side:       side,
			EntryPrice: d(entry),
			Quantity:   d(qty),
		},
		MarkPrice:     d(entry),
		UnrealizedPnL: decimal.Zero,
	}
}

func marketBuy(symbol, amount, price string) *domain.OrderRequest {
	return &domain.OrderRequest{
		Symbol:         symbol,
		Side:           domain.Buy,
		Type:           domain.Market,
		Amount:         d(amount),
		ReferencePrice: d(price),
	}
}

func TestEvaluate_RiskPerTrade(t *testing.T) {
	cfg := testConfig()
	snap := flatSnapshot("10000")

	tests := []struct {
		name     string
		amount   string
		price    string
		approved bool
	}{
		{name: "notional 150 is 1.5% of equity", amount: "1.5", price: "100", approved: false},
		{name: "notional 80 is 0.8% of equity", amount: "0.8", price: "100", approved: true},
		{name: "exactly at the limit", amount: "1", price: "100", approved: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := Evaluate(marketBuy("BTCUSDT", tt.amount, tt.price), snap, cfg)
			assert.Equal(t, tt.approved, decision.Approved)
			if !tt.approved {
				assert.Equal(t, domain.ReasonRiskPerTrade, decision.Reason)
				assert.Equal(t, domain.HaltNone, decision.Halt)
			}
		})
	}
}

func TestEvaluate_StopDistanceDefinesRisk(t *testing.T) {
	cfg := testConfig()
	snap := flatSnapshot("10000")

	// 10 units at 100 is 10% notional, but only 5 per unit is at risk: 0.5%.
	req := marketBuy("ETHUSDT", "10", "100")
	req.StopLoss = d("95")

	decision := Evaluate(req, snap, cfg)
	require.True(t, decision.Approved)
	assert.True(t, decision.RiskPercent.Equal(d("0.5")))

	req.StopLoss = d("80")
	decision = Evaluate(req, snap, cfg)
	assert.False(t, decision.Approved)
	assert.Equal(t, domain.ReasonRiskPerTrade, decision.Reason)
}

func TestEvaluate_DailyTradeLimit(t *testing.T) {
	cfg := testConfig()
	snap := flatSnapshot("10000")
	snap.DailyTradeCount = 6

	decision := Evaluate(marketBuy("BTCUSDT", "0.1", "100"), snap, cfg)
	assert.False(t, decision.Approved)
	assert.Equal(t, domain.ReasonDailyTradeLimit, decision.Reason)
}

func TestEvaluate_MaxPositions(t *testing.T) {
	cfg := testConfig()

	t.Run("new symbol rejected when slots are full", func(t *testing.T) {
		snap := flatSnapshot("10000")
		snap.Positions = []domain.PositionView{
			openPosition("BTCUSDT", domain.Long, "0.1", "100"),
			openPosition("ETHUSDT", domain.Long, "0.1", "100"),
		}
		decision := Evaluate(marketBuy("SOLUSDT", "0.1", "100"), snap, cfg)
		assert.False(t, decision.Approved)
		assert.Equal(t, domain.ReasonMaxPositions, decision.Reason)
	})

	t.Run("scaling into an existing position does not use a slot", func(t *testing.T) {
		snap := flatSnapshot("10000")
		snap.Positions = []domain.PositionView{
			openPosition("BTCUSDT", domain.Long, "0.1", "100"),
			openPosition("ETHUSDT", domain.Long, "0.1", "100"),
		}
		decision := Evaluate(marketBuy("BTCUSDT", "0.1", "100"), snap, cfg)
		assert.True(t, decision.Approved)
	})

	t.Run("multiple positions mode opens a new lot", func(t *testing.T) {
		snap := flatSnapshot("10000")
		snap.AllowMultiple = true
		snap.Positions = []domain.PositionView{
			openPosition("BTCUSDT", domain.Long, "0.1", "100"),
			openPosition("ETHUSDT", domain.Long, "0.1", "100"),
		}
		decision := Evaluate(marketBuy("BTCUSDT", "0.1", "100"), snap, cfg)
		assert.False(t, decision.Approved)
		assert.Equal(t, domain.ReasonMaxPositions, decision.Reason)
	})

	t.Run("closing order is not subject to position or risk limits", func(t *testing.T) {
		snap := flatSnapshot("10000")
		snap.Positions = []domain.PositionView{
			openPosition("BTCUSDT", domain.Long, "50", "100"),
			openPosition("ETHUSDT", domain.Long, "0.1", "100"),
		}
		req := marketBuy("BTCUSDT", "50", "100")
		req.Side = domain.Sell
		decision := Evaluate(req, snap, cfg)
		require.True(t, decision.Approved)
		assert.True(t, decision.OpeningQuantity.IsZero())
	})

	t.Run("flip frees the slot of the closed position", func(t *testing.T) {
		snap := flatSnapshot("10000")
		snap.Positions = []domain.PositionView{
			openPosition("BTCUSDT", domain.Long, "0.1", "100"),
			openPosition("ETHUSDT", domain.Long, "0.1", "100"),
		}
		req := marketBuy("BTCUSDT", "0.2", "100")
		req.Side = domain.Sell
		decision := Evaluate(req, snap, cfg)
		require.True(t, decision.Approved)
		assert.True(t, decision.OpeningQuantity.Equal(d("0.1")))
	})
}

func TestEvaluate_DailyLossLatchesHalt(t *testing.T) {
	cfg := testConfig()
	snap := flatSnapshot("10000")
	snap.DailyRealizedPnL = d("-300")
	snap.RealizedPnL = d("-300")
	snap.Balance = d("9700")
	snap.Equity = d("9700")

	decision := Evaluate(marketBuy("BTCUSDT", "0.1", "100"), snap, cfg)
	assert.False(t, decision.Approved)
	assert.Equal(t, domain.ReasonDailyLossLimit, decision.Reason)
	assert.Equal(t, domain.HaltDailyLoss, decision.Halt)
}

func TestEvaluate_DrawdownLatchesHalt(t *testing.T) {
	cfg := testConfig()
	snap := flatSnapshot("10000")
	snap.PeakEquity = d("12000")
	snap.Equity = d("10800") // exactly 10% below peak

	decision := Evaluate(marketBuy("BTCUSDT", "0.1", "100"), snap, cfg)
	assert.False(t, decision.Approved)
	assert.Equal(t, domain.ReasonMaxDrawdown, decision.Reason)
	assert.Equal(t, domain.HaltDrawdown, decision.Halt)
}

func TestEvaluate_LatchedHalts(t *testing.T) {
	cfg := testConfig()

	snap := flatSnapshot("10000")
	snap.DrawdownHalted = true
	snap.HaltReason = "drawdown 12% from peak"
	decision := Evaluate(marketBuy("BTCUSDT", "0.1", "100"), snap, cfg)
	assert.False(t, decision.Approved)
	assert.Equal(t, domain.ReasonMaxDrawdown, decision.Reason)
	assert.Equal(t, "drawdown 12% from peak", decision.Detail)
	assert.Equal(t, domain.HaltNone, decision.Halt, "an existing halt is not latched again")

	snap = flatSnapshot("10000")
	snap.DailyLossHalted = true
	decision = Evaluate(marketBuy("BTCUSDT", "0.1", "100"), snap, cfg)
	assert.False(t, decision.Approved)
	assert.Equal(t, domain.ReasonDailyLossLimit, decision.Reason)
}

func TestEvaluate_FirstFailingRuleWins(t *testing.T) {
	cfg := testConfig()
	snap := flatSnapshot("10000")
	snap.DailyTradeCount = 6
	snap.Positions = []domain.PositionView{
		openPosition("BTCUSDT", domain.Long, "0.1", "100"),
		openPosition("ETHUSDT", domain.Long, "0.1", "100"),
	}
	snap.DailyRealizedPnL = d("-500")
	snap.PeakEquity = d("20000")

	// Every rule fails; the trade count is checked first.
	decision := Evaluate(marketBuy("SOLUSDT", "100", "100"), snap, cfg)
	assert.Equal(t, domain.ReasonDailyTradeLimit, decision.Reason)

	snap.DailyTradeCount = 0
	decision = Evaluate(marketBuy("SOLUSDT", "100", "100"), snap, cfg)
	assert.Equal(t, domain.ReasonMaxPositions, decision.Reason)

	snap.Positions = nil
	decision = Evaluate(marketBuy("SOLUSDT", "100", "100"), snap, cfg)
	assert.Equal(t, domain.ReasonRiskPerTrade, decision.Reason)

	decision = Evaluate(marketBuy("SOLUSDT", "0.1", "100"), snap, cfg)
	assert.Equal(t, domain.ReasonDailyLossLimit, decision.Reason)

	snap.DailyRealizedPnL = decimal.Zero
	decision = Evaluate(marketBuy("SOLUSDT", "0.1", "100"), snap, cfg)
	assert.Equal(t, domain.ReasonMaxDrawdown, decision.Reason)
}

func TestEvaluate_IsPure(t *testing.T) {
	cfg := testConfig()
	snap := flatSnapshot("10000")
	snap.Positions = []domain.PositionView{openPosition("BTCUSDT", domain.Long, "0.5", "100")}
	req := marketBuy("BTCUSDT", "0.5", "100")
	req.Side = domain.Sell

	first := Evaluate(req, snap, cfg)
	second := Evaluate(req, snap, cfg)

	assert.Equal(t, first, second)
	assert.Len(t, snap.Positions, 1)
	assert.True(t, snap.Positions[0].Quantity.Equal(d("0.5")))
}

func TestProject(t *testing.T) {
	snap := flatSnapshot("10000")
	snap.AllowMultiple = true
	snap.Positions = []domain.PositionView{
		openPosition("BTCUSDT", domain.Short, "1", "100"),
		openPosition("BTCUSDT", domain.Short, "2", "110"),
	}

	proj := Project(marketBuy("BTCUSDT", "2", "100"), snap)
	assert.True(t, proj.ClosingQuantity.Equal(d("2")))
	assert.True(t, proj.OpeningQuantity.IsZero())
	assert.Equal(t, 1, proj.ClosedPositions)
	assert.False(t, proj.OpensNewPosition())

	proj = Project(marketBuy("BTCUSDT", "4", "100"), snap)
	assert.True(t, proj.OpeningQuantity.Equal(d("1")))
	assert.Equal(t, 2, proj.ClosedPositions)
	assert.True(t, proj.OpensNewPosition())
}
