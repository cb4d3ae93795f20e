package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OrdersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_engine_orders_total",
		Help: "Orders processed, by outcome (filled, rejected, failed, invalid)",
	}, []string{"outcome"})

	RiskRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_engine_rejections_total",
		Help: "Risk rejections by reason",
	}, []string{"reason"})

	ExecutionFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_engine_execution_failures_total",
		Help: "Execution failures by kind",
	}, []string{"kind"})

	ExecutionLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "risk_engine_execution_seconds",
		Help:    "Time spent in the execution adapter per order",
		Buckets: prometheus.DefBuckets,
	}, []string{"venue"})

	Equity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "risk_engine_equity_usd",
		Help: "Current account equity (balance plus unrealized P&L)",
	})

	OpenPositions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "risk_engine_open_positions",
		Help: "Number of open positions",
	})

	DailyTrades = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "risk_engine_daily_trades",
		Help: "Trades executed in the current trading day",
	})

	Halted = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "risk_engine_halted",
		Help: "1 while a trading halt of the given kind is latched",
	}, []string{"kind"})

	PersistErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "risk_engine_persist_errors_total",
		Help: "Failures writing ledger state or trades to storage",
	})

	EventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "risk_engine_events_dropped_total",
		Help: "Engine events dropped because the delivery queue was full",
	})
)

func init() {
	prometheus.MustRegister(
		OrdersTotal,
		RiskRejections,
		ExecutionFailures,
		ExecutionLatency,
		Equity,
		OpenPositions,
		DailyTrades,
		Halted,
		PersistErrors,
		EventsDropped,
	)
}
