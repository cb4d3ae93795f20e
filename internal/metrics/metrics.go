// Package metrics exposes Prometheus collectors for the engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cryptoRiskEngine/internal/domain"
)

// Handler returns the /metrics handler. If reg is nil the default gatherer is used.
func Handler(reg *prometheus.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// ObserveSnapshot refreshes the ledger gauges.
func ObserveSnapshot(snap *domain.LedgerSnapshot) {
	if snap == nil {
		return
	}
	Equity.Set(snap.Equity.InexactFloat64())
	OpenPositions.Set(float64(snap.OpenPositionCount()))
	DailyTrades.Set(float64(snap.DailyTradeCount))
	Halted.WithLabelValues(string(domain.HaltDailyLoss)).Set(boolGauge(snap.DailyLossHalted))
	Halted.WithLabelValues(string(domain.HaltDrawdown)).Set(boolGauge(snap.DrawdownHalted))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
