// FILE: metrics.go
// Package main – Prometheus metrics for observability.
//
// Extends a base metric set (orders/decisions/equity/exit-reason counters)
// with gauges for the concerns this engine adds: feature-book staleness,
// cooldown state, risk-gate rejections, and ledger realized P&L.
package main

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "scalpcore_orders_total", Help: "Orders placed"},
		[]string{"venue", "symbol", "side", "status"},
	)

	mtxDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "scalpcore_decisions_total", Help: "Entry pipeline decisions"},
		[]string{"symbol", "decision", "reason"},
	)

	mtxEquity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "scalpcore_equity_usd", Help: "Current equity snapshot"},
		[]string{"venue", "account_tag"},
	)

	mtxExitReasons = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "scalpcore_exit_reasons_total", Help: "Exits split by reason and side"},
		[]string{"symbol", "reason", "side"},
	)

	mtxRealizedPnL = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "scalpcore_realized_pnl_net", Help: "Net realized P&L per symbol position"},
		[]string{"venue", "symbol"},
	)

	mtxRiskRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "scalpcore_risk_rejections_total", Help: "Risk gate rejections by reason"},
		[]string{"symbol", "reason"},
	)

	mtxCooldownUntilMs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "scalpcore_cooldown_until_ms", Help: "Epoch-ms until which entries are blocked"},
		[]string{"symbol"},
	)

	mtxCooldownFailCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "scalpcore_cooldown_fail_count", Help: "Consecutive entry failures for the current streak"},
		[]string{"symbol"},
	)

	mtxFeatureBookStalenessSec = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "scalpcore_feature_book_staleness_seconds", Help: "Seconds since a feature book last saw an event"},
		[]string{"symbol", "book"},
	)

	mtxBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "scalpcore_circuit_breaker_state", Help: "0=closed 1=half-open 2=open"},
		[]string{"venue"},
	)
)

func init() {
	prometheus.MustRegister(
		mtxOrders, mtxDecisions, mtxEquity, mtxExitReasons, mtxRealizedPnL,
		mtxRiskRejections, mtxCooldownUntilMs, mtxCooldownFailCount,
		mtxFeatureBookStalenessSec, mtxBreakerState,
	)
}

func observeOrder(venue, symbol string, side OrderSide, status OrderStatus) {
	mtxOrders.WithLabelValues(venue, symbol, string(side), string(status)).Inc()
}

func observeDecision(symbol string, decision Decision, reason string) {
	mtxDecisions.WithLabelValues(symbol, string(decision), reason).Inc()
}

func observeExit(symbol string, reason ExitReason, side OrderSide) {
	mtxExitReasons.WithLabelValues(symbol, string(reason), string(side)).Inc()
}

func observeRiskRejection(symbol, reason string) {
	mtxRiskRejections.WithLabelValues(symbol, reason).Inc()
}

func observeCooldown(symbol string, st CooldownState) {
	mtxCooldownUntilMs.WithLabelValues(symbol).Set(float64(st.UntilMs))
	mtxCooldownFailCount.WithLabelValues(symbol).Set(float64(st.FailCount))
}

func observeFeatureBookStaleness(symbol, book string, staleSec float64) {
	mtxFeatureBookStalenessSec.WithLabelValues(symbol, book).Set(staleSec)
}

func observeRealizedPnL(venue, symbol string, netPnL float64) {
	mtxRealizedPnL.WithLabelValues(venue, symbol).Set(netPnL)
}

func observeEquity(venue, accountTag string, equity float64) {
	mtxEquity.WithLabelValues(venue, accountTag).Set(equity)
}

func observeBreakerState(venue string, state float64) {
	mtxBreakerState.WithLabelValues(venue).Set(state)
}
