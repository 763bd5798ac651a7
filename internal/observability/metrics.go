// Package observability exposes Prometheus metrics for the guard daemon.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ramp_guard"

// Metrics holds every instrument the guard records.
type Metrics struct {
	registry *prometheus.Registry

	SnapshotsTotal  prometheus.Counter
	RampStage       prometheus.Gauge
	RampCap         prometheus.Gauge
	RampPaused      prometheus.Gauge
	ThrottleActive  prometheus.Gauge
	TradingFrozen   prometheus.Gauge
	PromotionFrozen prometheus.Gauge

	IntentsTotal     *prometheus.CounterVec
	SuiteRunsTotal   *prometheus.CounterVec
	DrillFailures    *prometheus.CounterVec
	Discrepancies    prometheus.Counter
	SuiteDurationSec prometheus.Histogram
}

// New registers every metric on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		SnapshotsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Metric snapshots consumed from the feed.",
		}),
		RampStage: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ramp_stage",
			Help:      "Current ramp stage index.",
		}),
		RampCap: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ramp_cap",
			Help:      "Current exposure multiplier cap.",
		}),
		RampPaused: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ramp_paused",
			Help:      "1 while ramp advancement is paused.",
		}),
		ThrottleActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "throttle_active",
			Help:      "1 while the risk throttle reports healthy metrics.",
		}),
		TradingFrozen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "trading_frozen",
			Help:      "1 while the kill-switch freeze refuses new submissions.",
		}),
		PromotionFrozen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "promotions_frozen",
			Help:      "1 while reconciliation discrepancies freeze promotions.",
		}),

		IntentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_total",
			Help:      "Order intent submissions by outcome.",
		}, []string{"result"}),
		SuiteRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suite_runs_total",
			Help:      "Validation suite runs by aggregate outcome.",
		}, []string{"passed"}),
		DrillFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drill_failures_total",
			Help:      "Individual drill failures by drill name.",
		}, []string{"drill"}),
		Discrepancies: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_discrepancies_total",
			Help:      "Discrepancies found during startup reconciliation.",
		}),
		SuiteDurationSec: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "suite_duration_seconds",
			Help:      "Wall-clock duration of validation suite runs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
}

// Handler serves the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func boolGauge(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
		return
	}
	g.Set(0)
}

// SetRampState updates the ramp gauges in one call.
func (m *Metrics) SetRampState(stage int, cap float64, paused bool) {
	m.RampStage.Set(float64(stage))
	m.RampCap.Set(cap)
	boolGauge(m.RampPaused, paused)
}

// SetFlags updates the boolean health gauges.
func (m *Metrics) SetFlags(throttleActive, tradingFrozen, promotionsFrozen bool) {
	boolGauge(m.ThrottleActive, throttleActive)
	boolGauge(m.PromotionFrozen, promotionsFrozen)
	boolGauge(m.TradingFrozen, tradingFrozen)
}

// RecordSuite records one validation suite outcome.
func (m *Metrics) RecordSuite(allPassed bool, durationSec float64, failedDrills []string) {
	label := "false"
	if allPassed {
		label = "true"
	}
	m.SuiteRunsTotal.WithLabelValues(label).Inc()
	m.SuiteDurationSec.Observe(durationSec)
	for _, name := range failedDrills {
		m.DrillFailures.WithLabelValues(name).Inc()
	}
}
