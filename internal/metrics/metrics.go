// Package metrics exposes pipeline counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "provider_bills"

// Metrics holds the collectors shared by the batch commands and billsd.
type Metrics struct {
	Registry *prometheus.Registry

	BillsProcessed     *prometheus.CounterVec   // pass, outcome
	PageQuality        *prometheus.CounterVec   // tier
	StrategyUsed       *prometheus.CounterVec   // pass, strategy
	ExtractionDuration *prometheus.HistogramVec // strategy
	ExtractionErrors   *prometheus.CounterVec   // code
	Mapping            *prometheus.CounterVec   // outcome
	QueueDepth         prometheus.Gauge
}

// New registers every collector on a fresh registry, plus the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		BillsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "bills_processed_total",
			Help: "Bills processed by the extraction passes, by pass and outcome.",
		}, []string{"pass", "outcome"}),
		PageQuality: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "page_quality_total",
			Help: "Rendered pages by assessed quality tier.",
		}, []string{"tier"}),
		StrategyUsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "strategy_used_total",
			Help: "Extraction attempts by pass and strategy.",
		}, []string{"pass", "strategy"}),
		ExtractionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "extraction_duration_seconds",
			Help:    "Wall time of extraction calls, retries included.",
			Buckets: []float64{1, 2, 5, 10, 20, 40, 80, 160},
		}, []string{"strategy"}),
		ExtractionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "extraction_errors_total",
			Help: "Failed extraction calls by error code.",
		}, []string{"code"}),
		Mapping: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "mapping_total",
			Help: "Mapping outcomes.",
		}, []string{"outcome"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queue_depth",
			Help: "Bills waiting in the daemon queue.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.BillsProcessed, m.PageQuality, m.StrategyUsed, m.ExtractionDuration,
		m.ExtractionErrors, m.Mapping, m.QueueDepth,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObserveExtraction records one extraction call. code is empty on success.
func (m *Metrics) ObserveExtraction(strategy, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ExtractionDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
	if code != "" {
		m.ExtractionErrors.WithLabelValues(code).Inc()
	}
}

// ObservePlan records the page tier and chosen strategy of one attempt.
func (m *Metrics) ObservePlan(pass, tier, strategy string) {
	if m == nil {
		return
	}
	m.PageQuality.WithLabelValues(tier).Inc()
	m.StrategyUsed.WithLabelValues(pass, strategy).Inc()
}

// ObserveBill records the outcome of one bill in a pass.
func (m *Metrics) ObserveBill(pass, outcome string) {
	if m == nil {
		return
	}
	m.BillsProcessed.WithLabelValues(pass, outcome).Inc()
}

// ObserveMapping records one mapping outcome.
func (m *Metrics) ObserveMapping(outcome string) {
	if m == nil {
		return
	}
	m.Mapping.WithLabelValues(outcome).Inc()
}
