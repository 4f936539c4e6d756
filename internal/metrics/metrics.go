// Package metrics exposes Prometheus collectors for tracking runs.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the tracker.
type Metrics struct {
	Registry         *prometheus.Registry
	RunsTotal        prometheus.Counter
	RunDuration      prometheus.Histogram
	URLsTotal        *prometheus.CounterVec
	PageLoadDuration prometheus.Histogram
	FieldMissesTotal *prometheus.CounterVec
	AlertsTotal      prometheus.Counter
	NotifyErrors     prometheus.Counter
	LastPrice        *prometheus.GaugeVec
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	runs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dealhound_runs_total",
		Help: "Total number of tracking runs started.",
	})
	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dealhound_run_duration_seconds",
		Help:    "Wall-clock duration of tracking runs.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
	urls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealhound_urls_total",
			Help: "URLs processed by final state.",
		},
		[]string{"outcome"},
	)
	pageLoad := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dealhound_page_load_duration_seconds",
		Help:    "Time spent navigating to product pages.",
		Buckets: prometheus.DefBuckets,
	})
	misses := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealhound_field_misses_total",
			Help: "Fields that could not be extracted, by field.",
		},
		[]string{"field"},
	)
	alerts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dealhound_alerts_total",
		Help: "Price alerts fired.",
	})
	notifyErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dealhound_notify_errors_total",
		Help: "Alert deliveries that failed.",
	})
	lastPrice := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dealhound_last_price",
			Help: "Most recent price read per URL.",
		},
		[]string{"url"},
	)

	registry.MustRegister(runs, runDuration, urls, pageLoad, misses, alerts, notifyErrors, lastPrice)

	return &Metrics{
		Registry:         registry,
		RunsTotal:        runs,
		RunDuration:      runDuration,
		URLsTotal:        urls,
		PageLoadDuration: pageLoad,
		FieldMissesTotal: misses,
		AlertsTotal:      alerts,
		NotifyErrors:     notifyErrors,
		LastPrice:        lastPrice,
	}
}

func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.RunsTotal.Inc()
}

func (m *Metrics) RunFinished(d time.Duration) {
	if m == nil {
		return
	}
	m.RunDuration.Observe(d.Seconds())
}

// URLFinished counts a URL under its terminal state ("done" or "errored").
func (m *Metrics) URLFinished(outcome string) {
	if m == nil {
		return
	}
	m.URLsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObservePageLoad(d time.Duration) {
	if m == nil {
		return
	}
	m.PageLoadDuration.Observe(d.Seconds())
}

func (m *Metrics) FieldMissed(field string) {
	if m == nil {
		return
	}
	m.FieldMissesTotal.WithLabelValues(field).Inc()
}

func (m *Metrics) AlertFired() {
	if m == nil {
		return
	}
	m.AlertsTotal.Inc()
}

func (m *Metrics) NotifyFailed() {
	if m == nil {
		return
	}
	m.NotifyErrors.Inc()
}

func (m *Metrics) SetLastPrice(url string, price float64) {
	if m == nil {
		return
	}
	m.LastPrice.WithLabelValues(url).Set(price)
}
