// Package metrics holds the Prometheus instruments for bulk jobs and cost tracking.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fineprint"

// Metrics holds all service Prometheus metrics.
type Metrics struct {
	// Bulk queue
	JobsSubmitted      *prometheus.CounterVec
	JobsFinished       *prometheus.CounterVec
	DocumentsProcessed *prometheus.CounterVec
	DocumentDuration   prometheus.Histogram
	QueueDepth         prometheus.Gauge
	ActiveJobs         prometheus.Gauge

	// Cost ledger
	CostRecorded       *prometheus.CounterVec
	CacheSavings       prometheus.Counter
	BudgetAlerts       *prometheus.CounterVec
	CostTrackingErrors *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers every metric on reg. Use prometheus.NewRegistry() in tests to
// avoid duplicate registration.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{gatherer: reg}

	m.JobsSubmitted = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bulk_jobs_submitted_total",
		Help:      "Bulk analysis jobs accepted, by kind.",
	}, []string{"kind"})
	m.JobsFinished = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bulk_jobs_finished_total",
		Help:      "Bulk analysis jobs that reached a terminal status.",
	}, []string{"status"})
	m.DocumentsProcessed = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bulk_documents_processed_total",
		Help:      "Documents analyzed, by outcome.",
	}, []string{"outcome"})
	m.DocumentDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "bulk_document_duration_seconds",
		Help:      "Time to fetch and analyze a single document.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})
	m.QueueDepth = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "bulk_queue_depth",
		Help:      "Jobs waiting for a worker.",
	})
	m.ActiveJobs = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "bulk_jobs_processing",
		Help:      "Jobs currently being processed.",
	})

	m.CostRecorded = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cost_recorded_dollars_total",
		Help:      "Billable model spend, by user tier.",
	}, []string{"tier"})
	m.CacheSavings = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cost_cache_savings_dollars_total",
		Help:      "Spend avoided by serving cached analyses.",
	})
	m.BudgetAlerts = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cost_budget_alerts_total",
		Help:      "Budget alerts raised, by threshold percent.",
	}, []string{"threshold"})
	m.CostTrackingErrors = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cost_tracking_errors_total",
		Help:      "Cost ledger operations that failed and were swallowed.",
	}, []string{"operation"})

	return m
}

// ObserveDocument records one processed document.
func (m *Metrics) ObserveDocument(outcome string, took time.Duration) {
	m.DocumentsProcessed.WithLabelValues(outcome).Inc()
	m.DocumentDuration.Observe(took.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
