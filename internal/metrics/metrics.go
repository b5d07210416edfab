// Package metrics exposes Prometheus metrics for the curator pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all curator Prometheus metrics.
type Metrics struct {
	// Ingestion
	FetchesTotal  *prometheus.CounterVec
	FetchErrors   *prometheus.CounterVec
	ItemsIngested *prometheus.CounterVec
	FetchDuration prometheus.Histogram

	// AI tasks
	TasksExecuted *prometheus.CounterVec
	TaskDuration  prometheus.Histogram

	// Scoring and review
	ContentProcessed prometheus.Counter
	ReviewsApplied   *prometheus.CounterVec

	// Digests
	DigestsBuilt prometheus.Counter

	registry *prometheus.Registry
}

// New creates the metric set on a service-local registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		FetchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "curator_fetches_total",
			Help: "Source fetches by source type and outcome",
		}, []string{"source_type", "outcome"}),
		FetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "curator_fetch_errors_total",
			Help: "Source fetch failures by error kind",
		}, []string{"kind"}),
		ItemsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "curator_items_ingested_total",
			Help: "Content rows created by source type",
		}, []string{"source_type"}),
		FetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "curator_fetch_duration_seconds",
			Help:    "Source fetch duration",
			Buckets: prometheus.DefBuckets,
		}),
		TasksExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "curator_tasks_executed_total",
			Help: "AI task executions by type and outcome",
		}, []string{"type", "outcome"}),
		TaskDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "curator_task_duration_seconds",
			Help:    "AI task execution duration",
			Buckets: prometheus.DefBuckets,
		}),
		ContentProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "curator_content_processed_total",
			Help: "Content items moved to PROCESSED",
		}),
		ReviewsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "curator_reviews_applied_total",
			Help: "Accepted review actions by action",
		}, []string{"action"}),
		DigestsBuilt: factory.NewCounter(prometheus.CounterOpts{
			Name: "curator_digests_built_total",
			Help: "Daily digest builds",
		}),
		registry: registry,
	}
}

// Handler returns the Prometheus scrape handler for the local registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
