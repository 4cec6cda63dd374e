// Package metrics defines the Prometheus instruments for routing, task
// execution, and ingestion.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RoutingDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helmsman_routing_decisions_total",
			Help: "Total routing decisions made",
		},
		[]string{"intent", "model", "fallback"},
	)

	RoutingFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helmsman_routing_failures_total",
			Help: "Total routing calls that found no model",
		},
		[]string{"intent"},
	)

	RoutingConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "helmsman_routing_confidence",
			Help:    "Confidence of routing decisions",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "helmsman_task_duration_seconds",
			Help:    "Task execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"lane", "status"},
	)

	TasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helmsman_tasks_total",
			Help: "Total tasks executed",
		},
		[]string{"lane", "status"},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "helmsman_queue_depth",
			Help: "Number of tasks currently held per lane",
		},
		[]string{"lane"},
	)

	DocumentsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helmsman_documents_ingested_total",
			Help: "Total documents ingested",
		},
		[]string{"status"},
	)

	ChunksEmbedded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "helmsman_chunks_embedded_total",
			Help: "Total chunks embedded during ingestion",
		},
	)

	IngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "helmsman_ingest_duration_seconds",
			Help:    "Document ingestion duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 300},
		},
	)

	SearchResults = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "helmsman_search_results_count",
			Help:    "Number of results returned per search",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)
)

// Init registers every instrument with the default registry. Call once at
// startup.
func Init() {
	prometheus.MustRegister(RoutingDecisions)
	prometheus.MustRegister(RoutingFailures)
	prometheus.MustRegister(RoutingConfidence)
	prometheus.MustRegister(TaskDuration)
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(DocumentsIngested)
	prometheus.MustRegister(ChunksEmbedded)
	prometheus.MustRegister(IngestDuration)
	prometheus.MustRegister(SearchResults)
}

// Handler serves the /metrics scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
