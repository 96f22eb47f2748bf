// Package metrics exposes Prometheus counters for the ingestion
// pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's instrumentation. One instance per
// process; registered on a dedicated registry so tests can build their
// own without collisions.
type Metrics struct {
	registry *prometheus.Registry

	DocumentsProcessed   *prometheus.CounterVec
	DocumentsQuarantined *prometheus.CounterVec
	NodesUpserted        prometheus.Counter
	RelationshipsCreated prometheus.Counter
	StageDuration        *prometheus.HistogramVec
}

// New builds and registers the pipeline metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		DocumentsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "registrygraph",
			Name:      "documents_processed_total",
			Help:      "Documents by terminal ingestion status.",
		}, []string{"status"}),
		DocumentsQuarantined: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "registrygraph",
			Name:      "documents_quarantined_total",
			Help:      "Quarantined documents by failure category.",
		}, []string{"category"}),
		NodesUpserted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "registrygraph",
			Name:      "nodes_upserted_total",
			Help:      "Graph nodes written.",
		}),
		RelationshipsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "registrygraph",
			Name:      "relationships_created_total",
			Help:      "Graph relationships written.",
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "registrygraph",
			Name:      "stage_duration_seconds",
			Help:      "Per-stage processing time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
	}
}

// ObserveStage records one stage duration.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Handler serves the metrics over HTTP.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
