// Package metrics exposes Prometheus instrumentation for the game backend.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors
type Metrics struct {
	registry *prometheus.Registry

	LoginsTotal       prometheus.Counter
	RecordsIngested   prometheus.Counter
	RecordsRejected   prometheus.Counter
	ReconcileRuns     prometheus.Counter
	ReconcileRepaired prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates the service metrics on a private registry
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		LoginsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tapi",
			Name:      "logins_total",
			Help:      "Total login requests accepted.",
		}),
		RecordsIngested: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tapi",
			Name:      "records_ingested_total",
			Help:      "Game records written together with an aggregate update.",
		}),
		RecordsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tapi",
			Name:      "records_rejected_total",
			Help:      "Record submissions rejected before any write.",
		}),
		ReconcileRuns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tapi",
			Name:      "reconcile_runs_total",
			Help:      "Aggregate reconciliation cycles completed.",
		}),
		ReconcileRepaired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tapi",
			Name:      "reconcile_repaired_rows_total",
			Help:      "Aggregate rows corrected by reconciliation.",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tapi",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tapi",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Handler returns the /metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one handled HTTP request
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
