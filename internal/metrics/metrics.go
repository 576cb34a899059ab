// Package metrics defines the Prometheus collectors for worker lifecycle
// activity and the HTTP surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds every metric the process exports.
type Collector struct {
	WorkersRunning prometheus.Gauge
	WorkerStarts   prometheus.Counter
	WorkerStops    prometheus.Counter
	WorkerFailures prometheus.Counter
	BotsExpired    prometheus.Counter

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewCollector registers all metrics against reg. Tests pass a fresh
// prometheus.NewRegistry to stay isolated.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		WorkersRunning: factory.NewGauge(prometheus.GaugeOpts{
			Name: "botforge_workers_running",
			Help: "Number of bot workers currently registered.",
		}),
		WorkerStarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "botforge_worker_starts_total",
			Help: "Total worker starts.",
		}),
		WorkerStops: factory.NewCounter(prometheus.CounterOpts{
			Name: "botforge_worker_stops_total",
			Help: "Total worker stops.",
		}),
		WorkerFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "botforge_worker_failures_total",
			Help: "Total worker start failures.",
		}),
		BotsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "botforge_bots_expired_total",
			Help: "Total bots moved to expired by the sweeper.",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "botforge_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "botforge_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}
