package api

import (
	"github.com/prometheus/client_golang/prometheus"
)

const httpAPIMetricsNamespace = "drinkd_http"

var (
	metricTotalRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: httpAPIMetricsNamespace,
			Name:      "total_hits",
			Help:      "HTTP API requests count",
		},
	)

	metricHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: httpAPIMetricsNamespace,
			Name:      "path_hits",
			Help:      "HTTP API hits by status and route",
		},
		[]string{"status", "path"},
	)

	metricRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: httpAPIMetricsNamespace,
			Name:      "path_duration",
			Help:      "HTTP API request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(
		metricTotalRequests,
		metricHits,
		metricRequestDuration,
	)
}
