package apiclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for outbound API calls. One
// Metrics is shared by every Client derived from the same root.
type Metrics struct {
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	evictions prometheus.Counter
}

// NewMetrics registers the client collectors with reg. A nil reg uses
// prometheus.DefaultRegisterer.
//
// Metrics collected:
//   - folio_api_requests_total: requests by method and status ("error" on transport failure)
//   - folio_api_request_duration_seconds: request latency by method
//   - folio_token_evictions_total: tokens cleared after a 401
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "folio",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of library API requests",
		}, []string{"method", "status"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "folio",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Library API request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		evictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "folio",
			Name:      "token_evictions_total",
			Help:      "Total number of stored tokens cleared after an unauthorized response",
		}),
	}
}
