package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for paginated fetches.
var (
	fountPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fount_pages_total",
		Help: "Total pages fetched by endpoint and outcome (success, failure, discarded)",
	}, []string{"endpoint", "outcome"})

	fountFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fount_fetch_duration_seconds",
		Help:    "Duration of a complete paginated fetch by endpoint",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"endpoint"})

	fountRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fount_retries_total",
		Help: "Total page request retries by error class",
	}, []string{"error_class"})

	fountRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fount_retry_exhausted_total",
		Help: "Total page requests that failed after all retries by error class",
	}, []string{"error_class"})
)
