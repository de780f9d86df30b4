// Package metrics provides the Prometheus registry and handler for the Fount client.
// All metrics are defined in their respective packages (client, ratelimit, pagination)
// to maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the Fount client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - fount_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - fount_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - fount_errors_total{class} (Counter): Errors by class (validation, client, not_found, rate_limit, server, network)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - fount_rate_limit_remaining (Gauge): Requests left in the current window
//   - fount_rate_limit_budget_rejections_total (Counter): Fetches rejected because the plan exceeded the budget
//
// Pagination Metrics (pkg/pagination):
//   - fount_pages_total{endpoint, outcome} (Counter): Pages by outcome (success, failure, discarded)
//   - fount_fetch_duration_seconds{endpoint} (Histogram): Duration of a whole paginated fetch
//   - fount_retries_total{error_class} (Counter): Page retry attempts by error class
//   - fount_retry_exhausted_total{error_class} (Counter): Pages that exhausted their retries
//
// Example Prometheus Queries:
//
//   # Page Failure Rate
//   sum(rate(fount_pages_total{outcome="failure"}[5m])) / sum(rate(fount_pages_total[5m]))
//
//   # Rate Limit Status
//   fount_rate_limit_remaining < 20
//
//   # Request Error Rate
//   rate(fount_errors_total[5m])
//
//   # P95 Fetch Latency
//   histogram_quantile(0.95, rate(fount_fetch_duration_seconds_bucket[5m]))
