// Package metrics provides the centralized Prometheus metrics registry for
// the query client. All metrics are defined in their respective packages
// (client, query, cache, ratelimit) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the query client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - mwq_server_lag_seconds (Gauge): Replication lag reported by the last maxlag error
//   - mwq_rate_limit_blocks_total (Counter): Requests blocked by an active Retry-After deadline
//   - mwq_rate_limit_throttles_total (Counter): Requests throttled due to server lag
//
// Cache Metrics (pkg/cache):
//   - mwq_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - mwq_cache_misses_total (Counter): Cache misses
//   - mwq_cache_size_bytes{layer="redis"} (Gauge): Current cache size in bytes
//   - mwq_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - mwq_requests_total{operation, status} (Counter): Total requests by query module and status
//   - mwq_request_duration_seconds{operation} (Histogram): Request duration by query module
//   - mwq_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - mwq_retries_total{error_class} (Counter): Retry attempts by error class
//   - mwq_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - mwq_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Query Engine Metrics (pkg/query):
//   - mwq_query_steps_total{operation} (Counter): Continuation steps by query module
//   - mwq_continuation_limit_total{operation} (Counter): Continuation safety-net trips
//   - mwq_batch_chunks_total{operation, outcome} (Counter): Chunks processed by batch queries
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(mwq_cache_hits_total[5m])) /
//   (sum(rate(mwq_cache_hits_total[5m])) + sum(rate(mwq_cache_misses_total[5m])))
//
//   # Replication Lag Pressure
//   mwq_server_lag_seconds > 5
//
//   # Request Error Rate
//   rate(mwq_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(mwq_request_duration_seconds_bucket[5m]))
//
//   # Continuation Steps per Batch Chunk
//   rate(mwq_query_steps_total[5m]) / rate(mwq_batch_chunks_total[5m])
