// Package metrics provides Prometheus metrics for the spendo service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRunsTotal tracks sync invocations by provider and outcome
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spendo",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total number of sync runs by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// SyncDuration tracks sync duration in seconds
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "spendo",
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Duration of sync runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"provider"},
	)

	// HTTPRequestsTotal tracks outbound HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spendo",
			Subsystem: "http_client",
			Name:      "requests_total",
			Help:      "Total number of outbound HTTP requests",
		},
		[]string{"method", "status_code"},
	)

	// HTTPRequestDuration tracks outbound HTTP request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "spendo",
			Subsystem: "http_client",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound HTTP requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method"},
	)

	// UpstreamPagesTotal tracks fetched provider pages by result
	UpstreamPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spendo",
			Subsystem: "upstream",
			Name:      "pages_total",
			Help:      "Total number of provider pages fetched by result",
		},
		[]string{"provider", "result"},
	)

	// TokenRefreshes tracks access token refresh operations
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spendo",
			Subsystem: "auth",
			Name:      "token_refreshes_total",
			Help:      "Total number of access token refresh operations",
		},
		[]string{"provider", "status"},
	)

	// ReconcileRecords tracks reconciliation outcomes per record
	ReconcileRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spendo",
			Subsystem: "reconcile",
			Name:      "records_total",
			Help:      "Total number of reconciled records by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// RateLimitWaitTime tracks time spent waiting for upstream rate limits
	RateLimitWaitTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "spendo",
			Subsystem: "ratelimit",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for rate limits in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spendo",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// DatabaseQueryDuration tracks database query duration
	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "spendo",
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Duration of database queries in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)
)

// RecordSync records a finished sync run
func RecordSync(provider, outcome string, durationSeconds float64) {
	SyncRunsTotal.WithLabelValues(provider, outcome).Inc()
	SyncDuration.WithLabelValues(provider).Observe(durationSeconds)
}

// RecordHTTPRequest records an outbound HTTP request metric
func RecordHTTPRequest(method, statusCode string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(durationSeconds)
}

func RecordPage(provider, result string) {
	UpstreamPagesTotal.WithLabelValues(provider, result).Inc()
}

func RecordTokenRefresh(provider, status string) {
	TokenRefreshes.WithLabelValues(provider, status).Inc()
}

func RecordReconcile(kind, outcome string) {
	ReconcileRecords.WithLabelValues(kind, outcome).Inc()
}

func RecordRateLimitWait(provider string, waitSeconds float64) {
	RateLimitWaitTime.WithLabelValues(provider).Observe(waitSeconds)
}

func RecordKafkaPublish(topic, status string) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
}

func RecordQuery(operation string, durationSeconds float64) {
	DatabaseQueryDuration.WithLabelValues(operation).Observe(durationSeconds)
}
