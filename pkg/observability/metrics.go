// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the gateway.
package observability

import "github.com/prometheus/client_golang/prometheus"

// StreamBuckets defines histogram buckets for streamed completions,
// ranging from 100ms to the batch timeout.
var StreamBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 45}

var (
	// RequestsTotal counts HTTP requests by method, status class, and route.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamgate_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "route"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamgate_request_duration_seconds",
			Help:    "Request duration",
			Buckets: StreamBuckets,
		},
		[]string{"method", "route"},
	)

	// StreamingConnections tracks open SSE and WebSocket connections.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamgate_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// RelayStreamsTotal counts relayed streams by provider and outcome.
	RelayStreamsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamgate_relay_streams_total",
			Help: "Relayed streams by outcome",
		},
		[]string{"provider", "outcome"},
	)

	// RelayStreamDuration records time from request issue to terminal event.
	RelayStreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamgate_relay_stream_duration_seconds",
			Help:    "Relayed stream duration",
			Buckets: StreamBuckets,
		},
		[]string{"provider"},
	)

	// RelayDeltasTotal counts delta events forwarded to callers.
	RelayDeltasTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamgate_relay_deltas_total",
			Help: "Delta events forwarded",
		},
		[]string{"provider"},
	)

	// RelayMalformedFramesTotal counts frames skipped because they were not
	// valid JSON.
	RelayMalformedFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamgate_relay_malformed_frames_total",
			Help: "Malformed upstream frames skipped",
		},
		[]string{"provider"},
	)

	// UpstreamResponsesTotal counts upstream HTTP responses by status class.
	UpstreamResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamgate_upstream_responses_total",
			Help: "Upstream responses",
		},
		[]string{"provider", "status"},
	)

	// BreakerState reports each upstream circuit breaker's state
	// (0 closed, 1 half-open, 2 open).
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "streamgate_upstream_breaker_state",
			Help: "Circuit breaker state per upstream",
		},
		[]string{"upstream"},
	)

	// QueueActive is the number of tasks currently running.
	QueueActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamgate_queue_active",
			Help: "Active batch tasks",
		},
	)

	// QueueWaiting is the number of tasks waiting for a slot.
	QueueWaiting = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamgate_queue_waiting",
			Help: "Waiting batch tasks",
		},
	)

	// QueueLimit is the last resolved concurrency limit.
	QueueLimit = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamgate_queue_limit",
			Help: "Resolved batch concurrency limit",
		},
	)

	// QueueTasksTotal counts tasks leaving the wait list by result
	// (started, canceled).
	QueueTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamgate_queue_tasks_total",
			Help: "Batch tasks by result",
		},
		[]string{"result"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamgate_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)

	// ConfigReloadsTotal counts configuration reloads by result.
	ConfigReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamgate_config_reloads_total",
			Help: "Configuration reloads",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		RelayStreamsTotal,
		RelayStreamDuration,
		RelayDeltasTotal,
		RelayMalformedFramesTotal,
		UpstreamResponsesTotal,
		BreakerState,
		QueueActive,
		QueueWaiting,
		QueueLimit,
		QueueTasksTotal,
		RateLimitRejectedTotal,
		ConfigReloadsTotal,
	)
}

// StatusClass returns a status class label such as "2xx".
func StatusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
