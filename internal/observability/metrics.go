// Package observability provides Prometheus metrics and HTTP middleware for
// monitoring the chat relay.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets covers upstream latencies from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts HTTP requests by route and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_relay_requests_total",
			Help: "Total requests",
		},
		[]string{"route", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by route.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_relay_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"route"},
	)

	// StreamingConnections tracks chat streams currently being relayed.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_relay_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// ValidationFailuresTotal counts rejected chat payloads by error code.
	ValidationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_relay_validation_failures_total",
			Help: "Validation failures",
		},
		[]string{"code"},
	)

	// UpstreamRequestsTotal counts upstream completion calls by model and outcome.
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_relay_upstream_requests_total",
			Help: "Upstream requests",
		},
		[]string{"model", "outcome"},
	)

	// UpstreamFirstFragmentLatency records time until the first relayed fragment.
	UpstreamFirstFragmentLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_relay_upstream_first_fragment_seconds",
			Help:    "Time to first fragment",
			Buckets: LLMBuckets,
		},
		[]string{"model"},
	)

	// FragmentsTotal counts text fragments forwarded to callers.
	FragmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_relay_fragments_total",
			Help: "Forwarded fragments",
		},
		[]string{"model"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		ValidationFailuresTotal,
		UpstreamRequestsTotal,
		UpstreamFirstFragmentLatency,
		FragmentsTotal,
	)
}
