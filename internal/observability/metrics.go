package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "counterctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "counterctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	invocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "counterctl",
			Subsystem: "engine",
			Name:      "invocations_total",
			Help:      "Counter instruction invocations by operation and outcome.",
		},
		[]string{"node", "operation", "outcome"},
	)
	invocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "counterctl",
			Subsystem: "engine",
			Name:      "invocation_duration_seconds",
			Help:      "Invocation duration including slot lock and commit.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 10),
		},
		[]string{"node", "operation"},
	)
	transportFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "counterctl",
			Subsystem: "transport",
			Name:      "frames_total",
			Help:      "Framed transport messages by direction and message type.",
		},
		[]string{"node", "direction", "message_type"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, invocations, invocationDuration, transportFrames)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordInvocation counts one engine invocation. outcome is "ok" or an
// error kind label.
func RecordInvocation(node, operation, outcome string, duration time.Duration) {
	RegisterMetrics()
	invocations.WithLabelValues(node, operation, outcome).Inc()
	invocationDuration.WithLabelValues(node, operation).Observe(duration.Seconds())
}

func RecordFrame(node, direction string, messageType uint32) {
	RegisterMetrics()
	transportFrames.WithLabelValues(node, direction, strconv.FormatUint(uint64(messageType), 10)).Inc()
}
