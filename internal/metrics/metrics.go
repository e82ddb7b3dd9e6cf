// Package metrics defines the gateway's Prometheus instrumentation,
// adapted from the teacher's internal/registry/handler/metrics.go
// (package-level promauto collectors + a Gin middleware + a metrics
// handler), generalized to Loom's own surfaces.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loom_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loom_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	providerProxyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loom_provider_proxy_duration_seconds",
		Help:    "Upstream provider proxy call duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "status"})

	tracesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loom_traces_dropped_total",
		Help: "Total trace events dropped by the trace recorder's bounded queue.",
	})

	tracesRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loom_traces_recorded_total",
		Help: "Total trace events successfully flushed to the trace store.",
	}, []string{"result"})

	snapshotsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loom_conversation_snapshots_created_total",
		Help: "Total conversation snapshots created by the summariser.",
	})

	mcpRoundTripsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loom_mcp_round_trips_total",
		Help: "Total MCP tool-call round trips by result.",
	}, []string{"result"})
)

// Middleware returns a Gin middleware that records per-request metrics
// (spec §5 observability of the concurrency model).
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		requestsTotal.WithLabelValues(method, path, status).Inc()
		requestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// Handler serves the Prometheus exposition format.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordProviderProxy records one upstream provider call's duration.
func RecordProviderProxy(provider, status string, seconds float64) {
	providerProxyDuration.WithLabelValues(provider, status).Observe(seconds)
}

// RecordTraceDropped increments the dropped-trace counter (spec §4.9's
// drop-oldest eviction metric).
func RecordTraceDropped() {
	tracesDroppedTotal.Inc()
}

// RecordTraceFlushed records a trace batch-flush outcome.
func RecordTraceFlushed(success bool, count int) {
	result := "success"
	if !success {
		result = "failure"
	}
	tracesRecordedTotal.WithLabelValues(result).Add(float64(count))
}

// RecordSnapshotCreated increments the snapshot-creation counter.
func RecordSnapshotCreated() {
	snapshotsCreatedTotal.Inc()
}

// RecordMCPRoundTrip records an MCP round-trip outcome.
func RecordMCPRoundTrip(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	mcpRoundTripsTotal.WithLabelValues(result).Inc()
}
