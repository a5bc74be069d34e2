package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "friendgraph_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "friendgraph_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	httpSignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "friendgraph_http_signals_total",
			Help: "Friend operation outcomes returned over HTTP, by signal.",
		},
		[]string{"route", "signal"},
	)
	repairsPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "friendgraph_repairs_pending",
			Help: "Half applied friend operations waiting for the reconciler.",
		},
	)
	auditEventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "friendgraph_audit_events_published_total",
			Help: "Total number of audit events published.",
		},
		[]string{"level"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "friendgraph_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
	metricsOnce sync.Once
)

func InitMetrics(reg prometheus.Registerer) {
	metricsOnce.Do(func() {
		reg.MustRegister(
			httpRequestsTotal,
			httpRequestDuration,
			httpSignalsTotal,
			repairsPending,
			auditEventsPublishedTotal,
			amqpPublishErrorsTotal,
		)
	})
}

// RecordHTTPRequest counts a request; signal is empty for routes outside the friend graph.
func RecordHTTPRequest(method, route string, status int, signal string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
	if signal != "" {
		httpSignalsTotal.WithLabelValues(route, signal).Inc()
	}
}

func SetRepairsPending(n int) {
	repairsPending.Set(float64(n))
}

func IncAuditEventPublished(level string) {
	if level == "" {
		level = "unknown"
	}
	auditEventsPublishedTotal.WithLabelValues(level).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
