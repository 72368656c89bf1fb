package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		},
		[]string{"routing_key", "queue"},
	)

	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Statements slower than the configured threshold",
		},
		[]string{"operation"},
	)

	SlowQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_slow_query_duration_seconds",
			Help:    "Duration of slow statements in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8),
		},
		[]string{"operation"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)

	// WorkflowTransitions counts submission state changes by resulting status.
	WorkflowTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_transitions_total",
			Help: "Submission state transitions",
		},
		[]string{"transition"}, // submitted, approved, queried
	)

	WorkflowRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_rejections_total",
			Help: "Workflow operations refused, by error kind",
		},
		[]string{"operation", "kind"},
	)

	EvidenceUploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "evidence_upload_bytes_total",
			Help: "Bytes of evidence written to the blob store",
		},
	)

	OutboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_published_total",
			Help: "Outbox events handed to the broker",
		},
		[]string{"routing_key", "result"}, // result: sent, failed
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Notifications delivered per channel",
		},
		[]string{"channel", "status"},
	)
)

func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

func IncrementSlowQuery(operation string, duration time.Duration) {
	SlowQueryCount.WithLabelValues(operation).Inc()
	SlowQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func IncrementWorkflowTransition(transition string) {
	WorkflowTransitions.WithLabelValues(transition).Inc()
}

func IncrementWorkflowRejection(operation, kind string) {
	WorkflowRejections.WithLabelValues(operation, kind).Inc()
}

func AddEvidenceBytes(n int64) {
	EvidenceUploadBytes.Add(float64(n))
}

func IncrementOutboxPublished(routingKey, result string) {
	OutboxPublished.WithLabelValues(routingKey, result).Inc()
}

func IncrementNotificationSent(channel, status string) {
	NotificationsSent.WithLabelValues(channel, status).Inc()
}
