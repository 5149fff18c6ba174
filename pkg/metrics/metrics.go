package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexus_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_db_slow_queries_total",
			Help: "Total number of database queries slower than the threshold",
		},
		[]string{"sql"},
	)

	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexus_mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// GitHub API 调用延迟（秒）
	GitHubAPIDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexus_github_api_duration_seconds",
			Help:    "GitHub REST API call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"endpoint", "status"},
	)

	// AI 调用延迟（毫秒）
	AICallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexus_ai_call_latency_ms",
			Help:    "Generative model call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"model", "status"},
	)

	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_github_webhook_deliveries_total",
			Help: "GitHub webhook deliveries by event and result",
		},
		[]string{"event", "result"},
	)

	LinkedCommits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_linked_commits_total",
			Help: "Commits linked to tasks, by source",
		},
		[]string{"source"}, // webhook / sync
	)

	BriefCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_brief_cache_total",
			Help: "Executive brief cache lookups",
		},
		[]string{"result"}, // hit / miss
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_events_published_total",
			Help: "Domain events published on the in-process bus",
		},
		[]string{"event"},
	)

	ListenerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_event_listener_failures_total",
			Help: "Event listener errors and recovered panics",
		},
		[]string{"listener", "event"},
	)
)

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementSlowQuery 记录慢查询
func IncrementSlowQuery(sql string, duration time.Duration) {
	SlowQueryCount.WithLabelValues(sql).Inc()
}

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

func RecordGitHubAPIDuration(endpoint, status string, duration time.Duration) {
	GitHubAPIDuration.WithLabelValues(endpoint, status).Observe(duration.Seconds())
}

func RecordAICallLatency(model, status string, duration time.Duration) {
	AICallLatency.WithLabelValues(model, status).Observe(float64(duration.Milliseconds()))
}

func IncrementWebhookDelivery(event, result string) {
	WebhookDeliveries.WithLabelValues(event, result).Inc()
}

func AddLinkedCommits(source string, n int) {
	if n > 0 {
		LinkedCommits.WithLabelValues(source).Add(float64(n))
	}
}

func IncrementBriefCache(result string) {
	BriefCache.WithLabelValues(result).Inc()
}

func IncrementEventPublished(event string) {
	EventsPublished.WithLabelValues(event).Inc()
}

func IncrementListenerFailure(listener, event string) {
	ListenerFailures.WithLabelValues(listener, event).Inc()
}
