package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 通知分发结果计数
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_dispatch_total",
			Help: "Total number of notification dispatches by final status",
		},
		[]string{"status"}, // status: SENT, FAILED
	)

	// 各渠道尝试计数
	ChannelAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_channel_attempts_total",
			Help: "Total number of channel delivery attempts",
		},
		[]string{"channel", "result"}, // channel: push, email, sms; result: success, failure
	)

	// 在线推送连接数
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "push_active_connections",
			Help: "Number of live push sessions in this process",
		},
	)

	// 提醒批次执行次数
	ReminderRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_runs_total",
			Help: "Total number of reminder batch runs",
		},
		[]string{"result"}, // result: ok, error, busy
	)

	// 已发送提醒数
	RemindersSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reminders_sent_total",
			Help: "Total number of attendees marked as reminded",
		},
	)

	// 事件处理计数
	EventsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_events_handled_total",
			Help: "Total number of inbound domain events by outcome",
		},
		[]string{"topic", "result"}, // result: ok, duplicate, decode_error, error
	)

	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"topic", "source"},
	)

	// 用户目录调用延迟（毫秒）
	DirectoryCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "directory_call_latency_ms",
			Help:    "User directory call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10), // 5ms to ~5s
		},
		[]string{"status"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation"},
	)

	// 慢查询计数
	SlowQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_queries_total",
			Help: "Total number of queries above the slow threshold",
		},
		[]string{"operation"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)
)

// RecordDispatch 记录一次分发的最终状态
func RecordDispatch(status string) {
	DispatchTotal.WithLabelValues(status).Inc()
}

// RecordChannelAttempt 记录一次渠道尝试
func RecordChannelAttempt(channel string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	ChannelAttempts.WithLabelValues(channel, result).Inc()
}

// SetActiveConnections 设置在线连接数
func SetActiveConnections(n int64) {
	ActiveConnections.Set(float64(n))
}

// RecordReminderRun 记录提醒批次结果，sent 为本次标记发送的数量
func RecordReminderRun(result string, sent int) {
	ReminderRuns.WithLabelValues(result).Inc()
	if sent > 0 {
		RemindersSent.Add(float64(sent))
	}
}

// IncrementEventHandled 增加事件处理计数
func IncrementEventHandled(topic, result string) {
	EventsHandled.WithLabelValues(topic, result).Inc()
}

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(topic, source string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(topic, source).Observe(float64(duration.Milliseconds()))
}

// RecordDirectoryCallLatency 记录用户目录调用延迟
func RecordDirectoryCallLatency(status string, duration time.Duration) {
	DirectoryCallLatency.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncrementSlowQuery 增加慢查询计数
func IncrementSlowQuery(operation string) {
	SlowQueries.WithLabelValues(operation).Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
