package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"planify-notification/pkg/trace"
)

// Store Dispatcher 需要的 outbox 操作
type Store interface {
	GetPendingEvents(ctx context.Context, limit int) ([]*Event, error)
	MarkAsSent(ctx context.Context, eventID int64) error
	MarkAsFailed(ctx context.Context, eventID int64, maxRetries int) error
	PurgeSent(ctx context.Context, before time.Time) (int64, error)
}

// Publisher RabbitMQ 或 Kafka 发布者
type Publisher interface {
	PublishWithContext(ctx context.Context, routingKey string, body []byte) error
}

// Dispatcher 从 outbox 中读取事件并发布到 MQ
type Dispatcher struct {
	store      Store
	publisher  Publisher
	logger     *zap.Logger
	maxRetries int
	interval   time.Duration
	batchSize  int
	retention  time.Duration
	lastPurge  time.Time
}

// NewDispatcher 默认最多重试 5 次，每秒扫描，每批 100 条，已发送事件保留 7 天
func NewDispatcher(store Store, publisher Publisher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:      store,
		publisher:  publisher,
		logger:     logger,
		maxRetries: 5,
		interval:   time.Second,
		batchSize:  100,
		retention:  7 * 24 * time.Hour,
	}
}

// WithMaxRetries 设置最大重试次数
func (d *Dispatcher) WithMaxRetries(maxRetries int) *Dispatcher {
	if maxRetries > 0 {
		d.maxRetries = maxRetries
	}
	return d
}

// WithInterval 设置扫描间隔
func (d *Dispatcher) WithInterval(interval time.Duration) *Dispatcher {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// WithBatchSize 设置批次大小
func (d *Dispatcher) WithBatchSize(batchSize int) *Dispatcher {
	if batchSize > 0 {
		d.batchSize = batchSize
	}
	return d
}

// WithRetention 设置已发送事件的保留时间，0 表示不清理
func (d *Dispatcher) WithRetention(retention time.Duration) *Dispatcher {
	d.retention = retention
	return d
}

// Start 阻塞运行直到 ctx 结束
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Starting Outbox Dispatcher",
		zap.Int("max_retries", d.maxRetries),
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Outbox Dispatcher stopped")
			return
		case <-ticker.C:
			d.processPendingEvents(ctx)
			d.purge(ctx, time.Now())
		}
	}
}

// processPendingEvents 发布一批事件，返回成功条数
func (d *Dispatcher) processPendingEvents(ctx context.Context) int {
	events, err := d.store.GetPendingEvents(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("Failed to get pending events", zap.Error(err))
		return 0
	}

	sent := 0
	for _, event := range events {
		if err := d.publishEvent(ctx, event); err != nil {
			d.logger.Error("Failed to publish event",
				zap.Int64("event_id", event.ID),
				zap.String("routing_key", event.RoutingKey),
				zap.Error(err),
			)
			if err := d.store.MarkAsFailed(ctx, event.ID, d.maxRetries); err != nil {
				d.logger.Error("Failed to mark event as failed",
					zap.Int64("event_id", event.ID),
					zap.Error(err),
				)
			}
			continue
		}

		if err := d.store.MarkAsSent(ctx, event.ID); err != nil {
			d.logger.Error("Failed to mark event as sent",
				zap.Int64("event_id", event.ID),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	return sent
}

// purge 每小时最多清理一次
func (d *Dispatcher) purge(ctx context.Context, now time.Time) {
	if d.retention <= 0 || now.Sub(d.lastPurge) < time.Hour {
		return
	}
	d.lastPurge = now
	n, err := d.store.PurgeSent(ctx, now.Add(-d.retention))
	if err != nil {
		d.logger.Warn("Failed to purge sent events", zap.Error(err))
		return
	}
	if n > 0 {
		d.logger.Info("Purged sent outbox events", zap.Int64("count", n))
	}
}

// publishEvent payload 中的 trace_id 会带到消息头
func (d *Dispatcher) publishEvent(ctx context.Context, event *Event) error {
	var meta struct {
		TraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(event.Payload, &meta); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if meta.TraceID != "" {
		ctx = trace.WithContext(ctx, meta.TraceID)
	}

	if err := d.publisher.PublishWithContext(ctx, event.RoutingKey, event.Payload); err != nil {
		return fmt.Errorf("failed to publish to MQ: %w", err)
	}
	return nil
}
