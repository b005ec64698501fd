package mq

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"planify-notification/pkg/metrics"
	"planify-notification/pkg/otel"
	"planify-notification/pkg/trace"
	"planify-notification/pkg/util"
)

// ConsumerConfig RabbitMQ 消费者配置
type ConsumerConfig struct {
	URL      string
	Queue    string
	Prefetch int
	// MaxRedeliveries 可重试错误最多重新入队的次数，需要 RetryCounter
	MaxRedeliveries int64
}

// Consumer 把 router 中的每个 topic 绑定到同一个持久队列
type Consumer struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	queue   amqp091.Queue
	router  *Router
	retries *util.RetryCounter
	cfg     ConsumerConfig
	logger  *zap.Logger
}

// NewConsumer 声明 exchange、死信 exchange/队列、消费队列并按 router 的 topic 绑定
func NewConsumer(cfg ConsumerConfig, router *Router, logger *zap.Logger) (*Consumer, error) {
	conn, err := NewConnection(cfg.URL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	c := &Consumer{conn: conn, channel: ch, router: router, cfg: cfg, logger: logger}
	if err := c.setup(); err != nil {
		c.Close()
		return nil, err
	}

	logger.Info("Consumer initialized",
		zap.Strings("topics", router.Topics()),
		zap.String("queue", cfg.Queue),
		zap.String("exchange", ExchangeName),
	)
	return c, nil
}

func (c *Consumer) setup() error {
	if err := DeclareExchange(c.channel); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	if err := declareDeadLetter(c.channel, c.cfg.Queue); err != nil {
		return err
	}

	q, err := c.channel.QueueDeclare(
		c.cfg.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		deadLetterArgs(),
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	c.queue = q

	for _, topic := range c.router.Topics() {
		if err := c.channel.QueueBind(q.Name, topic, ExchangeName, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue to %s: %w", topic, err)
		}
	}

	if c.cfg.Prefetch > 0 {
		if err := c.channel.Qos(c.cfg.Prefetch, 0, false); err != nil {
			return fmt.Errorf("failed to set qos: %w", err)
		}
	}
	return nil
}

// WithRetryCounter 启用基于 Redis 的重新投递计数
func (c *Consumer) WithRetryCounter(rc *util.RetryCounter) *Consumer {
	c.retries = rc
	return c
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// Start 阻塞消费直到 ctx 结束或连接关闭，应在 goroutine 中调用
func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.channel.ConsumeWithContext(ctx,
		c.queue.Name,
		"notification-service",
		false, // 手动ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming messages", zap.String("queue", c.queue.Name))

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.handle(ctx, msg)
		}
	}
}

// ackAction 消息处理后的确认方式
type ackAction int

const (
	actionAck ackAction = iota
	actionRequeue
	actionDeadLetter
)

// decide 根据处理结果决定 ack / 重新入队 / 死信
// redeliveries 为已重新投递次数，-1 表示未知
func decide(err error, redeliveries, maxRedeliveries int64) (ackAction, string) {
	if err == nil {
		return actionAck, ""
	}
	if IsPoison(err) {
		return actionDeadLetter, "poison"
	}
	retryable, kind := util.IsRetryableError(err)
	if !retryable {
		return actionDeadLetter, kind
	}
	if redeliveries >= 0 && maxRedeliveries > 0 && !util.ShouldRetry(redeliveries, maxRedeliveries, true) {
		return actionDeadLetter, "max_redeliveries"
	}
	return actionRequeue, kind
}

// handle 保证每条消息都会被 ack 或 nack
func (c *Consumer) handle(ctx context.Context, msg amqp091.Delivery) {
	start := time.Now()
	topic := msg.RoutingKey
	headers := headersToStrings(msg.Headers)

	ctx = trace.Ensure(ctx, headers[trace.MessageHeader])
	ctx, span := otel.MQConsumeSpan(ctx, "rabbitmq", topic, headers)
	defer span.End()

	log := c.logger.With(
		zap.String("topic", topic),
		zap.String("trace_id", trace.FromContext(ctx)),
	)
	log.Debug("Received message", zap.Int("message_size", len(msg.Body)))

	err := c.router.Dispatch(ctx, topic, msg.Body)
	metrics.RecordMQConsumeLatency(topic, "rabbitmq", time.Since(start))

	var redeliveries int64 = -1
	if err != nil && c.retries != nil {
		if n, cerr := c.retries.IncrementAndGet(ctx, util.FormatRetryKey(topic, messageID(msg))); cerr == nil {
			redeliveries = n
		}
	}

	action, kind := decide(err, redeliveries, c.cfg.MaxRedeliveries)
	switch action {
	case actionAck:
		if aerr := msg.Ack(false); aerr != nil {
			log.Error("Failed to ack message", zap.Error(aerr))
		}
	case actionRequeue:
		span.SetStatus(codes.Error, err.Error())
		log.Warn("Handler error, requeueing", zap.String("error_type", kind), zap.Error(err))
		if nerr := msg.Nack(false, true); nerr != nil {
			log.Error("Failed to nack message", zap.Error(nerr))
		}
	case actionDeadLetter:
		span.SetStatus(codes.Error, err.Error())
		log.Error("Handler error, dead-lettering", zap.String("error_type", kind), zap.Error(err))
		if nerr := msg.Nack(false, false); nerr != nil {
			log.Error("Failed to nack message", zap.Error(nerr))
		}
	}
}

// messageID 优先使用 MessageId，否则使用消息体摘要
func messageID(msg amqp091.Delivery) string {
	if msg.MessageId != "" {
		return msg.MessageId
	}
	sum := sha256.Sum256(msg.Body)
	return hex.EncodeToString(sum[:8])
}
