package mq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"planify-notification/pkg/metrics"
	"planify-notification/pkg/otel"
	"planify-notification/pkg/trace"
	"planify-notification/pkg/util"
)

// KafkaConsumerConfig Kafka 消费者配置
type KafkaConsumerConfig struct {
	Brokers []string
	GroupID string
	// MaxAttempts 可重试错误在本地重试的次数，用尽后写入 <topic>.dlq
	MaxAttempts int
	RetryDelay  time.Duration
}

// KafkaConsumer 以消费组订阅 router 中的全部 topic，处理完才提交 offset
type KafkaConsumer struct {
	reader *kafka.Reader
	dlq    *kafka.Writer
	router *Router
	cfg    KafkaConsumerConfig
	logger *zap.Logger
}

func NewKafkaConsumer(cfg KafkaConsumerConfig, router *Router, logger *zap.Logger) (*KafkaConsumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: router.Topics(),
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		StartOffset: kafka.FirstOffset,
	})

	dlq := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}

	logger.Info("Kafka consumer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("group_id", cfg.GroupID),
		zap.Strings("topics", router.Topics()),
	)

	return &KafkaConsumer{reader: reader, dlq: dlq, router: router, cfg: cfg, logger: logger}, nil
}

// Start 阻塞消费直到 ctx 结束
func (c *KafkaConsumer) Start(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Failed to commit offset",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
	}
}

func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message) {
	start := time.Now()
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	ctx = trace.Ensure(ctx, headers[trace.MessageHeader])
	ctx, span := otel.MQConsumeSpan(ctx, "kafka", msg.Topic, headers)
	defer span.End()

	log := c.logger.With(
		zap.String("topic", msg.Topic),
		zap.Int64("offset", msg.Offset),
		zap.String("trace_id", trace.FromContext(ctx)),
	)

	var err error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		err = c.router.Dispatch(ctx, msg.Topic, msg.Value)
		if err == nil || IsPoison(err) {
			break
		}
		if retryable, _ := util.IsRetryableError(err); !retryable || attempt == c.cfg.MaxAttempts {
			break
		}
		log.Warn("Handler error, retrying", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.RetryDelay * time.Duration(attempt)):
		}
	}
	metrics.RecordMQConsumeLatency(msg.Topic, "kafka", time.Since(start))

	if err == nil {
		return
	}

	span.SetStatus(codes.Error, err.Error())
	log.Error("Handler error, dead-lettering", zap.Error(err))
	dead := kafka.Message{
		Topic: msg.Topic + ".dlq",
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: "x-original-error", Value: []byte(err.Error())},
		),
	}
	if werr := c.dlq.WriteMessages(ctx, dead); werr != nil {
		log.Error("Failed to write dead letter", zap.Error(werr))
	}
}

func (c *KafkaConsumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Warn("Failed to close kafka reader", zap.Error(err))
	}
	if err := c.dlq.Close(); err != nil {
		c.logger.Warn("Failed to close kafka dlq writer", zap.Error(err))
	}
}

// KafkaPublisher 发布出站事件（outbox 使用）
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.LeastBytes{},
			BatchTimeout:           10 * time.Millisecond,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

// PublishWithContext 写入一条消息，topic 即路由键
func (p *KafkaPublisher) PublishWithContext(ctx context.Context, topic string, body []byte) error {
	ctx, span := otel.MQPublishSpan(ctx, "kafka", topic)
	defer span.End()

	carrier := map[string]string{}
	otel.Inject(ctx, carrier)
	if traceID := trace.FromContext(ctx); traceID != "" {
		carrier[trace.MessageHeader] = traceID
	}
	headers := make([]kafka.Header, 0, len(carrier))
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Value:   body,
		Headers: headers,
		Time:    time.Now(),
	})
}

// IsConnected kafka writer 按需建立连接
func (p *KafkaPublisher) IsConnected() bool {
	return p.writer != nil
}

func (p *KafkaPublisher) Close() {
	_ = p.writer.Close()
}
