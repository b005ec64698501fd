package main

import (
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"planify-notification/internal/config"
	"planify-notification/pkg/mq"
	"planify-notification/pkg/util"
)

func newPublisher(cfg *config.Config) (eventPublisher, error) {
	if cfg.MQ.IsKafka() {
		return mq.NewKafkaPublisher(cfg.MQ.Brokers), nil
	}
	return mq.NewPublisher(cfg.MQ.URL)
}

func newEventSource(cfg *config.Config, router *mq.Router, rdb *redis.Client, log *zap.Logger) (eventSource, error) {
	if cfg.MQ.IsKafka() {
		return mq.NewKafkaConsumer(mq.KafkaConsumerConfig{
			Brokers: cfg.MQ.Brokers,
			GroupID: cfg.MQ.GroupID,
		}, router, log)
	}

	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		URL:             cfg.MQ.URL,
		Queue:           cfg.MQ.Queue,
		Prefetch:        cfg.Consumer.Prefetch,
		MaxRedeliveries: cfg.Consumer.MaxRedeliveries,
	}, router, log)
	if err != nil {
		return nil, err
	}
	if rdb != nil {
		ttl := time.Duration(cfg.Consumer.RetryTTLMinutes) * time.Minute
		consumer.WithRetryCounter(util.NewRetryCounter(rdb, ttl))
	}
	return consumer, nil
}
