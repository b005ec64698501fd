package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper 基于 Redis SETNX 的事件去重
type Deduper struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

// NewDeduper logger 可以为 nil
func NewDeduper(rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *Deduper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// DedupKey 去重键格式 dedup:<topic>:<key>
func DedupKey(topic, key string) string {
	return fmt.Sprintf("dedup:%s:%s", topic, key)
}

// AcquireOnce 第一次处理返回 true，重复返回 false
// Redis 不可用时不阻止处理，返回 true
func (d *Deduper) AcquireOnce(ctx context.Context, topic, key string) bool {
	dedupKey := DedupKey(topic, key)

	ok, err := d.rdb.SetNX(ctx, dedupKey, 1, d.ttl).Result()
	if err != nil {
		d.logger.Warn("Redis dedup check failed, allowing processing",
			zap.String("topic", topic),
			zap.String("key", key),
			zap.Error(err),
		)
		return true
	}

	if !ok {
		d.logger.Info("Skipped duplicated event",
			zap.String("topic", topic),
			zap.String("dedup_key", dedupKey),
		)
	}
	return ok
}

// Release 处理失败需要重新投递时释放去重键
func (d *Deduper) Release(ctx context.Context, topic, key string) {
	if err := d.rdb.Del(ctx, DedupKey(topic, key)).Err(); err != nil {
		d.logger.Warn("Failed to release dedup key",
			zap.String("topic", topic),
			zap.String("key", key),
			zap.Error(err),
		)
	}
}
