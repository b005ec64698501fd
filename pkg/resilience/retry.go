package resilience

import (
	"context"
	"math/rand"
	"time"
)

// Retry 有限次数的指数退避重试（带抖动）
type Retry struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// ShouldRetry 为 nil 时所有错误都重试
	ShouldRetry func(err error) bool

	sleep func(ctx context.Context, d time.Duration) error
}

// Do 执行 fn，直到成功、错误不可重试、次数用尽或 ctx 结束
func (r Retry) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := r.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == attempts || (r.ShouldRetry != nil && !r.ShouldRetry(err)) {
			return err
		}
		if serr := sleep(ctx, r.backoff(attempt)); serr != nil {
			return err
		}
	}
	return err
}

// backoff base * 2^(attempt-1)，±25% 抖动，不超过 MaxDelay
func (r Retry) backoff(attempt int) time.Duration {
	if r.BaseDelay <= 0 {
		return 0
	}
	d := r.BaseDelay << (attempt - 1)
	if d <= 0 {
		d = r.MaxDelay
	}
	if q := int64(d / 4); q > 0 {
		d += time.Duration(rand.Int63n(2*q) - q)
	}
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
