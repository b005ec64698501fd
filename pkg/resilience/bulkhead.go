package resilience

import (
	"context"
	"errors"

	"golang.org/x/sync/semaphore"
)

// ErrBulkheadFull 并发已满，调用被拒绝
var ErrBulkheadFull = errors.New("bulkhead is full")

// Bulkhead 限制同时进行的调用数，满时立即拒绝而不排队
type Bulkhead struct {
	sem *semaphore.Weighted
}

// NewBulkhead maxConcurrent <= 0 时不限制
func NewBulkhead(maxConcurrent int) *Bulkhead {
	if maxConcurrent <= 0 {
		return &Bulkhead{}
	}
	return &Bulkhead{sem: semaphore.NewWeighted(int64(maxConcurrent))}
}

// Do 获取一个槽位后执行 fn
func (b *Bulkhead) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if b.sem == nil {
		return fn(ctx)
	}
	if !b.sem.TryAcquire(1) {
		return ErrBulkheadFull
	}
	defer b.sem.Release(1)
	return fn(ctx)
}
