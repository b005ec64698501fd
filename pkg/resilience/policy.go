// Package resilience 为外部调用提供 重试 -> 熔断 -> 舱壁 的组合保护
package resilience

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"planify-notification/pkg/circuitbreaker"
	"planify-notification/pkg/config"
)

// Policy Retry(CircuitBreaker(Bulkhead(fn)))
type Policy struct {
	name      string
	retry     Retry
	breaker   *circuitbreaker.CircuitBreaker
	bulkhead  *Bulkhead
	permanent func(err error) bool
}

// Option 配置 Policy
type Option func(*policyOptions)

type policyOptions struct {
	permanent func(err error) bool
	logger    *zap.Logger
}

// WithPermanentErrors 标记不重试、也不计入熔断失败的错误（例如 404）
func WithPermanentErrors(fn func(err error) bool) Option {
	return func(o *policyOptions) { o.permanent = fn }
}

// WithLogger 记录熔断器状态变化
func WithLogger(logger *zap.Logger) Option {
	return func(o *policyOptions) { o.logger = logger }
}

// NewPolicy 根据配置创建保护策略
func NewPolicy(name string, cfg config.ResilienceConfig, opts ...Option) *Policy {
	o := policyOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	p := &Policy{
		name:      name,
		bulkhead:  NewBulkhead(cfg.Bulkhead.MaxConcurrent),
		permanent: o.permanent,
	}

	p.breaker = circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
		Name:                name,
		FailureThreshold:    cfg.CircuitBreaker.FailureThreshold,
		SuccessThreshold:    cfg.CircuitBreaker.SuccessThreshold,
		Timeout:             time.Duration(cfg.CircuitBreaker.OpenSeconds) * time.Second,
		HalfOpenMaxRequests: cfg.CircuitBreaker.HalfOpenMaxRequests,
		IsFailure: func(err error) bool {
			return !errors.Is(err, ErrBulkheadFull) && !p.isPermanent(err)
		},
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			o.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	p.retry = Retry{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay(),
		MaxDelay:    cfg.Retry.MaxDelay(),
		ShouldRetry: p.shouldRetry,
	}
	return p
}

// Execute 在保护下执行 fn
func (p *Policy) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	return p.retry.Do(ctx, func(ctx context.Context) error {
		return p.breaker.Execute(func() error {
			return p.bulkhead.Do(ctx, fn)
		})
	})
}

// State 当前熔断器状态
func (p *Policy) State() circuitbreaker.State {
	return p.breaker.GetState()
}

// Name 策略名称
func (p *Policy) Name() string {
	return p.name
}

func (p *Policy) isPermanent(err error) bool {
	return p.permanent != nil && p.permanent(err)
}

func (p *Policy) shouldRetry(err error) bool {
	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return !p.isPermanent(err)
}
