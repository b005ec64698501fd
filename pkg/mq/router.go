package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

var (
	// ErrDecode 消息体无法解码，不应重试
	ErrDecode = errors.New("mq: decode failed")
	// ErrUnknownTopic 没有注册该 topic 的处理器
	ErrUnknownTopic = errors.New("mq: unknown topic")
	// ErrHandlerPanic 处理器 panic 后被恢复
	ErrHandlerPanic = errors.New("mq: handler panic")
)

// MessageHandler 处理一条原始消息
type MessageHandler func(ctx context.Context, body []byte) error

// Route topic 与处理器的绑定
type Route struct {
	Topic   string
	Handler MessageHandler
}

// Bind 生成一个先把 JSON 解码为 T 再交给 h 的路由
func Bind[T any](topic string, h func(ctx context.Context, evt T) error) Route {
	return Route{
		Topic: topic,
		Handler: func(ctx context.Context, body []byte) error {
			var evt T
			if err := json.Unmarshal(body, &evt); err != nil {
				return fmt.Errorf("%w: topic %s: %v", ErrDecode, topic, err)
			}
			return h(ctx, evt)
		},
	}
}

// Router 启动时构建的 topic -> 处理器 注册表，RabbitMQ 和 Kafka 消费者共用
type Router struct {
	routes map[string]MessageHandler
	logger *zap.Logger
}

// NewRouter 创建路由，重复 topic 以后注册的为准
func NewRouter(logger *zap.Logger, routes ...Route) *Router {
	r := &Router{
		routes: make(map[string]MessageHandler, len(routes)),
		logger: logger,
	}
	for _, route := range routes {
		if _, dup := r.routes[route.Topic]; dup {
			logger.Warn("duplicate route, overriding", zap.String("topic", route.Topic))
		}
		r.routes[route.Topic] = route.Handler
	}
	return r
}

// Topics 已注册的 topic（排序）
func (r *Router) Topics() []string {
	topics := make([]string, 0, len(r.routes))
	for t := range r.routes {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// Dispatch 把消息交给 topic 对应的处理器，处理器 panic 会转换为 ErrHandlerPanic
func (r *Router) Dispatch(ctx context.Context, topic string, body []byte) (err error) {
	h, ok := r.routes[topic]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Handler panic recovered",
				zap.String("topic", topic),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, rec)
		}
	}()

	return h(ctx, body)
}

// IsPoison 是否为重试也无法成功的消息（应进入死信）
func IsPoison(err error) bool {
	return errors.Is(err, ErrDecode) || errors.Is(err, ErrUnknownTopic) || errors.Is(err, ErrHandlerPanic)
}
