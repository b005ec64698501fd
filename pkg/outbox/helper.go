package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Aggregate 事件所属的业务记录
type Aggregate struct {
	Type string
	ID   string
}

// NewEvent 把 payload 编码成待发布事件
func NewEvent(agg Aggregate, routingKey string, payload any) (*Event, error) {
	if routingKey == "" {
		return nil, fmt.Errorf("outbox event for %s/%s has no routing key", agg.Type, agg.ID)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode outbox payload: %w", err)
	}
	return &Event{
		AggregateType: agg.Type,
		AggregateID:   agg.ID,
		RoutingKey:    routingKey,
		Payload:       body,
		Status:        StatusPending,
	}, nil
}

// Enqueue 与业务写入共用 tx，提交后由 Dispatcher 发布
func (r *Repository) Enqueue(ctx context.Context, tx pgx.Tx, agg Aggregate, routingKey string, payload any) error {
	event, err := NewEvent(agg, routingKey, payload)
	if err != nil {
		return err
	}
	return r.InsertEvent(ctx, tx, event)
}
