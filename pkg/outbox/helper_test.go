package outbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	event, err := NewEvent(Aggregate{Type: "notification_log", ID: "42"}, "notification.dispatched",
		map[string]string{"status": "SENT"})

	require.NoError(t, err)
	assert.Equal(t, "notification_log", event.AggregateType)
	assert.Equal(t, "42", event.AggregateID)
	assert.Equal(t, "notification.dispatched", event.RoutingKey)
	assert.Equal(t, StatusPending, event.Status)
	assert.JSONEq(t, `{"status":"SENT"}`, string(event.Payload))
}

func TestNewEvent_Rejects(t *testing.T) {
	_, err := NewEvent(Aggregate{Type: "notification_log", ID: "1"}, "", nil)
	assert.ErrorContains(t, err, "no routing key")

	_, err = NewEvent(Aggregate{}, "k", make(chan int))
	assert.ErrorContains(t, err, "encode outbox payload")
}
