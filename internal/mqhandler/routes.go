// Package mqhandler binds inbound topics to the event router.
package mqhandler

import (
	"context"

	"go.uber.org/zap"

	mqcontracts "planify-notification/contracts/mq"
	"planify-notification/internal/config"
	"planify-notification/pkg/metrics"
	"planify-notification/pkg/mq"
)

// EventHandlers is implemented by service.EventRouter.
type EventHandlers interface {
	HandleJoinRequestSent(ctx context.Context, evt mqcontracts.JoinRequestSentEvent) error
	HandleJoinRequestResponded(ctx context.Context, evt mqcontracts.JoinRequestRespondedEvent) error
	HandleInvitationSent(ctx context.Context, evt mqcontracts.InvitationSentEvent) error
	HandleInvitationResponded(ctx context.Context, evt mqcontracts.InvitationRespondedEvent) error
	HandleAttendanceAccepted(ctx context.Context, evt mqcontracts.EventAttendanceAcceptedEvent) error
}

// Guard drops redelivered events. util.Deduper implements it.
type Guard interface {
	AcquireOnce(ctx context.Context, topic, key string) bool
}

// Routes builds the startup registration table. guard may be nil.
func Routes(topics config.TopicsConfig, h EventHandlers, guard Guard, logger *zap.Logger) []mq.Route {
	return []mq.Route{
		mq.Bind(topics.JoinRequestSent, guarded(topics.JoinRequestSent, guard, logger,
			func(e mqcontracts.JoinRequestSentEvent) string { return e.JoinRequestID.String() },
			h.HandleJoinRequestSent)),
		mq.Bind(topics.JoinRequestResponded, guarded(topics.JoinRequestResponded, guard, logger,
			func(e mqcontracts.JoinRequestRespondedEvent) string { return e.JoinRequestID.String() + ":" + e.EventType },
			h.HandleJoinRequestResponded)),
		mq.Bind(topics.InvitationSent, guarded(topics.InvitationSent, guard, logger,
			func(e mqcontracts.InvitationSentEvent) string { return e.InvitationID.String() },
			h.HandleInvitationSent)),
		mq.Bind(topics.InvitationResponded, guarded(topics.InvitationResponded, guard, logger,
			func(e mqcontracts.InvitationRespondedEvent) string { return e.InvitationID.String() + ":" + e.EventType },
			h.HandleInvitationResponded)),
		mq.Bind(topics.EventAttendanceAccepted, guarded(topics.EventAttendanceAccepted, guard, logger,
			func(e mqcontracts.EventAttendanceAcceptedEvent) string { return e.EventID.String() + ":" + e.UserID.String() },
			h.HandleAttendanceAccepted)),
	}
}

func guarded[T any](topic string, guard Guard, logger *zap.Logger, key func(T) string, h func(context.Context, T) error) func(context.Context, T) error {
	return func(ctx context.Context, evt T) error {
		if guard != nil && !guard.AcquireOnce(ctx, topic, key(evt)) {
			metrics.IncrementEventHandled(topic, "duplicate")
			return nil
		}

		if err := h(ctx, evt); err != nil {
			logger.Error("Event handler failed", zap.String("topic", topic), zap.Error(err))
			metrics.IncrementEventHandled(topic, "error")
			return err
		}
		metrics.IncrementEventHandled(topic, "ok")
		return nil
	}
}
