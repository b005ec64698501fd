package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "planify-notification/contracts/mq"
	"planify-notification/internal/model"
	"planify-notification/pkg/logger"
)

// Links rendered into templates and attached to feed entries.
const (
	linkOrganizationAdmin = "/organizations/admin"
	linkMyOrganizations   = "/organizations/my"
)

// Dispatcher is the part of DispatchEngine the router drives.
type Dispatcher interface {
	Dispatch(ctx context.Context, tmpl *model.Template, vars map[string]any, r model.Recipient, dctx model.DispatchContext) (*model.DispatchRecord, error)
}

// AttendeeStore persists attendee reminders. (event_id, user_id) is unique in storage.
type AttendeeStore interface {
	FindByEventAndUser(ctx context.Context, eventID, userID uuid.UUID) (*model.AttendeeReminder, error)
	InsertIfAbsent(ctx context.Context, a *model.AttendeeReminder) (bool, error)
}

// route is one row of the (topic, outcome) mapping table.
type route struct {
	templateKey      string
	notificationType string
	referenceType    string
	actionURL        string
}

var (
	joinRequestSentRoute = route{model.TemplateNewRequest, model.TypeJoinRequestReceived, model.ReferenceJoinRequest, linkOrganizationAdmin}
	invitationSentRoute  = route{model.TemplateNewInvitation, model.TypeInvitationReceived, model.ReferenceInvitation, linkMyOrganizations}

	joinRequestRespondedRoutes = map[string]route{
		mqcontracts.OutcomeApproved: {model.TemplateRequestAccepted, model.TypeJoinRequestApproved, model.ReferenceJoinRequest, linkMyOrganizations},
		mqcontracts.OutcomeRejected: {model.TemplateRequestDeclined, model.TypeJoinRequestRejected, model.ReferenceJoinRequest, ""},
	}
	invitationRespondedRoutes = map[string]route{
		mqcontracts.OutcomeAccepted: {model.TemplateInvitationAccepted, model.TypeInvitationAccepted, model.ReferenceInvitation, linkOrganizationAdmin},
		mqcontracts.OutcomeDeclined: {model.TemplateInvitationDeclined, model.TypeInvitationDeclined, model.ReferenceInvitation, ""},
	}
)

// EventRouter maps inbound domain events to dispatches. Every handler logs
// failures and returns nil so the transport does not redeliver.
type EventRouter struct {
	templates  TemplateStore
	dispatcher Dispatcher
	attendees  AttendeeStore
	logger     *zap.Logger
}

func NewEventRouter(templates TemplateStore, dispatcher Dispatcher, attendees AttendeeStore, logger *zap.Logger) *EventRouter {
	return &EventRouter{
		templates:  templates,
		dispatcher: dispatcher,
		attendees:  attendees,
		logger:     logger,
	}
}

func (r *EventRouter) HandleJoinRequestSent(ctx context.Context, evt mqcontracts.JoinRequestSentEvent) error {
	vars := map[string]any{
		"adminName":         adminName(evt.OrganizationName),
		"userName":          evt.RequesterUsername,
		"orgName":           evt.OrganizationName,
		"requestReviewLink": linkOrganizationAdmin,
	}
	r.fanOut(ctx, joinRequestSentRoute, vars, r.adminRecipients(ctx, evt.AdminIDs), evt.JoinRequestID)
	return nil
}

func (r *EventRouter) HandleJoinRequestResponded(ctx context.Context, evt mqcontracts.JoinRequestRespondedEvent) error {
	rt, ok := joinRequestRespondedRoutes[evt.EventType]
	if !ok {
		logger.WithTrace(ctx, r.logger).Warn("Unknown join request outcome, ignoring",
			zap.String("event_type", evt.EventType),
			zap.String("join_request_id", evt.JoinRequestID.String()),
		)
		return nil
	}
	vars := map[string]any{
		"userName": fullName(evt.RequesterFirstName, evt.RequesterLastName),
		"orgName":  evt.OrganizationName,
	}
	recipient := model.Recipient{UserID: evt.RequesterUserID, Email: evt.RequesterEmail}
	r.fanOut(ctx, rt, vars, []model.Recipient{recipient}, evt.JoinRequestID)
	return nil
}

func (r *EventRouter) HandleInvitationSent(ctx context.Context, evt mqcontracts.InvitationSentEvent) error {
	vars := map[string]any{
		"recipientName":        fullName(evt.InvitedFirstName, evt.InvitedLastName),
		"orgName":              evt.OrganizationName,
		"invitationAcceptLink": linkMyOrganizations,
	}
	recipient := model.Recipient{UserID: evt.InvitedUserID, Email: evt.InvitedEmail}
	r.fanOut(ctx, invitationSentRoute, vars, []model.Recipient{recipient}, evt.InvitationID)
	return nil
}

func (r *EventRouter) HandleInvitationResponded(ctx context.Context, evt mqcontracts.InvitationRespondedEvent) error {
	rt, ok := invitationRespondedRoutes[evt.EventType]
	if !ok {
		logger.WithTrace(ctx, r.logger).Warn("Unknown invitation outcome, ignoring",
			zap.String("event_type", evt.EventType),
			zap.String("invitation_id", evt.InvitationID.String()),
		)
		return nil
	}
	vars := map[string]any{
		"adminName": adminName(evt.OrganizationName),
		"userName":  evt.InvitedUsername,
		"orgName":   evt.OrganizationName,
	}
	if evt.EventType == mqcontracts.OutcomeAccepted {
		vars["memberListLink"] = linkOrganizationAdmin
	}
	r.fanOut(ctx, rt, vars, r.adminRecipients(ctx, evt.AdminIDs), evt.InvitationID)
	return nil
}

// HandleAttendanceAccepted records the attendee once per (event, user).
func (r *EventRouter) HandleAttendanceAccepted(ctx context.Context, evt mqcontracts.EventAttendanceAcceptedEvent) error {
	log := logger.WithTrace(ctx, r.logger).With(
		zap.String("event_id", evt.EventID.String()),
		zap.String("user_id", evt.UserID.String()),
	)

	existing, err := r.attendees.FindByEventAndUser(ctx, evt.EventID, evt.UserID)
	if err != nil {
		log.Error("Failed to look up attendee reminder", zap.Error(err))
		return nil
	}
	if existing != nil {
		log.Debug("Attendee reminder already exists, skipping")
		return nil
	}

	inserted, err := r.attendees.InsertIfAbsent(ctx, &model.AttendeeReminder{
		ID:           uuid.New(),
		EventID:      evt.EventID,
		UserID:       evt.UserID,
		EventTitle:   evt.EventTitle,
		EventStartAt: evt.EventStartAt.UTC(),
	})
	if err != nil {
		log.Error("Failed to store attendee reminder", zap.Error(err))
		return nil
	}
	if !inserted {
		log.Debug("Attendee reminder inserted concurrently, skipping")
		return nil
	}
	log.Info("Attendee reminder stored", zap.Time("event_start_at", evt.EventStartAt.UTC()))
	return nil
}

// fanOut resolves the template once and dispatches to every recipient
// independently.
func (r *EventRouter) fanOut(ctx context.Context, rt route, vars map[string]any, recipients []model.Recipient, referenceID uuid.UUID) {
	log := logger.WithTrace(ctx, r.logger).With(zap.String("template_key", rt.templateKey))

	tmpl, err := r.templates.FindActiveByKey(ctx, rt.templateKey)
	if errors.Is(err, model.ErrTemplateNotFound) {
		log.Error("Template not found, event dropped")
		return
	}
	if err != nil {
		log.Error("Failed to load template, event dropped", zap.Error(err))
		return
	}

	dctx := model.DispatchContext{
		NotificationType: rt.notificationType,
		ReferenceID:      referenceID,
		ReferenceType:    rt.referenceType,
		ActionURL:        rt.actionURL,
	}
	for _, recipient := range recipients {
		if err := r.dispatchOne(ctx, tmpl, vars, recipient, dctx); err != nil {
			log.Error("Dispatch failed for recipient",
				zap.String("user_id", recipient.UserID.String()),
				zap.Error(err),
			)
		}
	}
}

var errDispatchPanic = errors.New("dispatch panicked")

func (r *EventRouter) dispatchOne(ctx context.Context, tmpl *model.Template, vars map[string]any, recipient model.Recipient, dctx model.DispatchContext) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", errDispatchPanic, p)
		}
	}()
	_, err = r.dispatcher.Dispatch(ctx, tmpl, vars, recipient, dctx)
	return err
}

func (r *EventRouter) adminRecipients(ctx context.Context, adminIDs []string) []model.Recipient {
	recipients := make([]model.Recipient, 0, len(adminIDs))
	for _, raw := range adminIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			logger.WithTrace(ctx, r.logger).Warn("Skipping invalid admin id", zap.String("admin_id", raw), zap.Error(err))
			continue
		}
		recipients = append(recipients, model.Recipient{UserID: id})
	}
	return recipients
}

func adminName(orgName string) string {
	return orgName + "'s Admin"
}

func fullName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}
