package mq

import (
	"time"

	"github.com/google/uuid"
)

// Outcomes carried in the eventType field of responded events.
const (
	OutcomeApproved = "APPROVED"
	OutcomeRejected = "REJECTED"
	OutcomeAccepted = "ACCEPTED"
	OutcomeDeclined = "DECLINED"
)

// JoinRequestSentEvent is published when a user asks to join an organization.
type JoinRequestSentEvent struct {
	JoinRequestID     uuid.UUID `json:"joinRequestId"`
	AdminIDs          []string  `json:"adminIds"`
	OrganizationID    uuid.UUID `json:"organizationId"`
	OrganizationName  string    `json:"organizationName"`
	RequesterUserID   uuid.UUID `json:"requesterUserId"`
	RequesterUsername string    `json:"requesterUsername"`
	OccurredAt        time.Time `json:"occurredAt"`
}

// JoinRequestRespondedEvent is published when an admin approves or rejects a join request.
type JoinRequestRespondedEvent struct {
	EventType          string    `json:"eventType"`
	JoinRequestID      uuid.UUID `json:"joinRequestId"`
	OrganizationID     uuid.UUID `json:"organizationId"`
	OrganizationName   string    `json:"organizationName"`
	RequesterUserID    uuid.UUID `json:"requesterUserId"`
	RequesterFirstName string    `json:"requesterFirstName"`
	RequesterLastName  string    `json:"requesterLastName"`
	RequesterEmail     string    `json:"requesterEmail"`
	OccurredAt         time.Time `json:"occurredAt"`
}

// InvitationSentEvent is published when an admin invites a user.
type InvitationSentEvent struct {
	InvitationID     uuid.UUID `json:"invitationId"`
	OrganizationID   uuid.UUID `json:"organizationId"`
	OrganizationName string    `json:"organizationName"`
	InvitedUserID    uuid.UUID `json:"invitedUserId"`
	InvitedFirstName string    `json:"invitedFirstName"`
	InvitedLastName  string    `json:"invitedLastName"`
	InvitedEmail     string    `json:"invitedEmail"`
	OccurredAt       time.Time `json:"occurredAt"`
}

// InvitationRespondedEvent is published when the invited user accepts or declines.
type InvitationRespondedEvent struct {
	EventType        string    `json:"eventType"`
	InvitationID     uuid.UUID `json:"invitationId"`
	AdminIDs         []string  `json:"adminIds"`
	OrganizationID   uuid.UUID `json:"organizationId"`
	OrganizationName string    `json:"organizationName"`
	InvitedUserID    uuid.UUID `json:"invitedUserId"`
	InvitedUsername  string    `json:"invitedUsername"`
	OccurredAt       time.Time `json:"occurredAt"`
}

// EventAttendanceAcceptedEvent is published when a user confirms attendance. EventStartAt is UTC.
type EventAttendanceAcceptedEvent struct {
	EventID      uuid.UUID `json:"eventId"`
	EventTitle   string    `json:"eventTitle"`
	EventStartAt time.Time `json:"eventStartAt"`
	UserID       uuid.UUID `json:"userId"`
}

// NotificationDispatchedPayload is the outbound audit event written through the outbox.
type NotificationDispatchedPayload struct {
	LogID       string     `json:"log_id"`
	EventID     string     `json:"event_id,omitempty"`
	UserID      string     `json:"user_id,omitempty"`
	Kind        string     `json:"kind"`
	TemplateKey string     `json:"template_key"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	TraceID     string     `json:"trace_id,omitempty"`
}
