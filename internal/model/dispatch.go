package model

import (
	"time"

	"github.com/google/uuid"
)

// Status is the aggregated outcome of one dispatch.
type Status string

const (
	StatusSent   Status = "SENT"
	StatusFailed Status = "FAILED"
)

// Channel names used in channel results and metrics.
const (
	ChannelPush  = "push"
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Reference types attached to feed entries.
const (
	ReferenceJoinRequest = "join_request"
	ReferenceInvitation  = "invitation"
	ReferenceEvent       = "event"
)

// Notification types attached to feed entries.
const (
	TypeJoinRequestReceived = "join_request_received"
	TypeJoinRequestApproved = "join_request_approved"
	TypeJoinRequestRejected = "join_request_rejected"
	TypeInvitationReceived  = "invitation_received"
	TypeInvitationAccepted  = "invitation_accepted"
	TypeInvitationDeclined  = "invitation_declined"
	TypeSMSReminderFallback = "sms_reminder_fallback"
)

// Recipient is where a dispatch may be delivered. uuid.Nil and "" mean absent.
type Recipient struct {
	UserID uuid.UUID
	Email  string
	Phone  string
}

// DispatchContext carries the domain references of a dispatch.
type DispatchContext struct {
	EventID          uuid.UUID
	NotificationType string
	ReferenceID      uuid.UUID
	ReferenceType    string
	ActionURL        string
}

// DispatchRecord is one row of notification_logs. Append-only.
type DispatchRecord struct {
	ID             uuid.UUID
	EventID        uuid.UUID
	UserID         uuid.UUID
	RecipientEmail string
	RecipientPhone string
	Kind           Kind
	TemplateKey    string
	Subject        string
	Body           string
	Status         Status
	SentAt         *time.Time
	ErrorMessage   string
	ExternalID     string
	RetryCount     int
	CreatedAt      time.Time
}

// ChannelResult is the outcome of one channel attempt.
type ChannelResult struct {
	Channel    string
	ExternalID string
	Err        error
}

// OK reports whether the attempt succeeded.
func (r ChannelResult) OK() bool {
	return r.Err == nil
}
