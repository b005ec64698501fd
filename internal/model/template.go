package model

import "time"

// Kind selects which channels a template is delivered on.
type Kind string

const (
	KindPush      Kind = "PUSH"
	KindEmail     Kind = "EMAIL"
	KindPushEmail Kind = "PUSH_EMAIL"
	KindSMS       Kind = "SMS"
	KindAll       Kind = "ALL"
)

// IncludesPush reports whether the kind targets the push channel.
func (k Kind) IncludesPush() bool {
	return k == KindPush || k == KindPushEmail || k == KindAll
}

// IncludesEmail reports whether the kind targets the email channel.
func (k Kind) IncludesEmail() bool {
	return k == KindEmail || k == KindPushEmail || k == KindAll
}

// IncludesSMS reports whether the kind targets the SMS channel.
func (k Kind) IncludesSMS() bool {
	return k == KindSMS || k == KindAll
}

// Template is a stored notification template. Read-only to this service.
type Template struct {
	ID           int64
	Key          string
	Kind         Kind
	Subject      string
	BodyTemplate string
	SMSTemplate  string
	Active       bool
	Language     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Template keys used by the event router and reminder job.
const (
	TemplateNewRequest          = "NEW_REQUEST"
	TemplateRequestAccepted     = "REQUEST_ACCEPTED"
	TemplateRequestDeclined     = "REQUEST_DECLINED"
	TemplateNewInvitation       = "NEW_INVITATION"
	TemplateInvitationAccepted  = "INVITATION_ACCEPTED"
	TemplateInvitationDeclined  = "INVITATION_DECLINED"
	TemplateEventReminderSMS    = "EVENT_REMINDER_SMS"
	TemplateSMSReminderFallback = "SMS_REMINDER_FALLBACK"
)
