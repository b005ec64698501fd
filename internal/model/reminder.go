package model

import (
	"time"

	"github.com/google/uuid"
)

// AttendeeReminder is one row of event_attendee_reminders.
type AttendeeReminder struct {
	ID                uuid.UUID
	EventID           uuid.UUID
	UserID            uuid.UUID
	EventTitle        string
	EventStartAt      time.Time
	CreatedAt         time.Time
	Sent              bool
	SentAt            *time.Time
	NotificationLogID uuid.UUID
}
