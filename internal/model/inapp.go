package model

import (
	"time"

	"github.com/google/uuid"
)

// InAppNotification is a push feed entry, stored and sent over the live session.
type InAppNotification struct {
	ID               uuid.UUID  `json:"id"`
	UserID           uuid.UUID  `json:"userId"`
	Title            string     `json:"title"`
	Message          string     `json:"message"`
	NotificationType string     `json:"notificationType"`
	ReferenceID      *uuid.UUID `json:"referenceId,omitempty"`
	ReferenceType    string     `json:"referenceType,omitempty"`
	ActionURL        string     `json:"actionUrl,omitempty"`
	IsRead           bool       `json:"isRead"`
	ReadAt           *time.Time `json:"readAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// CountUpdateType tags the unread-count message pushed to live sessions.
const CountUpdateType = "NOTIFICATION_COUNT_UPDATE"

// CountUpdate is pushed after the feed of a user changes.
type CountUpdate struct {
	Type        string    `json:"type"`
	UserID      uuid.UUID `json:"userId"`
	UnreadCount int64     `json:"unreadCount"`
}

// FeedPage is one page of a user's feed, newest first.
type FeedPage struct {
	Content       []*InAppNotification `json:"content"`
	Page          int                  `json:"page"`
	Size          int                  `json:"size"`
	TotalElements int64                `json:"totalElements"`
	TotalPages    int                  `json:"totalPages"`
}
