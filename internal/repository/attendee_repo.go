package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"planify-notification/internal/model"
)

type AttendeeRepository struct {
	db *pgxpool.Pool
}

func NewAttendeeRepository(db *pgxpool.Pool) *AttendeeRepository {
	return &AttendeeRepository{db: db}
}

const attendeeColumns = `id, event_id, user_id, event_title, event_start_at, created_at, is_sent, sent_at, notification_log_id`

// FindByEventAndUser returns nil, nil when no row exists.
func (r *AttendeeRepository) FindByEventAndUser(ctx context.Context, eventID, userID uuid.UUID) (*model.AttendeeReminder, error) {
	query := `SELECT ` + attendeeColumns + `
		FROM event_attendee_reminders
		WHERE event_id = $1 AND user_id = $2`

	rows, err := r.db.Query(ctx, query, eventID, userID)
	if err != nil {
		return nil, fmt.Errorf("find attendee: %w", err)
	}
	a, err := pgx.CollectOneRow(rows, scanAttendee)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan attendee: %w", err)
	}
	return a, nil
}

// InsertIfAbsent reports false when (event_id, user_id) already exists.
func (r *AttendeeRepository) InsertIfAbsent(ctx context.Context, a *model.AttendeeReminder) (bool, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	query := `
		INSERT INTO event_attendee_reminders (id, event_id, user_id, event_title, event_start_at, is_sent)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		ON CONFLICT (event_id, user_id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, a.ID, a.EventID, a.UserID, a.EventTitle, a.EventStartAt.UTC())
	if err != nil {
		return false, fmt.Errorf("insert attendee: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListStartingBetween returns attendees whose event starts in [from, to), sent or not.
func (r *AttendeeRepository) ListStartingBetween(ctx context.Context, from, to time.Time) ([]*model.AttendeeReminder, error) {
	query := `SELECT ` + attendeeColumns + `
		FROM event_attendee_reminders
		WHERE event_start_at >= $1 AND event_start_at < $2
		ORDER BY event_start_at ASC`

	rows, err := r.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	list, err := pgx.CollectRows(rows, scanAttendee)
	if err != nil {
		return nil, fmt.Errorf("scan attendees: %w", err)
	}
	return list, nil
}

func (r *AttendeeRepository) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time, logID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE event_attendee_reminders
		SET is_sent = TRUE, sent_at = $2, notification_log_id = $3
		WHERE id = $1
	`, id, sentAt, nullUUID(logID))
	if err != nil {
		return fmt.Errorf("mark attendee sent: %w", err)
	}
	return nil
}

func scanAttendee(row pgx.CollectableRow) (*model.AttendeeReminder, error) {
	var (
		a     model.AttendeeReminder
		title *string
		logID *uuid.UUID
	)
	err := row.Scan(
		&a.ID,
		&a.EventID,
		&a.UserID,
		&title,
		&a.EventStartAt,
		&a.CreatedAt,
		&a.Sent,
		&a.SentAt,
		&logID,
	)
	a.EventTitle = deref(title)
	a.NotificationLogID = uuidOrNil(logID)
	a.EventStartAt = a.EventStartAt.UTC()
	return &a, err
}
