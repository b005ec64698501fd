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

// InAppRepository stores the push feed.
type InAppRepository struct {
	db *pgxpool.Pool
}

func NewInAppRepository(db *pgxpool.Pool) *InAppRepository {
	return &InAppRepository{db: db}
}

func (r *InAppRepository) Insert(ctx context.Context, n *model.InAppNotification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	query := `
		INSERT INTO in_app_notifications (
			id, user_id, title, message, notification_type,
			reference_id, reference_type, action_url, is_read
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		n.ID,
		n.UserID,
		n.Title,
		n.Message,
		n.NotificationType,
		n.ReferenceID,
		nullString(n.ReferenceType),
		nullString(n.ActionURL),
	).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert in-app notification: %w", err)
	}
	return nil
}

const inAppColumns = `id, user_id, title, message, notification_type, reference_id, reference_type, action_url, is_read, read_at, created_at`

// FindByID returns model.ErrNotificationNotFound when no row exists.
func (r *InAppRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.InAppNotification, error) {
	rows, err := r.db.Query(ctx, `SELECT `+inAppColumns+` FROM in_app_notifications WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("find in-app notification: %w", err)
	}
	return collectOneInApp(rows)
}

// ListByUser returns one page, newest first, and the total row count.
func (r *InAppRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.InAppNotification, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM in_app_notifications WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count in-app notifications: %w", err)
	}

	rows, err := r.db.Query(ctx, `SELECT `+inAppColumns+`
		FROM in_app_notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list in-app notifications: %w", err)
	}
	list, err := pgx.CollectRows(rows, scanInApp)
	if err != nil {
		return nil, 0, fmt.Errorf("scan in-app notifications: %w", err)
	}
	return list, total, nil
}

func (r *InAppRepository) ListUnread(ctx context.Context, userID uuid.UUID) ([]*model.InAppNotification, error) {
	rows, err := r.db.Query(ctx, `SELECT `+inAppColumns+`
		FROM in_app_notifications
		WHERE user_id = $1 AND is_read = FALSE
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list unread notifications: %w", err)
	}
	list, err := pgx.CollectRows(rows, scanInApp)
	if err != nil {
		return nil, fmt.Errorf("scan unread notifications: %w", err)
	}
	return list, nil
}

func (r *InAppRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM in_app_notifications WHERE user_id = $1 AND is_read = FALSE`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

// MarkRead keeps the first read_at when the entry was already read.
func (r *InAppRepository) MarkRead(ctx context.Context, id uuid.UUID, readAt time.Time) (*model.InAppNotification, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE in_app_notifications
		SET is_read = TRUE, read_at = COALESCE(read_at, $2)
		WHERE id = $1
		RETURNING `+inAppColumns, id, readAt)
	if err != nil {
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	return collectOneInApp(rows)
}

func (r *InAppRepository) MarkAllRead(ctx context.Context, userID uuid.UUID, readAt time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE in_app_notifications
		SET is_read = TRUE, read_at = $2
		WHERE user_id = $1 AND is_read = FALSE
	`, userID, readAt)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Delete returns model.ErrNotificationNotFound when no row exists.
func (r *InAppRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM in_app_notifications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotificationNotFound
	}
	return nil
}

func (r *InAppRepository) DeleteAllByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM in_app_notifications WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectOneInApp(rows pgx.Rows) (*model.InAppNotification, error) {
	n, err := pgx.CollectOneRow(rows, scanInApp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan in-app notification: %w", err)
	}
	return n, nil
}

func scanInApp(row pgx.CollectableRow) (*model.InAppNotification, error) {
	var (
		n             model.InAppNotification
		referenceType *string
		actionURL     *string
	)
	err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.Title,
		&n.Message,
		&n.NotificationType,
		&n.ReferenceID,
		&referenceType,
		&actionURL,
		&n.IsRead,
		&n.ReadAt,
		&n.CreatedAt,
	)
	n.ReferenceType = deref(referenceType)
	n.ActionURL = deref(actionURL)
	return &n, err
}
