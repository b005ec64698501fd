package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	mqcontracts "planify-notification/contracts/mq"
	"planify-notification/internal/model"
	"planify-notification/pkg/outbox"
	"planify-notification/pkg/trace"
)

const aggregateNotificationLog = "notification_log"

// NotificationLogRepository appends dispatch records. When an outbox
// repository is set, a notification.dispatched event is written in the same
// transaction.
type NotificationLogRepository struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
	topic  string
	logger *zap.Logger
}

func NewNotificationLogRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository, topic string, logger *zap.Logger) *NotificationLogRepository {
	return &NotificationLogRepository{
		db:     db,
		outbox: outboxRepo,
		topic:  topic,
		logger: logger,
	}
}

func (r *NotificationLogRepository) Save(ctx context.Context, rec *model.DispatchRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO notification_logs (
			id, event_id, user_id, recipient_email, recipient_phone, type,
			template_key, subject, body, status, sent_at, error_message,
			external_id, retry_count
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at
	`
	err = tx.QueryRow(ctx, query,
		rec.ID,
		nullUUID(rec.EventID),
		nullUUID(rec.UserID),
		nullString(rec.RecipientEmail),
		nullString(rec.RecipientPhone),
		string(rec.Kind),
		rec.TemplateKey,
		rec.Subject,
		rec.Body,
		string(rec.Status),
		rec.SentAt,
		nullString(rec.ErrorMessage),
		nullString(rec.ExternalID),
		rec.RetryCount,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification log: %w", err)
	}

	if r.outbox != nil {
		payload := DispatchedPayload(rec, trace.FromContext(ctx))
		if err := r.outbox.Enqueue(ctx, tx, outbox.Aggregate{Type: aggregateNotificationLog, ID: rec.ID.String()}, r.topic, payload); err != nil {
			return fmt.Errorf("insert dispatched event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit notification log: %w", err)
	}

	r.logger.Debug("Notification log saved",
		zap.String("log_id", rec.ID.String()),
		zap.String("template_key", rec.TemplateKey),
		zap.String("status", string(rec.Status)),
	)
	return nil
}

// DispatchedPayload builds the outbound audit event for a saved record.
func DispatchedPayload(rec *model.DispatchRecord, traceID string) mqcontracts.NotificationDispatchedPayload {
	p := mqcontracts.NotificationDispatchedPayload{
		LogID:       rec.ID.String(),
		Kind:        string(rec.Kind),
		TemplateKey: rec.TemplateKey,
		Status:      string(rec.Status),
		Error:       rec.ErrorMessage,
		SentAt:      rec.SentAt,
		TraceID:     traceID,
	}
	if rec.EventID != uuid.Nil {
		p.EventID = rec.EventID.String()
	}
	if rec.UserID != uuid.Nil {
		p.UserID = rec.UserID.String()
	}
	return p
}
