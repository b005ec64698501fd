package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"planify-notification/internal/model"
)

type TemplateRepository struct {
	db *pgxpool.Pool
}

func NewTemplateRepository(db *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// FindActiveByKey returns model.ErrTemplateNotFound when no active template has the key.
func (r *TemplateRepository) FindActiveByKey(ctx context.Context, key string) (*model.Template, error) {
	query := `
		SELECT id, template_key, type, subject, body_template, sms_template,
		       is_active, language, created_at, updated_at
		FROM notification_templates
		WHERE template_key = $1 AND is_active = TRUE
	`

	var (
		t       model.Template
		subject *string
		sms     *string
	)
	err := r.db.QueryRow(ctx, query, key).Scan(
		&t.ID,
		&t.Key,
		&t.Kind,
		&subject,
		&t.BodyTemplate,
		&sms,
		&t.Active,
		&t.Language,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find template %s: %w", key, err)
	}
	t.Subject = deref(subject)
	t.SMSTemplate = deref(sms)
	return &t, nil
}
