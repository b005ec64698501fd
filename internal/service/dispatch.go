package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"planify-notification/internal/model"
	"planify-notification/internal/render"
	"planify-notification/internal/sender"
	"planify-notification/pkg/logger"
	"planify-notification/pkg/metrics"
	"planify-notification/pkg/otel"
)

// TemplateStore looks up active templates.
type TemplateStore interface {
	FindActiveByKey(ctx context.Context, key string) (*model.Template, error)
}

// DispatchLog persists exactly one record per dispatch.
type DispatchLog interface {
	Save(ctx context.Context, rec *model.DispatchRecord) error
}

// FeedStore persists push feed entries.
type FeedStore interface {
	Insert(ctx context.Context, n *model.InAppNotification) error
}

// Pusher delivers to live sessions, best-effort.
type Pusher interface {
	SendToUser(userID uuid.UUID, payload any) bool
}

// DispatchEngine renders a template once and attempts every eligible channel.
type DispatchEngine struct {
	templates TemplateStore
	logs      DispatchLog
	feed      FeedStore
	pusher    Pusher
	email     sender.EmailSender
	sms       sender.SMSSender
	logger    *zap.Logger
	now       func() time.Time
}

func NewDispatchEngine(
	templates TemplateStore,
	logs DispatchLog,
	feed FeedStore,
	pusher Pusher,
	email sender.EmailSender,
	sms sender.SMSSender,
	logger *zap.Logger,
) *DispatchEngine {
	return &DispatchEngine{
		templates: templates,
		logs:      logs,
		feed:      feed,
		pusher:    pusher,
		email:     email,
		sms:       sms,
		logger:    logger,
		now:       time.Now,
	}
}

// DispatchByKey resolves the template first. A miss returns
// model.ErrTemplateNotFound and persists nothing.
func (e *DispatchEngine) DispatchByKey(ctx context.Context, key string, vars map[string]any, r model.Recipient, dctx model.DispatchContext) (*model.DispatchRecord, error) {
	tmpl, err := e.templates.FindActiveByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	return e.Dispatch(ctx, tmpl, vars, r, dctx)
}

// Dispatch always returns the record. The error is non-nil only when the
// record could not be persisted.
func (e *DispatchEngine) Dispatch(ctx context.Context, tmpl *model.Template, vars map[string]any, r model.Recipient, dctx model.DispatchContext) (*model.DispatchRecord, error) {
	ctx, span := otel.StartSpan(ctx, "notification.dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("notification.template_key", tmpl.Key),
		attribute.String("notification.kind", string(tmpl.Kind)),
	)
	log := logger.WithTrace(ctx, e.logger).With(zap.String("template_key", tmpl.Key))

	rec := &model.DispatchRecord{
		ID:             uuid.New(),
		EventID:        dctx.EventID,
		UserID:         r.UserID,
		RecipientEmail: r.Email,
		RecipientPhone: r.Phone,
		Kind:           tmpl.Kind,
		TemplateKey:    tmpl.Key,
	}

	subject, body, err := renderRich(tmpl, vars)
	if err != nil {
		log.Warn("Template render failed", zap.Error(err))
		rec.Status = model.StatusFailed
		rec.ErrorMessage = err.Error()
		span.SetStatus(codes.Error, "render failed")
		return e.save(ctx, log, rec)
	}
	rec.Subject = subject
	rec.Body = body

	var results []model.ChannelResult
	if tmpl.Kind.IncludesPush() && r.UserID != uuid.Nil {
		results = append(results, e.attemptPush(ctx, r.UserID, subject, body, dctx))
	}
	if tmpl.Kind.IncludesEmail() && r.Email != "" {
		results = append(results, e.attemptEmail(ctx, r.Email, subject, body))
	}
	if tmpl.Kind.IncludesSMS() && r.Phone != "" && tmpl.SMSTemplate != "" {
		results = append(results, e.attemptSMS(ctx, r.Phone, tmpl.SMSTemplate, vars))
	}

	for _, res := range results {
		metrics.RecordChannelAttempt(res.Channel, res.OK())
		if !res.OK() {
			log.Warn("Channel attempt failed", zap.String("channel", res.Channel), zap.Error(res.Err))
		}
	}

	rec.Status, rec.ErrorMessage, rec.ExternalID = Aggregate(results)
	if rec.Status == model.StatusSent {
		sentAt := e.now().UTC()
		rec.SentAt = &sentAt
	} else {
		span.SetStatus(codes.Error, rec.ErrorMessage)
	}
	return e.save(ctx, log, rec)
}

func (e *DispatchEngine) save(ctx context.Context, log *zap.Logger, rec *model.DispatchRecord) (*model.DispatchRecord, error) {
	metrics.RecordDispatch(string(rec.Status))
	if err := e.logs.Save(ctx, rec); err != nil {
		log.Error("Failed to save dispatch record", zap.String("log_id", rec.ID.String()), zap.Error(err))
		return rec, fmt.Errorf("save dispatch record: %w", err)
	}
	log.Info("Notification dispatched",
		zap.String("log_id", rec.ID.String()),
		zap.String("status", string(rec.Status)),
	)
	return rec, nil
}

func renderRich(tmpl *model.Template, vars map[string]any) (string, string, error) {
	subject, err := render.Rich(tmpl.Subject, vars)
	if err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}
	body, err := render.Rich(tmpl.BodyTemplate, vars)
	if err != nil {
		return "", "", fmt.Errorf("render body: %w", err)
	}
	return subject, body, nil
}

func (e *DispatchEngine) attemptPush(ctx context.Context, userID uuid.UUID, subject, body string, dctx model.DispatchContext) (res model.ChannelResult) {
	res.Channel = model.ChannelPush
	defer recoverChannel(&res)

	n := &model.InAppNotification{
		ID:               uuid.New(),
		UserID:           userID,
		Title:            subject,
		Message:          body,
		NotificationType: dctx.NotificationType,
		ReferenceType:    dctx.ReferenceType,
		ActionURL:        dctx.ActionURL,
		CreatedAt:        e.now().UTC(),
	}
	if dctx.ReferenceID != uuid.Nil {
		ref := dctx.ReferenceID
		n.ReferenceID = &ref
	}
	if err := e.feed.Insert(ctx, n); err != nil {
		res.Err = fmt.Errorf("store feed entry: %w", err)
		return res
	}
	e.pusher.SendToUser(userID, n)
	return res
}

func (e *DispatchEngine) attemptEmail(ctx context.Context, to, subject, body string) (res model.ChannelResult) {
	res.Channel = model.ChannelEmail
	defer recoverChannel(&res)

	res.ExternalID, res.Err = e.email.Send(ctx, to, subject, body)
	return res
}

func (e *DispatchEngine) attemptSMS(ctx context.Context, to, pattern string, vars map[string]any) (res model.ChannelResult) {
	res.Channel = model.ChannelSMS
	defer recoverChannel(&res)

	body := render.TruncateSMS(render.Plain(pattern, vars), render.MaxSMSLength)
	res.ExternalID, res.Err = e.sms.Send(ctx, to, body)
	return res
}

var errChannelPanic = errors.New("channel panicked")

func recoverChannel(res *model.ChannelResult) {
	if p := recover(); p != nil {
		res.ExternalID = ""
		res.Err = fmt.Errorf("%w: %v", errChannelPanic, p)
	}
}
