package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"planify-notification/internal/directory"
	"planify-notification/internal/model"
	"planify-notification/internal/render"
	"planify-notification/internal/sender"
	"planify-notification/pkg/logger"
	"planify-notification/pkg/metrics"
	"planify-notification/pkg/otel"
)

// ErrRunInProgress is returned when RunDue is called while a run is active.
var ErrRunInProgress = errors.New("reminder run already in progress")

const (
	reminderSubject    = "Event Reminder"
	reminderTimeLayout = "02.01.2006 15:04"
	reminderMessage    = "You have an event coming tomorrow! Event: %s Start time: %s"
)

// ReminderStore is the scheduler's view of attendee reminders.
type ReminderStore interface {
	ListStartingBetween(ctx context.Context, from, to time.Time) ([]*model.AttendeeReminder, error)
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time, logID uuid.UUID) error
}

// FallbackDispatcher sends the fallback template through the dispatch engine.
type FallbackDispatcher interface {
	DispatchByKey(ctx context.Context, key string, vars map[string]any, r model.Recipient, dctx model.DispatchContext) (*model.DispatchRecord, error)
}

// ReminderService sends SMS reminders for events starting tomorrow (UTC).
type ReminderService struct {
	reminders ReminderStore
	users     directory.Client
	sms       sender.SMSSender
	logs      DispatchLog
	fallback  FallbackDispatcher
	logger    *zap.Logger

	now               func() time.Time
	fallbackMarksSent bool

	running sync.Mutex
}

func NewReminderService(
	reminders ReminderStore,
	users directory.Client,
	sms sender.SMSSender,
	logs DispatchLog,
	fallback FallbackDispatcher,
	logger *zap.Logger,
) *ReminderService {
	return &ReminderService{
		reminders: reminders,
		users:     users,
		sms:       sms,
		logs:      logs,
		fallback:  fallback,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock replaces the wall clock.
func (s *ReminderService) WithClock(now func() time.Time) *ReminderService {
	s.now = now
	return s
}

// WithFallbackMarksSent makes a SENT fallback dispatch mark the attendee sent.
func (s *ReminderService) WithFallbackMarksSent(enabled bool) *ReminderService {
	s.fallbackMarksSent = enabled
	return s
}

// TomorrowWindow returns [tomorrow 00:00 UTC, +24h) relative to now.
func TomorrowWindow(now time.Time) (time.Time, time.Time) {
	u := now.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	return start, start.Add(24 * time.Hour)
}

// RunDue processes every attendee due tomorrow and returns how many were
// marked sent. Overlapping calls fail fast with ErrRunInProgress. The batch
// ignores cancellation of ctx and always runs to the last attendee.
func (s *ReminderService) RunDue(ctx context.Context) (int, error) {
	if !s.running.TryLock() {
		metrics.RecordReminderRun("in_progress", 0)
		return 0, ErrRunInProgress
	}
	defer s.running.Unlock()

	ctx = context.WithoutCancel(ctx)
	ctx, span := otel.StartSpan(ctx, "reminder.run_due")
	defer span.End()
	log := logger.WithTrace(ctx, s.logger)

	from, to := TomorrowWindow(s.now())
	attendees, err := s.reminders.ListStartingBetween(ctx, from, to)
	if err != nil {
		metrics.RecordReminderRun("error", 0)
		return 0, fmt.Errorf("list due attendees: %w", err)
	}
	log.Info("Found attendees with events tomorrow",
		zap.Int("count", len(attendees)),
		zap.Time("from", from),
		zap.Time("to", to),
	)

	sent := 0
	for _, a := range attendees {
		if s.processAttendee(ctx, a) {
			sent++
		}
	}

	metrics.RecordReminderRun("ok", sent)
	log.Info("Reminder run finished", zap.Int("sent", sent))
	return sent, nil
}

// processAttendee reports whether the attendee was marked sent. Panics are
// contained so the batch always completes.
func (s *ReminderService) processAttendee(ctx context.Context, a *model.AttendeeReminder) (marked bool) {
	log := logger.WithTrace(ctx, s.logger).With(
		zap.String("event_id", a.EventID.String()),
		zap.String("user_id", a.UserID.String()),
	)
	defer func() {
		if p := recover(); p != nil {
			log.Error("Reminder processing panicked", zap.Any("panic", p))
			marked = false
		}
	}()

	if a.Sent {
		log.Debug("Reminder already sent")
		return false
	}

	user, err := s.users.GetUser(ctx, a.UserID)
	if err != nil {
		log.Error("User lookup failed, skipping attendee", zap.Error(err))
		return false
	}
	if !user.AllowsSMS() {
		log.Info("No SMS consent, skipping reminder")
		return false
	}
	if strings.TrimSpace(user.PhoneNumber) == "" {
		log.Info("No phone number, skipping reminder")
		return false
	}

	body := render.TruncateSMS(
		fmt.Sprintf(reminderMessage, a.EventTitle, a.EventStartAt.UTC().Format(reminderTimeLayout)),
		render.MaxSMSLength,
	)
	rec := &model.DispatchRecord{
		ID:             uuid.New(),
		EventID:        a.EventID,
		UserID:         a.UserID,
		RecipientPhone: user.PhoneNumber,
		Kind:           model.KindSMS,
		TemplateKey:    model.TemplateEventReminderSMS,
		Subject:        reminderSubject,
		Body:           body,
	}

	externalID, sendErr := s.sms.Send(ctx, user.PhoneNumber, body)
	metrics.RecordChannelAttempt(model.ChannelSMS, sendErr == nil)
	if sendErr != nil {
		log.Warn("Reminder SMS failed", zap.Error(sendErr))
		rec.Status = model.StatusFailed
		rec.ErrorMessage = sendErr.Error()
		s.saveRecord(ctx, log, rec)
		return s.sendFallback(ctx, log, a, user)
	}

	sentAt := s.now().UTC()
	rec.Status = model.StatusSent
	rec.SentAt = &sentAt
	rec.ExternalID = externalID
	logID := uuid.Nil
	if s.saveRecord(ctx, log, rec) {
		logID = rec.ID
	}

	if err := s.reminders.MarkSent(ctx, a.ID, sentAt, logID); err != nil {
		log.Error("Failed to mark reminder sent", zap.Error(err))
		return false
	}
	log.Info("Reminder SMS sent", zap.String("external_id", externalID))
	return true
}

func (s *ReminderService) sendFallback(ctx context.Context, log *zap.Logger, a *model.AttendeeReminder, user *model.UserProfile) bool {
	if !user.AllowsEmail() {
		log.Info("No email consent, skipping fallback")
		return false
	}
	if strings.TrimSpace(user.Email) == "" {
		log.Info("No email address, skipping fallback")
		return false
	}

	vars := map[string]any{
		"event_title":    a.EventTitle,
		"event_start_at": a.EventStartAt.UTC().Format(reminderTimeLayout),
	}
	rec, err := s.fallback.DispatchByKey(ctx, model.TemplateSMSReminderFallback, vars,
		model.Recipient{UserID: a.UserID, Email: user.Email},
		model.DispatchContext{
			EventID:          a.EventID,
			NotificationType: model.TypeSMSReminderFallback,
			ReferenceID:      a.EventID,
			ReferenceType:    model.ReferenceEvent,
		},
	)
	if errors.Is(err, model.ErrTemplateNotFound) {
		log.Error("Fallback template not found")
		return false
	}
	if err != nil {
		log.Error("Fallback dispatch failed", zap.Error(err))
	}
	if rec == nil {
		return false
	}
	log.Info("Fallback dispatched", zap.String("status", string(rec.Status)))

	if !s.fallbackMarksSent || rec.Status != model.StatusSent {
		return false
	}
	if err := s.reminders.MarkSent(ctx, a.ID, s.now().UTC(), rec.ID); err != nil {
		log.Error("Failed to mark reminder sent after fallback", zap.Error(err))
		return false
	}
	return true
}

func (s *ReminderService) saveRecord(ctx context.Context, log *zap.Logger, rec *model.DispatchRecord) bool {
	metrics.RecordDispatch(string(rec.Status))
	if err := s.logs.Save(ctx, rec); err != nil {
		log.Error("Failed to save reminder record", zap.Error(err))
		return false
	}
	return true
}
