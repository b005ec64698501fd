package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"planify-notification/internal/model"
	"planify-notification/internal/sender"
	"planify-notification/pkg/config"
)

var reminderNow = time.Date(2025, 6, 1, 15, 30, 0, 0, time.UTC)

type reminderFixture struct {
	svc       *ReminderService
	attendees *fakeAttendees
	users     *fakeDirectory
	sms       *fakeSMS
	logs      *fakeLog
	email     *fakeEmail
}

func newReminderFixture(rows ...*model.AttendeeReminder) *reminderFixture {
	f := &reminderFixture{
		attendees: newFakeAttendees(rows...),
		users:     &fakeDirectory{users: map[uuid.UUID]*model.UserProfile{}},
		sms:       &fakeSMS{},
		logs:      &fakeLog{},
		email:     &fakeEmail{},
	}
	f.wire(f.email, f.sms)
	return f
}

// wire builds the engine and service over the given senders.
func (f *reminderFixture) wire(email sender.EmailSender, sms sender.SMSSender) {
	fallback := &model.Template{
		Key:          model.TemplateSMSReminderFallback,
		Kind:         model.KindPushEmail,
		Subject:      "Event reminder",
		BodyTemplate: "<p>$${event_title} at $${event_start_at}</p>",
		Active:       true,
	}
	engine := NewDispatchEngine(newFakeTemplates(fallback), f.logs, &fakeFeed{}, newFakePusher(), email, sms, zap.NewNop())
	f.svc = NewReminderService(f.attendees, f.users, sms, f.logs, engine, zap.NewNop()).
		WithClock(func() time.Time { return reminderNow })
}

func dueAttendee(title string) *model.AttendeeReminder {
	return &model.AttendeeReminder{
		ID:           uuid.New(),
		EventID:      uuid.New(),
		UserID:       uuid.New(),
		EventTitle:   title,
		EventStartAt: time.Date(2025, 6, 2, 18, 5, 0, 0, time.UTC),
	}
}

func consenting(phone, email string) *model.UserProfile {
	return &model.UserProfile{
		PhoneNumber:  phone,
		SMSConsent:   boolPtr(true),
		Email:        email,
		EmailConsent: boolPtr(true),
	}
}

func TestTomorrowWindow(t *testing.T) {
	from, to := TomorrowWindow(time.Date(2025, 12, 31, 23, 59, 0, 0, time.FixedZone("CET", 3600)))

	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, 24*time.Hour, to.Sub(from))
}

func TestRunDue_SendsSMSAndMarksSent(t *testing.T) {
	a := dueAttendee("Kickoff")
	f := newReminderFixture(a)
	f.users.users[a.UserID] = consenting("+38640111222", "")

	n, err := f.svc.RunDue(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, f.sms.bodies, 1)
	assert.Equal(t, "You have an event coming tomorrow! Event: Kickoff Start time: 02.06.2025 18:05", f.sms.bodies[0])
	assert.True(t, a.Sent)
	assert.Equal(t, reminderNow, *a.SentAt)

	records := f.logs.all()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, model.StatusSent, rec.Status)
	assert.Equal(t, model.KindSMS, rec.Kind)
	assert.Equal(t, model.TemplateEventReminderSMS, rec.TemplateKey)
	assert.Equal(t, "Event Reminder", rec.Subject)
	assert.Equal(t, "sms-id", rec.ExternalID)
	assert.Equal(t, rec.ID, a.NotificationLogID)
}

func TestRunDue_AlreadySentIsSkipped(t *testing.T) {
	a := dueAttendee("Kickoff")
	a.Sent = true
	f := newReminderFixture(a)
	f.users.users[a.UserID] = consenting("+386", "a@b.c")

	n, err := f.svc.RunDue(context.Background())

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, f.sms.count())
	assert.Empty(t, f.logs.all())
}

func TestRunDue_OutsideWindowIsIgnored(t *testing.T) {
	a := dueAttendee("Later")
	a.EventStartAt = time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)
	f := newReminderFixture(a)
	f.users.users[a.UserID] = consenting("+386", "")

	n, err := f.svc.RunDue(context.Background())

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, f.sms.count())
}

func TestRunDue_ConsentAndContactGaps(t *testing.T) {
	noConsent := dueAttendee("a")
	nilConsent := dueAttendee("b")
	noPhone := dueAttendee("c")
	unknown := dueAttendee("d")
	f := newReminderFixture(noConsent, nilConsent, noPhone, unknown)
	f.users.users[noConsent.UserID] = &model.UserProfile{PhoneNumber: "+386", SMSConsent: boolPtr(false), Email: "x@y.z", EmailConsent: boolPtr(true)}
	f.users.users[nilConsent.UserID] = &model.UserProfile{PhoneNumber: "+386"}
	f.users.users[noPhone.UserID] = consenting("", "x@y.z")

	n, err := f.svc.RunDue(context.Background())

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, f.sms.count())
	assert.Empty(t, f.email.calls)
	assert.Empty(t, f.logs.all())
}

func TestRunDue_DirectoryFailureSkipsOnlyThatAttendee(t *testing.T) {
	a := dueAttendee("Kickoff")
	f := newReminderFixture(a)
	f.users.err = errors.New("directory unavailable")

	n, err := f.svc.RunDue(context.Background())

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, f.sms.count())
}

func TestRunDue_CallerCancellationStillCompletesBatch(t *testing.T) {
	first, second, third := dueAttendee("a"), dueAttendee("b"), dueAttendee("c")
	f := newReminderFixture(first, second, third)
	for _, a := range []*model.AttendeeReminder{first, second, third} {
		f.users.users[a.UserID] = consenting("+386", "")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.users.onLookup = cancel

	n, err := f.svc.RunDue(ctx)

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, f.sms.count())
	assert.True(t, first.Sent)
	assert.True(t, second.Sent)
	assert.True(t, third.Sent)
}

func TestRunDue_WhitespaceContactsAreBlank(t *testing.T) {
	blankPhone := dueAttendee("a")
	blankEmail := dueAttendee("b")
	f := newReminderFixture(blankPhone, blankEmail)
	f.users.users[blankPhone.UserID] = consenting("   ", "x@y.z")
	f.users.users[blankEmail.UserID] = consenting("+386", " \t ")
	f.sms.err = errors.New("gateway down")

	n, err := f.svc.RunDue(context.Background())

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, f.sms.count())
	assert.Empty(t, f.email.calls)

	records := f.logs.all()
	require.Len(t, records, 1)
	assert.Equal(t, blankEmail.UserID, records[0].UserID)
	assert.Equal(t, model.StatusFailed, records[0].Status)
}

func TestRunDue_FallbackEmailSurvivesSMSOutage(t *testing.T) {
	rows := []*model.AttendeeReminder{dueAttendee("a"), dueAttendee("b"), dueAttendee("c")}
	f := newReminderFixture(rows...)
	for _, a := range rows {
		f.users.users[a.UserID] = consenting("+386", a.EventTitle+"@example.com")
	}
	f.sms.err = errors.New("gateway down")

	cfg := config.ResilienceConfig{
		Retry:          config.RetryConfig{MaxAttempts: 1},
		CircuitBreaker: config.CircuitBreakerConfig{FailureThreshold: 1, OpenSeconds: 60},
	}
	f.wire(sender.Resilient(f.email, f.sms, cfg, cfg, zap.NewNop()))

	n, err := f.svc.RunDue(context.Background())

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, f.sms.count())
	assert.Equal(t, []string{"a@example.com", "b@example.com", "c@example.com"}, f.email.calls)

	for _, rec := range f.logs.all() {
		if rec.TemplateKey == model.TemplateSMSReminderFallback {
			assert.Equal(t, model.StatusSent, rec.Status)
		}
	}
}

func TestRunDue_SMSFailureFallsBackToEmail(t *testing.T) {
	a := dueAttendee("Kickoff")
	f := newReminderFixture(a)
	f.users.users[a.UserID] = consenting("+386", "ana@example.com")
	f.sms.err = errors.New("gateway down")

	n, err := f.svc.RunDue(context.Background())

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, a.Sent)

	records := f.logs.all()
	require.Len(t, records, 2)
	assert.Equal(t, model.StatusFailed, records[0].Status)
	assert.Equal(t, model.TemplateEventReminderSMS, records[0].TemplateKey)
	assert.Equal(t, "gateway down", records[0].ErrorMessage)

	assert.Equal(t, model.TemplateSMSReminderFallback, records[1].TemplateKey)
	assert.Equal(t, model.StatusSent, records[1].Status)
	assert.Equal(t, a.EventID, records[1].EventID)
	assert.Equal(t, "<p>Kickoff at 02.06.2025 18:05</p>", records[1].Body)
	assert.Equal(t, []string{"ana@example.com"}, f.email.calls)
}

func TestRunDue_FallbackMarksSentWhenEnabled(t *testing.T) {
	a := dueAttendee("Kickoff")
	f := newReminderFixture(a)
	f.svc.WithFallbackMarksSent(true)
	f.users.users[a.UserID] = consenting("+386", "ana@example.com")
	f.sms.err = errors.New("gateway down")

	n, err := f.svc.RunDue(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, a.Sent)
	records := f.logs.all()
	require.Len(t, records, 2)
	assert.Equal(t, records[1].ID, a.NotificationLogID)

	n, err = f.svc.RunDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, f.sms.count())
}

func TestRunDue_SMSFailureWithoutEmailConsentStops(t *testing.T) {
	a := dueAttendee("Kickoff")
	f := newReminderFixture(a)
	f.users.users[a.UserID] = &model.UserProfile{PhoneNumber: "+386", SMSConsent: boolPtr(true), Email: "a@b.c"}
	f.sms.err = errors.New("gateway down")

	n, err := f.svc.RunDue(context.Background())

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, f.logs.all(), 1)
	assert.Empty(t, f.email.calls)
}

func TestRunDue_LongTitleIsTruncated(t *testing.T) {
	a := dueAttendee(strings.Repeat("t", 300))
	f := newReminderFixture(a)
	f.users.users[a.UserID] = consenting("+386", "")

	_, err := f.svc.RunDue(context.Background())

	require.NoError(t, err)
	require.Len(t, f.sms.bodies, 1)
	assert.Len(t, f.sms.bodies[0], 160)
	assert.True(t, strings.HasSuffix(f.sms.bodies[0], "..."))
}

func TestRunDue_ListError(t *testing.T) {
	f := newReminderFixture()
	f.attendees.listErr = errors.New("db down")

	_, err := f.svc.RunDue(context.Background())

	assert.Error(t, err)
}

// blockingSMS holds the first send until released.
type blockingSMS struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingSMS) Send(ctx context.Context, _, _ string) (string, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return "sms-id", nil
}

func TestRunDue_RejectsOverlappingRuns(t *testing.T) {
	a := dueAttendee("Kickoff")
	attendees := newFakeAttendees(a)
	users := &fakeDirectory{users: map[uuid.UUID]*model.UserProfile{a.UserID: consenting("+386", "")}}
	sms := &blockingSMS{entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewReminderService(attendees, users, sms, &fakeLog{}, nil, zap.NewNop()).
		WithClock(func() time.Time { return reminderNow })

	done := make(chan int)
	go func() {
		n, _ := svc.RunDue(context.Background())
		done <- n
	}()
	<-sms.entered

	_, err := svc.RunDue(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(sms.release)
	assert.Equal(t, 1, <-done)

	n, err := svc.RunDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
