package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"planify-notification/internal/directory"
	"planify-notification/internal/model"
)

type fakeTemplates struct {
	byKey map[string]*model.Template
}

func newFakeTemplates(templates ...*model.Template) *fakeTemplates {
	f := &fakeTemplates{byKey: map[string]*model.Template{}}
	for _, t := range templates {
		f.byKey[t.Key] = t
	}
	return f
}

func (f *fakeTemplates) FindActiveByKey(_ context.Context, key string) (*model.Template, error) {
	t, ok := f.byKey[key]
	if !ok || !t.Active {
		return nil, model.ErrTemplateNotFound
	}
	return t, nil
}

type fakeLog struct {
	mu      sync.Mutex
	records []*model.DispatchRecord
	err     error
}

func (f *fakeLog) Save(_ context.Context, rec *model.DispatchRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	cp := *rec
	f.records = append(f.records, &cp)
	return nil
}

func (f *fakeLog) all() []*model.DispatchRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.DispatchRecord(nil), f.records...)
}

type fakeFeed struct {
	mu      sync.Mutex
	entries []*model.InAppNotification
	err     error
}

func (f *fakeFeed) Insert(_ context.Context, n *model.InAppNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, n)
	return nil
}

type fakePusher struct {
	mu   sync.Mutex
	sent map[uuid.UUID][]any
}

func newFakePusher() *fakePusher { return &fakePusher{sent: map[uuid.UUID][]any{}} }

func (f *fakePusher) SendToUser(userID uuid.UUID, payload any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[userID] = append(f.sent[userID], payload)
	return true
}

type fakeEmail struct {
	mu    sync.Mutex
	calls []string
	err   error
	panic bool
}

func (f *fakeEmail) Send(_ context.Context, to, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panic {
		panic("smtp exploded")
	}
	f.calls = append(f.calls, to)
	if f.err != nil {
		return "", f.err
	}
	return "email-" + to, nil
}

type fakeSMS struct {
	mu     sync.Mutex
	bodies []string
	err    error
}

func (f *fakeSMS) Send(ctx context.Context, _, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies = append(f.bodies, body)
	if f.err != nil {
		return "", f.err
	}
	return "sms-id", nil
}

func (f *fakeSMS) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bodies)
}

// fakeAttendees enforces the (event_id, user_id) uniqueness like the table does.
type fakeAttendees struct {
	mu      sync.Mutex
	rows    map[[2]uuid.UUID]*model.AttendeeReminder
	order   []*model.AttendeeReminder
	listErr error
}

func newFakeAttendees(rows ...*model.AttendeeReminder) *fakeAttendees {
	f := &fakeAttendees{rows: map[[2]uuid.UUID]*model.AttendeeReminder{}}
	for _, r := range rows {
		f.rows[[2]uuid.UUID{r.EventID, r.UserID}] = r
		f.order = append(f.order, r)
	}
	return f
}

func (f *fakeAttendees) FindByEventAndUser(_ context.Context, eventID, userID uuid.UUID) (*model.AttendeeReminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[[2]uuid.UUID{eventID, userID}], nil
}

func (f *fakeAttendees) InsertIfAbsent(_ context.Context, a *model.AttendeeReminder) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := [2]uuid.UUID{a.EventID, a.UserID}
	if _, ok := f.rows[key]; ok {
		return false, nil
	}
	f.rows[key] = a
	f.order = append(f.order, a)
	return true, nil
}

func (f *fakeAttendees) ListStartingBetween(_ context.Context, from, to time.Time) ([]*model.AttendeeReminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*model.AttendeeReminder
	for _, r := range f.order {
		if !r.EventStartAt.Before(from) && r.EventStartAt.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeAttendees) MarkSent(_ context.Context, id uuid.UUID, sentAt time.Time, logID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.order {
		if r.ID == id {
			r.Sent = true
			r.SentAt = &sentAt
			r.NotificationLogID = logID
			return nil
		}
	}
	return errors.New("attendee not found")
}

func (f *fakeAttendees) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeDirectory struct {
	users    map[uuid.UUID]*model.UserProfile
	err      error
	onLookup func()
}

func (f *fakeDirectory) GetUser(ctx context.Context, id uuid.UUID) (*model.UserProfile, error) {
	if f.onLookup != nil {
		f.onLookup()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, directory.ErrUserNotFound
	}
	return u, nil
}

func boolPtr(b bool) *bool { return &b }
