package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"planify-notification/internal/model"
	"planify-notification/internal/push"
	"planify-notification/internal/service"
	"planify-notification/pkg/rbac"
)

// memFeed is an in-memory service.FeedRepository.
type memFeed struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*model.InAppNotification
}

func newMemFeed(rows ...*model.InAppNotification) *memFeed {
	m := &memFeed{rows: map[uuid.UUID]*model.InAppNotification{}}
	for _, n := range rows {
		m.rows[n.ID] = n
	}
	return m
}

func (m *memFeed) filter(userID uuid.UUID, unreadOnly bool) []*model.InAppNotification {
	var out []*model.InAppNotification
	for _, n := range m.rows {
		if n.UserID == userID && (!unreadOnly || !n.IsRead) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memFeed) FindByID(_ context.Context, id uuid.UUID) (*model.InAppNotification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.rows[id]; ok {
		return n, nil
	}
	return nil, model.ErrNotificationNotFound
}

func (m *memFeed) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]*model.InAppNotification, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.filter(userID, false)
	if offset >= len(all) {
		return nil, int64(len(all)), nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], int64(len(all)), nil
}

func (m *memFeed) ListUnread(_ context.Context, userID uuid.UUID) ([]*model.InAppNotification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(userID, true), nil
}

func (m *memFeed) CountUnread(_ context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.filter(userID, true))), nil
}

func (m *memFeed) MarkRead(_ context.Context, id uuid.UUID, readAt time.Time) (*model.InAppNotification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok {
		return nil, model.ErrNotificationNotFound
	}
	n.IsRead = true
	n.ReadAt = &readAt
	return n, nil
}

func (m *memFeed) MarkAllRead(_ context.Context, userID uuid.UUID, readAt time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	unread := m.filter(userID, true)
	for _, n := range unread {
		n.IsRead = true
		n.ReadAt = &readAt
	}
	return int64(len(unread)), nil
}

func (m *memFeed) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return model.ErrNotificationNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memFeed) DeleteAllByUser(_ context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, row := range m.rows {
		if row.UserID == userID {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

// recordingSession captures frames pushed to a user.
type recordingSession struct {
	mu     sync.Mutex
	frames [][]byte
}

func (s *recordingSession) ID() string   { return "rec" }
func (s *recordingSession) IsOpen() bool { return true }
func (s *recordingSession) Close() error { return nil }

func (s *recordingSession) Send(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, p)
	return nil
}

func (s *recordingSession) last(t *testing.T) model.CountUpdate {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.frames)
	var u model.CountUpdate
	require.NoError(t, json.Unmarshal(s.frames[len(s.frames)-1], &u))
	return u
}

func entry(userID uuid.UUID, age time.Duration, read bool) *model.InAppNotification {
	return &model.InAppNotification{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     "New request",
		Message:   "<p>hi</p>",
		IsRead:    read,
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Add(-age),
	}
}

func newFeedRouter(rows ...*model.InAppNotification) (*Router, *memFeed, *push.Registry) {
	repo := newMemFeed(rows...)
	registry := push.NewRegistry(zap.NewNop())
	feed := service.NewFeedService(repo, registry, zap.NewNop())
	return NewRouter(fakePinger{}, &fakeTrigger{}, feed, registry, testSecret, zap.NewNop()), repo, registry
}

func TestFeed_ListOwnFeed(t *testing.T) {
	user := uuid.New()
	newer, older := entry(user, time.Minute, false), entry(user, time.Hour, true)
	r, _, _ := newFeedRouter(older, newer, entry(uuid.New(), 0, false))

	w := do(r, http.MethodGet, "/api/notifications/user/"+user.String()+"?page=0&size=1", token(t, user.String(), rbac.RoleUser))

	require.Equal(t, http.StatusOK, w.Code)
	var page model.FeedPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Content, 1)
	assert.Equal(t, newer.ID, page.Content[0].ID)
	assert.Equal(t, int64(2), page.TotalElements)
	assert.Equal(t, 2, page.TotalPages)
}

func TestFeed_UnreadAndCount(t *testing.T) {
	user := uuid.New()
	unread := entry(user, time.Minute, false)
	r, _, _ := newFeedRouter(unread, entry(user, time.Hour, true))
	bearer := token(t, user.String(), rbac.RoleUser)

	w := do(r, http.MethodGet, "/api/notifications/user/"+user.String()+"/unread", bearer)
	require.Equal(t, http.StatusOK, w.Code)
	var items []model.InAppNotification
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, unread.ID, items[0].ID)

	w = do(r, http.MethodGet, "/api/notifications/user/"+user.String()+"/unread/count", bearer)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Body.String())
}

func TestFeed_Access(t *testing.T) {
	owner := uuid.New()
	path := "/api/notifications/user/" + owner.String() + "/unread/count"

	tests := []struct {
		name   string
		bearer string
		want   int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"owner", token(t, owner.String(), rbac.RoleUser), http.StatusOK},
		{"other user", token(t, uuid.NewString(), rbac.RoleUser), http.StatusForbidden},
		{"admin", token(t, uuid.NewString(), rbac.RoleAdmin), http.StatusOK},
		{"system", token(t, "scheduler", rbac.RoleSystem), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := newFeedRouter()
			assert.Equal(t, tt.want, do(r, http.MethodGet, path, tt.bearer).Code)
		})
	}

	r, _, _ := newFeedRouter()
	w := do(r, http.MethodGet, "/api/notifications/user/not-a-uuid", token(t, owner.String(), rbac.RoleUser))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFeed_MarkReadPushesCountUpdate(t *testing.T) {
	user := uuid.New()
	a, b := entry(user, time.Minute, false), entry(user, time.Hour, false)
	r, repo, registry := newFeedRouter(a, b)
	session := &recordingSession{}
	registry.Register(user, session)

	w := do(r, http.MethodPut, "/api/notifications/"+a.ID.String()+"/read", token(t, user.String(), rbac.RoleUser))

	require.Equal(t, http.StatusOK, w.Code)
	var got model.InAppNotification
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.True(t, got.IsRead)
	assert.NotNil(t, got.ReadAt)
	assert.True(t, repo.rows[a.ID].IsRead)

	update := session.last(t)
	assert.Equal(t, "NOTIFICATION_COUNT_UPDATE", update.Type)
	assert.Equal(t, user, update.UserID)
	assert.Equal(t, int64(1), update.UnreadCount)
}

func TestFeed_MarkReadOfOtherUsersEntryIsNotFound(t *testing.T) {
	owner := uuid.New()
	a := entry(owner, time.Minute, false)
	r, repo, _ := newFeedRouter(a)

	w := do(r, http.MethodPut, "/api/notifications/"+a.ID.String()+"/read", token(t, uuid.NewString(), rbac.RoleUser))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, repo.rows[a.ID].IsRead)

	w = do(r, http.MethodPut, "/api/notifications/"+uuid.NewString()+"/read", token(t, owner.String(), rbac.RoleUser))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFeed_MarkAllRead(t *testing.T) {
	user := uuid.New()
	r, _, registry := newFeedRouter(entry(user, time.Minute, false), entry(user, time.Hour, false))
	session := &recordingSession{}
	registry.Register(user, session)

	w := do(r, http.MethodPut, "/api/notifications/user/"+user.String()+"/read-all", token(t, user.String(), rbac.RoleUser))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"updated":2}`, w.Body.String())
	assert.Zero(t, session.last(t).UnreadCount)
}

func TestFeed_Delete(t *testing.T) {
	user := uuid.New()
	a, b := entry(user, time.Minute, false), entry(user, time.Hour, false)
	r, repo, registry := newFeedRouter(a, b)
	session := &recordingSession{}
	registry.Register(user, session)
	bearer := token(t, user.String(), rbac.RoleUser)

	w := do(r, http.MethodDelete, "/api/notifications/"+a.ID.String(), bearer)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotContains(t, repo.rows, a.ID)
	assert.Equal(t, int64(1), session.last(t).UnreadCount)

	w = do(r, http.MethodDelete, "/api/notifications/"+a.ID.String(), bearer)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodDelete, "/api/notifications/user/"+user.String()+"/all", bearer)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, repo.rows)
	assert.Zero(t, session.last(t).UnreadCount)
}
