package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"planify-notification/internal/model"
)

// memFeedRepo keeps feed rows in memory, newest first on read.
type memFeedRepo struct {
	mu       sync.Mutex
	rows     map[uuid.UUID]*model.InAppNotification
	countErr error
}

func newMemFeedRepo(rows ...*model.InAppNotification) *memFeedRepo {
	r := &memFeedRepo{rows: map[uuid.UUID]*model.InAppNotification{}}
	for _, n := range rows {
		r.rows[n.ID] = n
	}
	return r
}

func (r *memFeedRepo) byUser(userID uuid.UUID, unreadOnly bool) []*model.InAppNotification {
	var out []*model.InAppNotification
	for _, n := range r.rows {
		if n.UserID == userID && (!unreadOnly || !n.IsRead) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *memFeedRepo) FindByID(_ context.Context, id uuid.UUID) (*model.InAppNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.rows[id]
	if !ok {
		return nil, model.ErrNotificationNotFound
	}
	return n, nil
}

func (r *memFeedRepo) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]*model.InAppNotification, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.byUser(userID, false)
	if offset >= len(all) {
		return nil, int64(len(all)), nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], int64(len(all)), nil
}

func (r *memFeedRepo) ListUnread(_ context.Context, userID uuid.UUID) ([]*model.InAppNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byUser(userID, true), nil
}

func (r *memFeedRepo) CountUnread(_ context.Context, userID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.countErr != nil {
		return 0, r.countErr
	}
	return int64(len(r.byUser(userID, true))), nil
}

func (r *memFeedRepo) MarkRead(_ context.Context, id uuid.UUID, readAt time.Time) (*model.InAppNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.rows[id]
	if !ok {
		return nil, model.ErrNotificationNotFound
	}
	if !n.IsRead {
		n.IsRead = true
		n.ReadAt = &readAt
	}
	return n, nil
}

func (r *memFeedRepo) MarkAllRead(_ context.Context, userID uuid.UUID, readAt time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var changed int64
	for _, n := range r.byUser(userID, true) {
		n.IsRead = true
		n.ReadAt = &readAt
		changed++
	}
	return changed, nil
}

func (r *memFeedRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return model.ErrNotificationNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *memFeedRepo) DeleteAllByUser(_ context.Context, userID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, row := range r.rows {
		if row.UserID == userID {
			delete(r.rows, id)
			n++
		}
	}
	return n, nil
}

func feedEntry(userID uuid.UUID, age time.Duration, read bool) *model.InAppNotification {
	return &model.InAppNotification{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     "t",
		Message:   "m",
		IsRead:    read,
		CreatedAt: reminderNow.Add(-age),
	}
}

func newFeedFixture(rows ...*model.InAppNotification) (*FeedService, *memFeedRepo, *fakePusher) {
	repo := newMemFeedRepo(rows...)
	pusher := newFakePusher()
	svc := NewFeedService(repo, pusher, zap.NewNop())
	svc.now = func() time.Time { return reminderNow }
	return svc, repo, pusher
}

func TestFeedService_ListPagesNewestFirst(t *testing.T) {
	user := uuid.New()
	newest := feedEntry(user, time.Minute, false)
	middle := feedEntry(user, time.Hour, true)
	oldest := feedEntry(user, 2*time.Hour, false)
	svc, _, _ := newFeedFixture(oldest, newest, middle, feedEntry(uuid.New(), 0, false))

	page, err := svc.List(context.Background(), user, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []*model.InAppNotification{newest, middle}, page.Content)
	assert.Equal(t, int64(3), page.TotalElements)
	assert.Equal(t, 2, page.TotalPages)

	page, err = svc.List(context.Background(), user, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []*model.InAppNotification{oldest}, page.Content)

	page, err = svc.List(context.Background(), user, 5, 2)
	require.NoError(t, err)
	assert.NotNil(t, page.Content)
	assert.Empty(t, page.Content)
}

func TestFeedService_ListClampsPaging(t *testing.T) {
	svc, _, _ := newFeedFixture()

	page, err := svc.List(context.Background(), uuid.New(), -3, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Page)
	assert.Equal(t, DefaultFeedPageSize, page.Size)
	assert.Zero(t, page.TotalPages)

	page, err = svc.List(context.Background(), uuid.New(), 0, 10_000)
	require.NoError(t, err)
	assert.Equal(t, MaxFeedPageSize, page.Size)
}

func TestFeedService_UnreadAndCount(t *testing.T) {
	user := uuid.New()
	unread := feedEntry(user, time.Minute, false)
	svc, _, _ := newFeedFixture(unread, feedEntry(user, time.Hour, true))

	items, err := svc.Unread(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, []*model.InAppNotification{unread}, items)

	n, err := svc.UnreadCount(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestFeedService_MarkReadPushesCount(t *testing.T) {
	user := uuid.New()
	a, b := feedEntry(user, time.Minute, false), feedEntry(user, time.Hour, false)
	svc, _, pusher := newFeedFixture(a, b)

	got, err := svc.MarkRead(context.Background(), a.ID)

	require.NoError(t, err)
	assert.True(t, got.IsRead)
	require.NotNil(t, got.ReadAt)
	assert.Equal(t, reminderNow, *got.ReadAt)
	assert.Equal(t, []any{model.CountUpdate{Type: "NOTIFICATION_COUNT_UPDATE", UserID: user, UnreadCount: 1}}, pusher.sent[user])
}

func TestFeedService_MarkReadUnknownPushesNothing(t *testing.T) {
	svc, _, pusher := newFeedFixture()

	_, err := svc.MarkRead(context.Background(), uuid.New())

	assert.ErrorIs(t, err, model.ErrNotificationNotFound)
	assert.Empty(t, pusher.sent)
}

func TestFeedService_MarkAllRead(t *testing.T) {
	user := uuid.New()
	svc, _, pusher := newFeedFixture(feedEntry(user, time.Minute, false), feedEntry(user, time.Hour, false), feedEntry(user, 0, true))

	n, err := svc.MarkAllRead(context.Background(), user)

	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, []any{model.CountUpdate{Type: model.CountUpdateType, UserID: user, UnreadCount: 0}}, pusher.sent[user])
}

func TestFeedService_DeleteAndDeleteAll(t *testing.T) {
	user := uuid.New()
	a, b := feedEntry(user, time.Minute, false), feedEntry(user, time.Hour, false)
	svc, repo, pusher := newFeedFixture(a, b)

	require.NoError(t, svc.Delete(context.Background(), a.ID))
	assert.ErrorIs(t, svc.Delete(context.Background(), a.ID), model.ErrNotificationNotFound)
	assert.Len(t, pusher.sent[user], 1)

	n, err := svc.DeleteAll(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Empty(t, repo.rows)
	assert.Equal(t, model.CountUpdate{Type: model.CountUpdateType, UserID: user}, pusher.sent[user][1])
}

func TestFeedService_CountFailureDoesNotFailChange(t *testing.T) {
	user := uuid.New()
	a := feedEntry(user, time.Minute, false)
	svc, repo, pusher := newFeedFixture(a)
	repo.countErr = errors.New("db down")

	_, err := svc.MarkRead(context.Background(), a.ID)

	require.NoError(t, err)
	assert.Empty(t, pusher.sent)
}
