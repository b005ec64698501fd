package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"planify-notification/internal/model"
	"planify-notification/pkg/logger"
)

const (
	DefaultFeedPageSize = 20
	MaxFeedPageSize     = 100
)

// FeedRepository is the read/update side of the push feed.
type FeedRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.InAppNotification, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.InAppNotification, int64, error)
	ListUnread(ctx context.Context, userID uuid.UUID) ([]*model.InAppNotification, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, id uuid.UUID, readAt time.Time) (*model.InAppNotification, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID, readAt time.Time) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteAllByUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

// FeedService serves a user's in-app notifications. Every change pushes the
// new unread count to the user's live session.
type FeedService struct {
	repo   FeedRepository
	pusher Pusher
	logger *zap.Logger
	now    func() time.Time
}

func NewFeedService(repo FeedRepository, pusher Pusher, logger *zap.Logger) *FeedService {
	return &FeedService{repo: repo, pusher: pusher, logger: logger, now: time.Now}
}

// List returns page (0-based) of the feed. size is clamped to [1, MaxFeedPageSize].
func (s *FeedService) List(ctx context.Context, userID uuid.UUID, page, size int) (*model.FeedPage, error) {
	if page < 0 {
		page = 0
	}
	switch {
	case size <= 0:
		size = DefaultFeedPageSize
	case size > MaxFeedPageSize:
		size = MaxFeedPageSize
	}

	items, total, err := s.repo.ListByUser(ctx, userID, size, page*size)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*model.InAppNotification{}
	}
	return &model.FeedPage{
		Content:       items,
		Page:          page,
		Size:          size,
		TotalElements: total,
		TotalPages:    int((total + int64(size) - 1) / int64(size)),
	}, nil
}

func (s *FeedService) Unread(ctx context.Context, userID uuid.UUID) ([]*model.InAppNotification, error) {
	items, err := s.repo.ListUnread(ctx, userID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*model.InAppNotification{}
	}
	return items, nil
}

func (s *FeedService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

// Get returns model.ErrNotificationNotFound for an unknown id.
func (s *FeedService) Get(ctx context.Context, id uuid.UUID) (*model.InAppNotification, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *FeedService) MarkRead(ctx context.Context, id uuid.UUID) (*model.InAppNotification, error) {
	n, err := s.repo.MarkRead(ctx, id, s.now().UTC())
	if err != nil {
		return nil, err
	}
	s.pushCount(ctx, n.UserID)
	return n, nil
}

func (s *FeedService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, err
	}
	s.pushCount(ctx, userID)
	return n, nil
}

func (s *FeedService) Delete(ctx context.Context, id uuid.UUID) error {
	n, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.pushCount(ctx, n.UserID)
	return nil
}

func (s *FeedService) DeleteAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.repo.DeleteAllByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.pushCount(ctx, userID)
	return n, nil
}

// pushCount is best-effort: a failed count query is logged and dropped.
func (s *FeedService) pushCount(ctx context.Context, userID uuid.UUID) {
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		logger.WithTrace(ctx, s.logger).Warn("Failed to count unread notifications",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		return
	}
	s.pusher.SendToUser(userID, model.CountUpdate{
		Type:        model.CountUpdateType,
		UserID:      userID,
		UnreadCount: count,
	})
}
