package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"planify-notification/internal/model"
	"planify-notification/pkg/logger"
	"planify-notification/pkg/rbac"
)

// Feed is satisfied by service.FeedService.
type Feed interface {
	List(ctx context.Context, userID uuid.UUID, page, size int) (*model.FeedPage, error)
	Unread(ctx context.Context, userID uuid.UUID) ([]*model.InAppNotification, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
	Get(ctx context.Context, id uuid.UUID) (*model.InAppNotification, error)
	MarkRead(ctx context.Context, id uuid.UUID) (*model.InAppNotification, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteAll(ctx context.Context, userID uuid.UUID) (int64, error)
}

// FeedHandler serves /api/notifications. Callers reach only their own feed
// unless their role may manage any feed.
type FeedHandler struct {
	feed   Feed
	logger *zap.Logger
}

func NewFeedHandler(feed Feed, logger *zap.Logger) *FeedHandler {
	return &FeedHandler{feed: feed, logger: logger}
}

func (h *FeedHandler) List(c *gin.Context) {
	userID, ok := h.pathUser(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "0"))

	result, err := h.feed.List(c.Request.Context(), userID, page, size)
	if err != nil {
		h.fail(c, "list feed", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *FeedHandler) Unread(c *gin.Context) {
	userID, ok := h.pathUser(c)
	if !ok {
		return
	}
	items, err := h.feed.Unread(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, "list unread", err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *FeedHandler) UnreadCount(c *gin.Context) {
	userID, ok := h.pathUser(c)
	if !ok {
		return
	}
	n, err := h.feed.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, "count unread", err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *FeedHandler) MarkRead(c *gin.Context) {
	id, ok := h.ownedEntry(c)
	if !ok {
		return
	}
	n, err := h.feed.MarkRead(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "mark read", err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *FeedHandler) MarkAllRead(c *gin.Context) {
	userID, ok := h.pathUser(c)
	if !ok {
		return
	}
	n, err := h.feed.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, "mark all read", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (h *FeedHandler) Delete(c *gin.Context) {
	id, ok := h.ownedEntry(c)
	if !ok {
		return
	}
	if err := h.feed.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, "delete", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *FeedHandler) DeleteAll(c *gin.Context) {
	userID, ok := h.pathUser(c)
	if !ok {
		return
	}
	if _, err := h.feed.DeleteAll(c.Request.Context(), userID); err != nil {
		h.fail(c, "delete all", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// pathUser parses :userId and checks the caller may act on that feed.
func (h *FeedHandler) pathUser(c *gin.Context) (uuid.UUID, bool) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return uuid.Nil, false
	}
	if !mayAccess(c, userID) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
		return uuid.Nil, false
	}
	return userID, true
}

// ownedEntry parses :id and checks the caller owns the entry.
// Entries of other users answer 404 like missing ones.
func (h *FeedHandler) ownedEntry(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return uuid.Nil, false
	}
	n, err := h.feed.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "find", err)
		return uuid.Nil, false
	}
	if !mayAccess(c, n.UserID) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": model.ErrNotificationNotFound.Error()})
		return uuid.Nil, false
	}
	return id, true
}

func mayAccess(c *gin.Context, owner uuid.UUID) bool {
	if caller, err := uuid.Parse(c.GetString(ctxUserID)); err == nil && caller == owner {
		return true
	}
	return rbac.HasPermission(c.GetString(ctxRole), rbac.PermissionManageAnyFeed)
}

func (h *FeedHandler) fail(c *gin.Context, op string, err error) {
	if errors.Is(err, model.ErrNotificationNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	logger.WithTrace(c.Request.Context(), h.logger).Error("Feed request failed",
		zap.String("op", op),
		zap.Error(err),
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
