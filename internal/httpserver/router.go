package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"planify-notification/internal/push"
	"planify-notification/pkg/rbac"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReminderTrigger is satisfied by service.ReminderService.
type ReminderTrigger interface {
	RunDue(ctx context.Context) (int, error)
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	db Pinger,
	reminders ReminderTrigger,
	feed Feed,
	registry *push.Registry,
	jwtSecret string,
	logger *zap.Logger,
) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), MetricsMiddleware(logger))

	// Health endpoints
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	reminderHandler := NewReminderHandler(reminders, logger)
	trigger := r.Group("/api/reminders")
	trigger.Use(AuthMiddleware(jwtSecret), RequirePermission(rbac.PermissionTriggerReminders))
	{
		trigger.POST("/send", reminderHandler.Send)
		trigger.GET("/send", reminderHandler.Send)
	}

	feedHandler := NewFeedHandler(feed, logger)
	notifications := r.Group("/api/notifications")
	notifications.Use(AuthMiddleware(jwtSecret), RequirePermission(rbac.PermissionReadFeed))
	{
		notifications.GET("/user/:userId", feedHandler.List)
		notifications.GET("/user/:userId/unread", feedHandler.Unread)
		notifications.GET("/user/:userId/unread/count", feedHandler.UnreadCount)
		notifications.PUT("/user/:userId/read-all", feedHandler.MarkAllRead)
		notifications.DELETE("/user/:userId/all", feedHandler.DeleteAll)
		notifications.PUT("/:id/read", feedHandler.MarkRead)
		notifications.DELETE("/:id", feedHandler.Delete)
	}

	wsHandler := NewWSHandler(registry, logger)
	r.GET("/ws", AuthMiddleware(jwtSecret), RequirePermission(rbac.PermissionSubscribePush), wsHandler.Connect)

	return &Router{Engine: r}
}
