package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"planify-notification/internal/service"
	"planify-notification/pkg/logger"
)

type ReminderHandler struct {
	reminders ReminderTrigger
	logger    *zap.Logger
}

func NewReminderHandler(reminders ReminderTrigger, logger *zap.Logger) *ReminderHandler {
	return &ReminderHandler{reminders: reminders, logger: logger}
}

// Send runs due reminders synchronously and returns {"sent": n}.
func (h *ReminderHandler) Send(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.WithTrace(ctx, h.logger).With(zap.String("triggered_by", c.GetString(ctxUserID)))

	sent, err := h.reminders.RunDue(ctx)
	if errors.Is(err, service.ErrRunInProgress) {
		log.Info("Reminder run already in progress")
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		log.Error("Reminder run failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reminder run failed"})
		return
	}

	log.Info("Reminder run triggered", zap.Int("sent", sent))
	c.JSON(http.StatusOK, gin.H{"sent": sent})
}
