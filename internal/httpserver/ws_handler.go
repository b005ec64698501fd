package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"planify-notification/internal/push"
)

type WSHandler struct {
	registry *push.Registry
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewWSHandler(registry *push.Registry, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin is not checked, the token authenticates the caller.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Connect upgrades an authenticated request and keeps the session registered
// until the peer disconnects.
func (h *WSHandler) Connect(c *gin.Context) {
	userID, err := uuid.Parse(c.GetString(ctxUserID))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.String("user_id", userID.String()), zap.Error(err))
		return
	}

	session := push.NewWSSession(conn)
	if previous := h.registry.Register(userID, session); previous != nil {
		_ = previous.Close()
	}
	h.logger.Info("Push session opened",
		zap.String("user_id", userID.String()),
		zap.String("session_id", session.ID()),
	)

	session.Serve()

	h.registry.UnregisterSession(userID, session)
	_ = session.Close()
	h.logger.Info("Push session closed",
		zap.String("user_id", userID.String()),
		zap.String("session_id", session.ID()),
	)
}
