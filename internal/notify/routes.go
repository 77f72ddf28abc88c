package notify

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"academia-veritas/registry-backend/internal/auth"
)

// Handler exposes the WebSocket subscription endpoint.
type Handler struct {
	hub    *Hub
	auth   auth.Service
	logger *zap.Logger
}

// NewHandler creates a new notify handler.
func NewHandler(hub *Hub, authService auth.Service, logger *zap.Logger) *Handler {
	return &Handler{hub: hub, auth: authService, logger: logger}
}

// RegisterRoutes registers the event stream route.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/events", h.Subscribe)
}

// Subscribe upgrades the request to a WebSocket after validating the caller's
// token. Browsers cannot attach headers to a WebSocket dial, so the token is
// accepted from the query string as well as the Authorization header.
func (h *Handler) Subscribe(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		header := c.GetHeader("Authorization")
		token = strings.TrimPrefix(header, "Bearer ")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	claims, err := h.auth.ParseToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	if err := h.hub.ServeWS(c.Writer, c.Request, claims.Subject); err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
	}
}
