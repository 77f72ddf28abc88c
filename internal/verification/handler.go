package verification

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"academia-veritas/registry-backend/internal/auth"
	"academia-veritas/registry-backend/internal/intake"
	"academia-veritas/registry-backend/internal/integrity"
)

// Handler handles HTTP requests for certificate verification.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler creates a new verification handler.
func NewHandler(service Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers the verification routes. The group is expected to
// be protected by the verifier auth middleware.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Verify)
	rg.GET("/history", h.History)
}

// Verify handles POST /api/verify
func (h *Handler) Verify(c *gin.Context) {
	verifierID, ok := auth.AccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	resp, err := h.service.Verify(c.Request.Context(), verifierID.String(), req, c.ClientIP())
	if err != nil {
		var extractErr *intake.ExtractError
		switch {
		case errors.As(err, &extractErr):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":          "could not extract certificate fields from text",
				"missing_fields": extractErr.Missing,
			})
		case errors.Is(err, integrity.ErrInvalidInput), errors.Is(err, integrity.ErrUnsupportedDate):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("verification failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		}
		return
	}

	status := http.StatusOK
	if resp.Tier == TierUnverified {
		status = http.StatusNotFound
	}
	c.JSON(status, resp)
}

// History handles GET /api/verify/history
func (h *Handler) History(c *gin.Context) {
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)

	attempts, err := h.service.History(c.Request.Context(), limit)
	if err != nil {
		if errors.Is(err, ErrHistoryUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "verification history unavailable"})
			return
		}
		h.logger.Error("failed to load verification history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load verification history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"attempts": attempts,
		"count":    len(attempts),
	})
}
