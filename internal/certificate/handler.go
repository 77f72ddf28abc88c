package certificate

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"academia-veritas/registry-backend/internal/auth"
	"academia-veritas/registry-backend/internal/integrity"
	"academia-veritas/registry-backend/internal/ledger"
)

// Handler handles HTTP requests for certificate operations.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler creates a new certificate handler.
func NewHandler(service Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers certificate routes. The group is expected to be
// protected by the institution auth middleware.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Issue)
	rg.GET("", h.List)
	rg.GET("/export", h.Export)
	rg.POST("/batch-anchor", h.BatchAnchor)
	rg.GET("/:id", h.Get)
	rg.GET("/:id/pdf", h.DownloadPDF)
}

// Issue handles POST /api/certificates
func (h *Handler) Issue(c *gin.Context) {
	institutionID, ok := auth.AccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	result, err := h.service.Issue(c.Request.Context(), institutionID, req)
	if err != nil {
		h.writeError(c, err, "failed to issue certificate")
		return
	}
	c.JSON(http.StatusCreated, result)
}

// List handles GET /api/certificates
func (h *Handler) List(c *gin.Context) {
	institutionID, ok := auth.AccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	result, err := h.service.List(c.Request.Context(), institutionID, page, limit)
	if err != nil {
		h.writeError(c, err, "failed to list certificates")
		return
	}
	c.JSON(http.StatusOK, result)
}

// Get handles GET /api/certificates/:id
func (h *Handler) Get(c *gin.Context) {
	institutionID, ok := auth.AccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid certificate id"})
		return
	}

	cert, err := h.service.Get(c.Request.Context(), institutionID, id)
	if err != nil {
		h.writeError(c, err, "failed to get certificate")
		return
	}
	c.JSON(http.StatusOK, cert)
}

// DownloadPDF handles GET /api/certificates/:id/pdf
func (h *Handler) DownloadPDF(c *gin.Context) {
	institutionID, ok := auth.AccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid certificate id"})
		return
	}

	pdfBytes, err := h.service.RenderPDF(c.Request.Context(), institutionID, id)
	if err != nil {
		h.writeError(c, err, "failed to render certificate pdf")
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"certificate-%s.pdf\"", id))
	c.Data(http.StatusOK, "application/pdf", pdfBytes)
}

// Export handles GET /api/certificates/export. The default format is an
// XLSX workbook; ?format=csv selects plain CSV.
func (h *Handler) Export(c *gin.Context) {
	institutionID, ok := auth.AccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	switch format := c.DefaultQuery("format", "xlsx"); format {
	case "xlsx":
		workbook, err := h.service.ExportWorkbook(c.Request.Context(), institutionID)
		if err != nil {
			h.writeError(c, err, "failed to export certificates")
			return
		}
		c.Header("Content-Disposition", "attachment; filename=\"certificates.xlsx\"")
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", workbook)
	case "csv":
		records, err := h.service.ExportCSV(c.Request.Context(), institutionID)
		if err != nil {
			h.writeError(c, err, "failed to export certificates")
			return
		}
		c.Header("Content-Disposition", "attachment; filename=\"certificates.csv\"")
		c.Data(http.StatusOK, "text/csv", records)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported export format: " + format})
	}
}

// BatchAnchor handles POST /api/certificates/batch-anchor
func (h *Handler) BatchAnchor(c *gin.Context) {
	institutionID, ok := auth.AccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	result, err := h.service.BatchAnchor(c.Request.Context(), institutionID)
	if err != nil {
		h.writeError(c, err, "failed to batch anchor certificates")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) writeError(c *gin.Context, err error, logMsg string) {
	switch {
	case errors.Is(err, integrity.ErrInvalidInput), errors.Is(err, integrity.ErrUnsupportedDate):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrDuplicateFingerprint):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "certificate not found"})
	case errors.Is(err, ErrNothingPending):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrAnchorTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "ledger anchoring timed out"})
	case errors.Is(err, ledger.ErrAnchorUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "ledger network unavailable"})
	default:
		h.logger.Error(logMsg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": logMsg})
	}
}
