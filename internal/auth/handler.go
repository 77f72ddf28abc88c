package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handler struct {
	service Service
	logger  *zap.Logger
}

func NewHandler(service Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterInstitution(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name, email and password are required"})
		return
	}
	inst, err := h.service.RegisterInstitution(c.Request.Context(), req)
	if err != nil {
		h.writeRegisterError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":    inst.ID,
		"name":  inst.Name,
		"email": inst.Email,
	})
}

func (h *Handler) RegisterVerifier(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name, email and password are required"})
		return
	}
	v, err := h.service.RegisterVerifier(c.Request.Context(), req)
	if err != nil {
		h.writeRegisterError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":    v.ID,
		"name":  v.Name,
		"email": v.Email,
	})
}

func (h *Handler) LoginInstitution(c *gin.Context) {
	h.login(c, h.service.LoginInstitution)
}

func (h *Handler) LoginVerifier(c *gin.Context) {
	h.login(c, h.service.LoginVerifier)
}

func (h *Handler) login(c *gin.Context, authenticate func(context.Context, LoginRequest) (*TokenResponse, error)) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}
	token, err := authenticate(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, token)
}

func (h *Handler) writeRegisterError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
	default:
		h.logger.Error("registration failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
	}
}
