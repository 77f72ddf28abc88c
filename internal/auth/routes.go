package auth

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the registration and login endpoints for both
// account types.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	institution := rg.Group("/institution")
	{
		institution.POST("/register", h.RegisterInstitution)
		institution.POST("/login", h.LoginInstitution)
	}
	verifier := rg.Group("/verifier")
	{
		verifier.POST("/register", h.RegisterVerifier)
		verifier.POST("/login", h.LoginVerifier)
	}
}
