package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	contextAccountID   = "auth_account_id"
	contextAccountType = "auth_account_type"
)

// RequireRole validates the bearer token and rejects callers whose account
// type does not match. Missing or malformed tokens are 401; a valid token
// with the wrong role is 403.
func RequireRole(svc Service, accountType AccountType) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bearer token required"})
			return
		}
		claims, err := svc.ParseToken(strings.TrimPrefix(header, prefix))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		if claims.AccountType != accountType {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			return
		}
		id, err := uuid.Parse(claims.Subject)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set(contextAccountID, id)
		c.Set(contextAccountType, claims.AccountType)
		c.Next()
	}
}

// AccountID returns the authenticated account id stored by RequireRole.
func AccountID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(contextAccountID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
