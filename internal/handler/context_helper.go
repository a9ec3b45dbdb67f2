package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/Paashik/MyIS-sub004/internal/middleware"
	"github.com/Paashik/MyIS-sub004/internal/models"
)

// claimsFromContext returns the authenticated user's claims, or nil when the
// route skipped the JWT middleware.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	if value, ok := c.Get(middleware.ContextUserKey); ok {
		if claims, ok := value.(*models.JWTClaims); ok {
			return claims
		}
	}
	return nil
}
