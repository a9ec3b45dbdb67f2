package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/Paashik/MyIS-sub004/internal/models"
	appErrors "github.com/Paashik/MyIS-sub004/pkg/errors"
	"github.com/Paashik/MyIS-sub004/pkg/response"
)

// RequirePermission gates a route on permission codes from the token. The
// caller passes when it holds any of the listed codes. Action-level workflow
// checks still happen in the engine; this guard covers whole endpoints.
func RequirePermission(codes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims, ok := claimsValue.(*models.JWTClaims)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		perms := claims.PermissionSet()
		for _, code := range codes {
			if perms.Has(code) {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}
