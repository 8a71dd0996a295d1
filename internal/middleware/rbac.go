package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-admin-api/internal/models"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
	"github.com/noah-isme/academy-admin-api/pkg/response"
)

// RequireRoles lets the request through when the caller holds one of roles.
// Admins pass every check.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles)+1)
	allowed[models.RoleAdmin] = struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := CurrentUser(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// AdminOnly is RequireRoles with no extra roles.
func AdminOnly() gin.HandlerFunc {
	return RequireRoles()
}
