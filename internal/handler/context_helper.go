package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-admin-api/internal/middleware"
	"github.com/noah-isme/academy-admin-api/internal/models"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
	"github.com/noah-isme/academy-admin-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.CurrentUser(c)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// requestMeta captures the caller address for audit entries.
func requestMeta(c *gin.Context) models.ClientMeta {
	return models.ClientMeta{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
}

// bindJSON decodes the body into dest or writes a 400 and returns false.
func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Validation(err, message))
		return false
	}
	return true
}

// mustClaims returns the authenticated caller or writes a 401.
func mustClaims(c *gin.Context) (*models.JWTClaims, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return claims, true
}
