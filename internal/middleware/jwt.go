package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-admin-api/internal/models"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
	"github.com/noah-isme/academy-admin-api/pkg/response"
)

// ContextUserKey is the gin context key holding *models.JWTClaims.
const ContextUserKey = "currentUser"

const bearerChallenge = `Bearer realm="academy-admin-api"`

type TokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// JWT admits requests carrying a valid bearer access token. Rejections carry
// a WWW-Authenticate challenge.
func JWT(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := authenticate(validator, c.GetHeader("Authorization"))
		if err != nil {
			c.Header("WWW-Authenticate", bearerChallenge)
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

func authenticate(validator TokenValidator, header string) (*models.JWTClaims, error) {
	token, err := bearerToken(header)
	if err != nil {
		return nil, err
	}
	return validator.ValidateToken(token)
}

// bearerToken extracts the credentials of an "Authorization: Bearer" header.
// The scheme is case-insensitive.
func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", appErrors.ErrUnauthorized
	}
	scheme, token, found := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")
	}
	return token, nil
}

// CurrentUser returns the claims stored by JWT, or nil on public routes.
func CurrentUser(c *gin.Context) *models.JWTClaims {
	value, ok := c.Get(ContextUserKey)
	if !ok {
		return nil
	}
	claims, _ := value.(*models.JWTClaims)
	return claims
}
