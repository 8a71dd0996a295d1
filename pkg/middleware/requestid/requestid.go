package requestid

import (
	"context"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Header carries the request id in both directions.
const Header = "X-Request-ID"

const contextKey = "request_id"

type ctxKey struct{}

var acceptable = regexp.MustCompile(`^[A-Za-z0-9._-]{8,64}$`)

// Middleware reuses a well-formed inbound X-Request-ID or mints a UUID, and
// exposes it on the gin context, the request context and the response.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(Header)
		if !acceptable.MatchString(id) {
			id = uuid.NewString()
		}
		c.Set(contextKey, id)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), ctxKey{}, id))
		c.Writer.Header().Set(Header, id)
		c.Next()
	}
}

// Value returns the id stored by Middleware, or "".
func Value(c *gin.Context) string {
	if c == nil {
		return ""
	}
	id, _ := c.Get(contextKey)
	s, _ := id.(string)
	return s
}

// FromContext returns the id carried by a request context, or "".
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(ctxKey{}).(string)
	return s
}
