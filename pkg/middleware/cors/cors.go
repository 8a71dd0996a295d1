package cors

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// Options configures the middleware. An empty AllowedOrigins list allows any
// origin without credentials.
type Options struct {
	AllowedOrigins []string
	ExposedHeaders []string
	MaxAgeSeconds  int
}

const (
	allowHeaders = "Authorization, Content-Type, X-Requested-With, X-Request-ID"
	allowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
)

// New returns the CORS middleware.
func New(opts Options) gin.HandlerFunc {
	origins := make(map[string]struct{}, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins[o] = struct{}{}
		}
	}
	_, wildcard := origins["*"]
	allowAny := len(origins) == 0 || wildcard
	exposed := strings.Join(opts.ExposedHeaders, ", ")
	maxAge := opts.MaxAgeSeconds
	if maxAge <= 0 {
		maxAge = 600
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Add("Vary", "Origin")
		origin := strings.TrimRight(c.GetHeader("Origin"), "/")
		switch {
		case origin == "":
		case allowAny:
			h.Set("Access-Control-Allow-Origin", "*")
		default:
			if _, ok := origins[origin]; !ok {
				break
			}
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		if exposed != "" {
			h.Set("Access-Control-Expose-Headers", exposed)
		}

		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Allow-Methods", allowMethods)
			h.Set("Access-Control-Max-Age", strconv.Itoa(maxAge))
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
