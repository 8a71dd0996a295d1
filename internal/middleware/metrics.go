package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// unmatchedRoute labels requests no route matched, keeping label
// cardinality bounded.
const unmatchedRoute = "unmatched"

// RequestObserver receives one observation per finished request.
type RequestObserver interface {
	ObserveHTTPRequest(method, route string, status int, took time.Duration)
	TrackInFlight(delta int)
}

// Metrics reports every request to obs except those on skipped routes.
func Metrics(obs RequestObserver, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, route := range skip {
		skipped[route] = struct{}{}
	}
	return func(c *gin.Context) {
		route := c.FullPath()
		if _, ok := skipped[route]; ok || obs == nil {
			c.Next()
			return
		}

		obs.TrackInFlight(1)
		start := time.Now()
		defer func() {
			obs.TrackInFlight(-1)
			if route == "" {
				route = unmatchedRoute
			}
			obs.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
		}()
		c.Next()
	}
}
