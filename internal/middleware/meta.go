package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-admin-api/pkg/middleware/requestid"
)

const (
	metaKey      = "response_meta"
	metaStartKey = "response_meta_start"
)

// WithResponseMeta starts the clock used for processing_time_ms.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(metaStartKey, time.Now())
		c.Next()
	}
}

// SetMeta attaches key to the meta block of the response.
func SetMeta(c *gin.Context, key string, value interface{}) {
	meta, _ := c.Get(metaKey)
	m, ok := meta.(map[string]interface{})
	if !ok {
		m = map[string]interface{}{}
		c.Set(metaKey, m)
	}
	m[key] = value
}

// SetCacheHit records whether the payload came from cache.
func SetCacheHit(c *gin.Context, hit bool) {
	SetMeta(c, "cache_hit", hit)
}

// ResponseMeta returns the accumulated meta plus request_id and
// processing_time_ms. Without WithResponseMeta the time is measured from
// since, when given.
func ResponseMeta(c *gin.Context, since ...time.Time) map[string]interface{} {
	out := map[string]interface{}{}
	if meta, ok := c.Get(metaKey); ok {
		for k, v := range meta.(map[string]interface{}) {
			out[k] = v
		}
	}
	start, ok := c.Get(metaStartKey)
	switch {
	case ok:
		out["processing_time_ms"] = time.Since(start.(time.Time)).Milliseconds()
	case len(since) > 0:
		out["processing_time_ms"] = time.Since(since[0]).Milliseconds()
	}
	if id := requestid.Value(c); id != "" {
		out["request_id"] = id
	}
	return out
}
