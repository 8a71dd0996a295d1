package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-admin-api/internal/models"
)

type AuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// auditTimeout bounds the write once the response has gone out; the request
// context may already be cancelled by then.
const auditTimeout = 3 * time.Second

// Audit appends an entry for every request on the route that ends below 400.
// The resource id is the :id path parameter, falling back to :entity.
func Audit(writer AuditWriter, action, resource string, logger ...*zap.Logger) gin.HandlerFunc {
	log := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		log = logger[0]
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		if writer == nil || status >= 400 {
			return
		}

		resourceID := c.Param("id")
		if resourceID == "" {
			resourceID = c.Param("entity")
		}
		entry := models.NewAuditLog(action, resource).
			ByClaims(CurrentUser(c)).
			On(resourceID).
			From(models.ClientMeta{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}).
			Change(nil, map[string]interface{}{
				"method":     c.Request.Method,
				"route":      c.FullPath(),
				"status":     status,
				"latency_ms": time.Since(start).Milliseconds(),
			})

		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), auditTimeout)
		defer cancel()
		if err := writer.CreateAuditLog(ctx, entry); err != nil {
			log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
		}
	}
}
