package logger

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/noah-isme/academy-admin-api/pkg/config"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
	"github.com/noah-isme/academy-admin-api/pkg/middleware/requestid"
	"github.com/noah-isme/academy-admin-api/pkg/response"
)

const serviceName = "academy-admin-api"

// New builds the process logger. Production defaults to JSON with sampling;
// LOG_FORMAT=console switches to the human encoder. Unknown levels fall back
// to info.
func New(cfg *config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewDevelopmentConfig()
	if cfg.Env == config.EnvProduction {
		zapCfg = zap.NewProductionConfig()
	}

	zapCfg.Encoding = "json"
	if cfg.Log.Format == "console" {
		zapCfg.Encoding = "console"
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level := zapcore.InfoLevel
	if cfg.Log.Level != "" {
		if parsed, err := zapcore.ParseLevel(cfg.Log.Level); err == nil {
			level = parsed
		}
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.TimeKey = "timestamp"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := zapCfg.Build(zap.Fields(
		zap.String("service", serviceName),
		zap.String("env", cfg.Env),
	))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l, nil
}

// Option tunes GinMiddleware.
type Option func(*options)

type options struct {
	quiet map[string]struct{}
	slow  time.Duration
}

// Quiet demotes successful requests on the given routes to debug. Meant for
// probes and scrapes.
func Quiet(routes ...string) Option {
	return func(o *options) {
		for _, r := range routes {
			o.quiet[r] = struct{}{}
		}
	}
}

// SlowThreshold promotes successful requests slower than d to warn.
func SlowThreshold(d time.Duration) Option {
	return func(o *options) { o.slow = d }
}

// GinMiddleware logs one line per request, at error for 5xx and warn for 4xx.
func GinMiddleware(l *zap.Logger, opts ...Option) gin.HandlerFunc {
	o := options{quiet: map[string]struct{}{}}
	for _, opt := range opts {
		opt(&o)
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
			zap.Int("bytes", c.Writer.Size()),
		}
		if route != "" {
			fields = append(fields, zap.String("route", route))
		}
		if id := requestid.Value(c); id != "" {
			fields = append(fields, zap.String("request_id", id))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		_, quiet := o.quiet[route]
		switch {
		case status >= 500:
			l.Error("http_request", fields...)
		case status >= 400:
			l.Warn("http_request", fields...)
		case o.slow > 0 && latency > o.slow:
			l.Warn("http_request_slow", fields...)
		case quiet:
			l.Debug("http_request", fields...)
		default:
			l.Info("http_request", fields...)
		}
	}
}

// Recovery turns a handler panic into a logged stack trace and a 500
// envelope.
func Recovery(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				l.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("path", c.Request.URL.Path),
					zap.String("request_id", requestid.Value(c)),
					zap.Stack("stack"),
				)
				response.Error(c, appErrors.ErrInternal)
				c.Abort()
			}
		}()
		c.Next()
	}
}
