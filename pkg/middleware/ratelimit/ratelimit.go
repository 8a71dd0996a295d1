package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc derives the bucket key for a request.
type KeyFunc func(*gin.Context) string

// Limiter hands out one token bucket per key.
type Limiter struct {
	rps   rate.Limit
	burst int
	ttl   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New builds a limiter allowing rps requests per second with the given burst
// per key. Buckets idle for longer than ten minutes are dropped.
func New(rps float64, burst int) *Limiter {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		ttl:     10 * time.Minute,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow consumes a token for key.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (l *Limiter) sweep(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.ttl {
			delete(l.buckets, key)
		}
	}
}

// Middleware rejects requests over the limit with 429. The handler passed as
// onLimit writes the response; when nil a bare status is returned.
func Middleware(l *Limiter, key KeyFunc, onLimit gin.HandlerFunc) gin.HandlerFunc {
	if key == nil {
		key = ClientIP
	}
	return func(c *gin.Context) {
		if l.Allow(key(c)) {
			c.Next()
			return
		}
		c.Header("Retry-After", "1")
		if onLimit != nil {
			onLimit(c)
			c.Abort()
			return
		}
		c.AbortWithStatus(http.StatusTooManyRequests)
	}
}

// ClientIP keys buckets by the request's client address.
func ClientIP(c *gin.Context) string {
	return c.ClientIP()
}
