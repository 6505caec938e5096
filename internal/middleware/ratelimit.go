package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xxxsen/chewie/internal/pkg/errcode"
	"github.com/xxxsen/chewie/internal/pkg/response"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type rateLimiter struct {
	mu            sync.Mutex
	limit         rate.Limit
	burst         int
	idle          time.Duration
	visitors      map[string]*visitor
	sweepInterval time.Duration
	lastSweep     time.Time
	now           func() time.Time
}

// RateLimit applies a token bucket per client and route. perMinute <= 0
// disables limiting.
func RateLimit(perMinute int, burst int) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = perMinute
	}
	limiter := &rateLimiter{
		limit:         rate.Limit(float64(perMinute) / 60),
		burst:         burst,
		idle:          10 * time.Minute,
		visitors:      make(map[string]*visitor),
		sweepInterval: time.Minute,
		now:           time.Now,
	}
	return limiter.handle
}

func (l *rateLimiter) key(c *gin.Context) string {
	client := c.ClientIP()
	if v, ok := c.Get(ContextClientKeyKey); ok {
		if k, ok := v.(string); ok && k != "" {
			client = k
		}
	}
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	return strings.Join([]string{client, path}, "|")
}

func (l *rateLimiter) allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) >= l.sweepInterval {
		l.cleanupExpiredLocked(now)
	}
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (l *rateLimiter) cleanupExpiredLocked(now time.Time) {
	for k, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.idle {
			delete(l.visitors, k)
		}
	}
	l.lastSweep = now
}

func (l *rateLimiter) handle(c *gin.Context) {
	key := l.key(c)
	if l.allow(key) {
		c.Next()
		return
	}
	logutil.GetLogger(c.Request.Context()).Warn("rate limit hit",
		zap.String("ip", c.ClientIP()),
		zap.String("path", c.Request.URL.Path),
	)
	response.Error(c, errcode.ErrTooMany, http.StatusText(http.StatusTooManyRequests))
	c.Abort()
}
