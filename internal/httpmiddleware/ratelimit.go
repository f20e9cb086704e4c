package httpmiddleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"classroll/internal/apperr"
	"classroll/internal/response"
)

// TokenBucket is an in-memory per-client rate limiter refilled at a fixed
// rate per minute. Buckets that have refilled completely are dropped on a
// periodic sweep, so the map only holds recently active clients.
type TokenBucket struct {
	capacity   float64
	perMin     float64
	sweepEvery time.Duration
	now        func() time.Time

	mu        sync.Mutex
	state     map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewTokenBucket creates a limiter holding up to capacity tokens and
// refilling perMinute tokens per minute.
func NewTokenBucket(capacity, perMinute int) *TokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	sweepEvery := time.Minute
	if perMinute > 0 {
		if refill := time.Duration(float64(capacity) / float64(perMinute) * float64(time.Minute)); refill > sweepEvery {
			sweepEvery = refill
		}
	}
	return &TokenBucket{
		capacity:   float64(capacity),
		perMin:     float64(perMinute),
		sweepEvery: sweepEvery,
		now:        time.Now,
		state:      make(map[string]*bucket),
	}
}

// Middleware enforces the limit per key. A nil key func keys by client IP.
func (l *TokenBucket) Middleware(key func(*gin.Context) string) gin.HandlerFunc {
	if key == nil {
		key = ClientIPKey
	}
	return func(c *gin.Context) {
		if !l.Allow(key(c)) {
			response.Fail(c, apperr.KindRateLimited, "rate limit exceeded")
			return
		}
		c.Next()
	}
}

// ClientIPKey keys requests by client IP.
func ClientIPKey(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "unknown"
}

// Allow consumes one token for key.
func (l *TokenBucket) Allow(key string) bool {
	if l.perMin <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.sweepEvery {
		l.sweep(now)
	}
	b, ok := l.state[key]
	if !ok {
		l.state[key] = &bucket{tokens: l.capacity - 1, last: now}
		return true
	}
	b.tokens += now.Sub(b.last).Minutes() * l.perMin
	if b.tokens > l.capacity {
		b.tokens = l.capacity
	}
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// sweep drops buckets that are full again; a missing bucket behaves the same.
// Callers hold l.mu.
func (l *TokenBucket) sweep(now time.Time) {
	for key, b := range l.state {
		if b.tokens+now.Sub(b.last).Minutes()*l.perMin >= l.capacity {
			delete(l.state, key)
		}
	}
	l.lastSweep = now
}

// Len reports how many clients are currently tracked.
func (l *TokenBucket) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.state)
}
