package utils

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyedLimiter hands out one token bucket per key (typically an organization id).
type KeyedLimiter struct {
	mu       sync.Mutex
	visitors map[string]*rate.Limiter
	r        rate.Limit
	b        int
}

// NewKeyedLimiter converts a per-minute budget into a token bucket rate.
func NewKeyedLimiter(perMinute, burst int) *KeyedLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &KeyedLimiter{
		visitors: make(map[string]*rate.Limiter),
		r:        rate.Limit(float64(perMinute) / 60.0),
		b:        burst,
	}
}

func (l *KeyedLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.visitors[key]
	if !ok {
		lim = rate.NewLimiter(l.r, l.b)
		l.visitors[key] = lim
	}
	return lim
}

func (l *KeyedLimiter) Allow(key string) bool {
	return l.limiter(key).Allow()
}

// Sweep drops buckets that are full again, i.e. keys that went quiet.
func (l *KeyedLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for k, lim := range l.visitors {
		if lim.Tokens() >= float64(l.b) {
			delete(l.visitors, k)
			n++
		}
	}
	return n
}

// RateLimit rejects requests with 429 once the key's bucket is empty.
// Requests for which keyFn returns "" pass through.
func RateLimit(l *KeyedLimiter, keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)
		if key == "" || l == nil {
			c.Next()
			return
		}
		if !l.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
