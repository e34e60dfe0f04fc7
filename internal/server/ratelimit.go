package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter throttles callers by client IP. It fronts the public webhook
// endpoint, where the legitimate traffic is a handful of gateway delivery
// hosts and anything beyond that is a spray of forged deliveries; the HMAC
// check behind it is cheap but the audit insert is not.
type RateLimiter struct {
	sources map[string]*source
	mu      sync.Mutex
	rate    rate.Limit
	burst   int
	ttl     time.Duration
}

type source struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows rps sustained requests per source with the given
// burst. Sources idle longer than ttl are forgotten.
func NewRateLimiter(rps float64, burst int, ttl time.Duration) *RateLimiter {
	rl := &RateLimiter{
		sources: make(map[string]*source),
		rate:    rate.Limit(rps),
		burst:   burst,
		ttl:     ttl,
	}

	go rl.evictIdle()

	return rl
}

func (rl *RateLimiter) evictIdle() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		for ip, s := range rl.sources {
			if time.Since(s.lastSeen) > rl.ttl {
				delete(rl.sources, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	s, ok := rl.sources[ip]
	if !ok {
		s = &source{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.sources[ip] = s
	}
	s.lastSeen = time.Now()
	rl.mu.Unlock()

	return s.limiter.Allow()
}

// RateLimitMiddleware rejects over-limit callers with 429. The body carries
// only a retry status, matching the webhook contract of never returning
// business detail to the provider.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	limiter := NewRateLimiter(rps, burst, 3*time.Minute)

	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.JSON(http.StatusTooManyRequests, gin.H{"status": "retry"})
			c.Abort()
			return
		}
		c.Next()
	}
}
