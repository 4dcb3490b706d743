package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// requestWindow tracks one client's requests inside the current window
type requestWindow struct {
	Count   int
	FirstAt time.Time
}

// RateLimiter caps requests per client IP over a sliding window. It
// fronts the trade endpoints so one client cannot hammer the exchange
// boundary through us.
type RateLimiter struct {
	mu          sync.Mutex
	windows     map[string]*requestWindow
	maxRequests int
	window      time.Duration
}

// NewRateLimiter creates a limiter allowing maxRequests per window per IP
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		windows:     make(map[string]*requestWindow),
		maxRequests: maxRequests,
		window:      window,
	}
	go rl.startCleanup()
	return rl
}

// startCleanup periodically drops expired windows
func (rl *RateLimiter) startCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	for range ticker.C {
		rl.cleanup()
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for ip, w := range rl.windows {
		if now.Sub(w.FirstAt) > rl.window {
			delete(rl.windows, ip)
		}
	}
}

// Allow records one request for ip and reports whether it is within the
// limit, with the remaining allowance and the time until the window resets.
func (rl *RateLimiter) Allow(ip string) (bool, int, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, exists := rl.windows[ip]
	if !exists || now.Sub(w.FirstAt) > rl.window {
		rl.windows[ip] = &requestWindow{Count: 1, FirstAt: now}
		return true, rl.maxRequests - 1, 0
	}

	w.Count++
	remaining := rl.maxRequests - w.Count
	if remaining < 0 {
		return false, 0, rl.window - now.Sub(w.FirstAt)
	}
	return true, remaining, 0
}

// Middleware enforces the limit, answering 429 with a retry hint
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, remaining, retryAfter := rl.Allow(c.ClientIP())
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if !allowed {
			c.Header("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())+1))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": "Too many requests. Slow down and retry.",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
