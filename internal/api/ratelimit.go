package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter applies a token bucket per client IP address.
type RateLimiter struct {
	mu         sync.Mutex
	clients    map[string]*clientLimiter
	limit      rate.Limit
	burst      int
	retryAfter time.Duration
	done       chan struct{}
	closeOnce  sync.Once
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter allowing the specified number of
// requests per interval with the given burst size per client.
func NewRateLimiter(requests int, interval time.Duration, burst int) *RateLimiter {
	if requests <= 0 {
		requests = 1
	}
	rl := &RateLimiter{
		clients:    make(map[string]*clientLimiter),
		limit:      rate.Every(interval / time.Duration(requests)),
		burst:      burst,
		retryAfter: interval,
		done:       make(chan struct{}),
	}

	// Cleanup old entries periodically
	go rl.cleanup()

	return rl
}

// Allow checks if a request from the given IP should be allowed
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	client, exists := rl.clients[ip]
	if !exists {
		client = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = client
	}
	client.lastSeen = time.Now()

	return client.limiter.Allow()
}

// cleanup removes stale entries older than 10 minutes
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			threshold := time.Now().Add(-10 * time.Minute)
			for ip, client := range rl.clients {
				if client.lastSeen.Before(threshold) {
					delete(rl.clients, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Shutdown stops the background cleanup goroutine. Allow still works after.
func (rl *RateLimiter) Shutdown() {
	rl.closeOnce.Do(func() {
		close(rl.done)
	})
}

// Middleware returns a Gin middleware that rate limits requests
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		if !rl.Allow(ip) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests",
				"retry_after": rl.retryAfter.Seconds(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// Global rate limiters for different endpoints
var (
	// LoginLimiter: 5 attempts per minute, burst of 5
	// Protects against brute force login attempts
	LoginLimiter = NewRateLimiter(5, time.Minute, 5)

	// SetupLimiter: 3 attempts per minute, burst of 3
	// Setup should only happen once, strict limiting
	SetupLimiter = NewRateLimiter(3, time.Minute, 3)
)
