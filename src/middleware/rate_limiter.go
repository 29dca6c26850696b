package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiterEntry holds a rate limiter with last used timestamp
type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// keyRateLimiter manages per-key rate limiters with automatic cleanup
type keyRateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newKeyRateLimiter(limit rate.Limit, burst int) *keyRateLimiter {
	k := &keyRateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    limit,
		burst:    burst,
		stopCh:   make(chan struct{}),
	}
	// Start cleanup goroutine
	go k.cleanupLoop()
	return k
}

func (k *keyRateLimiter) getLimiter(key string) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	if entry, ok := k.limiters[key]; ok {
		entry.lastUsed = time.Now()
		return entry.limiter
	}
	limiter := rate.NewLimiter(k.limit, k.burst)
	k.limiters[key] = &limiterEntry{
		limiter:  limiter,
		lastUsed: time.Now(),
	}
	return limiter
}

// cleanupLoop removes stale entries every 5 minutes
func (k *keyRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			k.cleanup(time.Now().Add(-10 * time.Minute))
		case <-k.stopCh:
			return
		}
	}
}

// cleanup removes entries not used since cutoff
func (k *keyRateLimiter) cleanup(cutoff time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for key, entry := range k.limiters {
		if entry.lastUsed.Before(cutoff) {
			delete(k.limiters, key)
		}
	}
}

// Stop terminates the cleanup goroutine
func (k *keyRateLimiter) Stop() {
	k.stopOnce.Do(func() { close(k.stopCh) })
}

// RateLimitConfig defines configuration for the rate limiting middleware
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// RateLimiter is a per-client gin middleware backed by token buckets
type RateLimiter struct {
	limiter    *keyRateLimiter
	retryAfter time.Duration
	keyFunc    func(c *gin.Context) string
}

// NewIPRateLimiter limits requests per client IP. c.ClientIP honours the
// engine's trusted proxies.
func NewIPRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}

	interval := time.Minute / time.Duration(cfg.RequestsPerMinute)
	return &RateLimiter{
		limiter:    newKeyRateLimiter(rate.Every(interval), cfg.Burst),
		retryAfter: interval,
		keyFunc:    func(c *gin.Context) string { return c.ClientIP() },
	}
}

// Middleware returns the gin handler
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		l := rl.limiter.getLimiter(rl.keyFunc(c))
		if !l.Allow() {
			seconds := int(math.Ceil(rl.retryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "Too many requests. Please try again later.",
				"retry_after": seconds,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// Stop releases the limiter's background cleanup
func (rl *RateLimiter) Stop() {
	rl.limiter.Stop()
}

// AuthRateLimiter is pre-configured for login endpoints
// Allows 5 requests per minute per IP address
func AuthRateLimiter() *RateLimiter {
	return NewIPRateLimiter(RateLimitConfig{
		RequestsPerMinute: 5,
		Burst:             3,
	})
}
