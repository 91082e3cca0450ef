package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/erp/fundflow/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// RateLimiter is a fixed-window request limiter keyed by caller
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*window
	limit   int
	window  time.Duration
}

type window struct {
	remaining int
	start     time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per window per key
func NewRateLimiter(limit int, per time.Duration) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*window),
		limit:   limit,
		window:  per,
	}
}

// RunCleanup drops idle keys every two windows until ctx is done
func (rl *RateLimiter) RunCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.window * 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for key, w := range rl.clients {
				if now.Sub(w.start) > rl.window*2 {
					delete(rl.clients, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Allow consumes one request for key and reports whether it is within the limit,
// along with the requests left in the current window.
func (rl *RateLimiter) Allow(key string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, ok := rl.clients[key]
	if !ok || now.Sub(w.start) >= rl.window {
		w = &window{remaining: rl.limit, start: now}
		rl.clients[key] = w
	}
	if w.remaining == 0 {
		return false, 0
	}
	w.remaining--
	return true, w.remaining
}

// RateLimit limits requests per tenant when authenticated and per client IP otherwise
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if tenantID := GetJWTTenantID(c); tenantID != "" {
			key = "tenant:" + tenantID
		}

		allowed, remaining := limiter.Allow(key)
		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeRateLimited,
				"Too many requests. Please try again later.",
				getRequestID(c),
			))
			return
		}
		c.Next()
	}
}
