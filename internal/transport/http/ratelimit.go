package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// maxTrackedClients bounds the limiter map; it is reset when exceeded.
const maxTrackedClients = 10_000

// rateLimiter keeps one token bucket per client IP.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// newRateLimiter allows perMinute requests per client with bursts up to
// perMinute. A non-positive perMinute disables limiting.
func newRateLimiter(perMinute int) *rateLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &rateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
	}
}

func (r *rateLimiter) allow(key string) bool {
	if r == nil {
		return true
	}

	r.mu.Lock()
	limiter, ok := r.limiters[key]
	if !ok {
		if len(r.limiters) >= maxTrackedClients {
			r.limiters = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(r.limit, r.burst)
		r.limiters[key] = limiter
	}
	r.mu.Unlock()

	return limiter.Allow()
}

// RateLimitMiddleware rejects clients that exceed their budget with 429.
func RateLimitMiddleware(perMinute int, logger *zerolog.Logger) gin.HandlerFunc {
	limiter := newRateLimiter(perMinute)
	return func(c *gin.Context) {
		if !limiter.allow(c.ClientIP()) {
			logger.Debug().Str("client_ip", c.ClientIP()).Str("path", c.FullPath()).Msg("rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded", Code: "rate_limited"})
			return
		}
		c.Next()
	}
}
