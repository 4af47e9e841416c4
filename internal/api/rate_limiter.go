package api

import (
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/near-pulse/internal/errors"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const (
	defaultClientRPS   = 5
	defaultClientBurst = 10
	limiterIdleTTL     = 10 * time.Minute
)

// RateLimiter manages per-client rate limiting for API requests
type RateLimiter struct {
	// limiters expire after limiterIdleTTL without traffic
	limiters *gocache.Cache
	limit    rate.Limit
	burst    int
}

// NewRateLimiter creates a new rate limiter. Non-positive values fall back to defaults.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		rps = defaultClientRPS
	}
	if burst <= 0 {
		burst = defaultClientBurst
	}
	return &RateLimiter{
		limiters: gocache.New(limiterIdleTTL, limiterIdleTTL),
		limit:    rate.Limit(rps),
		burst:    burst,
	}
}

// getLimiter returns the limiter for a client, creating it on first use
func (rl *RateLimiter) getLimiter(client string) *rate.Limiter {
	if cached, ok := rl.limiters.Get(client); ok {
		limiter := cached.(*rate.Limiter)
		// refresh expiry
		rl.limiters.SetDefault(client, limiter)
		return limiter
	}

	limiter := rate.NewLimiter(rl.limit, rl.burst)
	if err := rl.limiters.Add(client, limiter, gocache.DefaultExpiration); err != nil {
		// Another request created it first
		if cached, ok := rl.limiters.Get(client); ok {
			return cached.(*rate.Limiter)
		}
	}
	return limiter
}

// Allow reports whether the client may make a request now
func (rl *RateLimiter) Allow(client string) bool {
	return rl.getLimiter(client).Allow()
}

// retryAfter is the whole number of seconds until one token is available
func (rl *RateLimiter) retryAfter() int {
	return int(math.Ceil(1 / float64(rl.limit)))
}

// clientKey identifies the caller by the first forwarded address, else the peer address
func clientKey(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware creates a middleware that enforces rate limiting
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(clientKey(r)) {
				respondError(w, r, errors.NewRateLimitError(rl.retryAfter()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
