// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"golang.org/x/time/rate"

	"github.com/olegiv/textpress-go/internal/util"
)

// DefaultMaxLimiters bounds the number of clients a RateLimiter tracks.
const DefaultMaxLimiters = 10000

// limiterCache is a generic rate limiter cache with double-check locking.
type limiterCache[K comparable] struct {
	limiters map[K]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
}

// newLimiterCache creates a new limiter cache.
func newLimiterCache[K comparable](rps float64, burst int) *limiterCache[K] {
	return &limiterCache[K]{
		limiters: make(map[K]*rate.Limiter),
		rate:     rate.Limit(rps),
		burst:    burst,
	}
}

// get returns the rate limiter for a specific key, creating one if needed.
func (lc *limiterCache[K]) get(key K) *rate.Limiter {
	lc.mu.RLock()
	limiter, exists := lc.limiters[key]
	lc.mu.RUnlock()

	if exists {
		return limiter
	}

	lc.mu.Lock()
	defer lc.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists = lc.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(lc.rate, lc.burst)
	lc.limiters[key] = limiter
	return limiter
}

// clearIfExceeds clears all entries if the cache exceeds maxSize.
// Returns true if the cache was cleared.
func (lc *limiterCache[K]) clearIfExceeds(maxSize int) bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if len(lc.limiters) > maxSize {
		lc.limiters = make(map[K]*rate.Limiter)
		return true
	}
	return false
}

// RateLimiter limits requests per client IP.
type RateLimiter struct {
	cache      *limiterCache[string]
	trustProxy bool
	maxEntries int
}

// NewRateLimiter creates a limiter allowing rps requests per second per
// client with bursts of burst. With trustProxy the client address is taken
// from proxy headers.
func NewRateLimiter(rps float64, burst int, trustProxy bool) *RateLimiter {
	return &RateLimiter{
		cache:      newLimiterCache[string](rps, burst),
		trustProxy: trustProxy,
		maxEntries: DefaultMaxLimiters,
	}
}

// Middleware returns the rate limiting middleware. Rejected requests get a
// JSON 429 response with a Retry-After header.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.cache.clearIfExceeds(rl.maxEntries) {
				slog.Info("rate limiter cache cleared", "max_entries", rl.maxEntries)
			}

			ip := util.ClientIP(r, rl.trustProxy)
			limiter := rl.cache.get(ip)
			if !limiter.Allow() {
				slog.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
				retry := 1
				if lim := limiter.Limit(); lim > 0 {
					retry = max(1, int(1/float64(lim)))
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				WriteAPIError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Rate limit exceeded. Please slow down.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
