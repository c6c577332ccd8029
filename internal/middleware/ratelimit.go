package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	iredis "github.com/aichat-platform/aichat/internal/redis"
)

// RateLimiter caps requests per client IP within a scope ("auth", "admin", ...).
type RateLimiter struct {
	window  *iredis.SlidingWindow
	scope   string
	maxReqs int
	period  time.Duration
	now     func() time.Time
}

func NewRateLimiter(client redis.Scripter, scope string, maxReqs, windowSec int) *RateLimiter {
	return &RateLimiter{
		window:  iredis.NewSlidingWindow(client, "ratelimit:"+scope+":"),
		scope:   scope,
		maxReqs: maxReqs,
		period:  time.Duration(windowSec) * time.Second,
		now:     time.Now,
	}
}

// Middleware answers 429 with Retry-After once an IP exhausts its window.
// Redis failures let the request through.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		res, err := rl.window.Take(r.Context(), ip, rl.maxReqs, rl.period, rl.now())
		if err != nil {
			slog.Warn("rate limiter unavailable, failing open", "error", err, "ip", ip, "scope", rl.scope)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.maxReqs))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if !res.Allowed {
			retry := int(math.Ceil(res.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"too many requests","details":"retry after ` + strconv.Itoa(retry) + `s"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}
