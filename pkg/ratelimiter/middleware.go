package ratelimiter

import (
	"net/http"
	"strconv"
	"time"
)

// KeyFunc picks the bucket for a request. An empty key bypasses the limiter.
type KeyFunc func(r *http.Request) string

// Middleware sets X-RateLimit-* headers and calls onLimited instead of next
// when the bucket is empty. A nil onLimited writes a plain 429.
func Middleware(l *Limiter, key KeyFunc, onLimited http.HandlerFunc) func(http.Handler) http.Handler {
	if onLimited == nil {
		onLimited = func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}
			res := l.Take(k)
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
			if !res.Allowed {
				secs := int(res.RetryAfter(l.now()).Round(time.Second) / time.Second)
				h.Set("Retry-After", strconv.Itoa(max(secs, 1)))
				onLimited(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
