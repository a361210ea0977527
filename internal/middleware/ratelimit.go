package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// sweepAt is the number of tracked clients above which expired windows are
// dropped on the next new window.
const sweepAt = 4096

type window struct {
	count int
	until time.Time
}

// limiter is a fixed-window request counter keyed by client IP.
type limiter struct {
	mu      sync.Mutex
	limit   int
	per     time.Duration
	clients map[string]*window
	now     func() time.Time
}

func newLimiter(limit int, per time.Duration) *limiter {
	return &limiter{limit: limit, per: per, clients: make(map[string]*window), now: time.Now}
}

// take counts one request for key and reports the requests left in the
// window, or how long to wait when none are.
func (l *limiter) take(key string) (remaining int, retry time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, found := l.clients[key]
	if !found || !now.Before(w.until) {
		if len(l.clients) >= sweepAt {
			for k, old := range l.clients {
				if !now.Before(old.until) {
					delete(l.clients, k)
				}
			}
		}
		w = &window{until: now.Add(l.per)}
		l.clients[key] = w
	}
	if w.count >= l.limit {
		return 0, w.until.Sub(now), false
	}
	w.count++
	return l.limit - w.count, 0, true
}

// RateLimit allows limit requests per client IP in each window of length per.
// A non-positive limit disables it.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	l := newLimiter(limit, per)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, retry, ok := l.take(ClientIP(r))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
				http.Error(w, `{"error":{"code":"rate_limited","message":"too many requests"}}`, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
