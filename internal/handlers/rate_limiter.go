package handlers

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/platform/httpx"
)

// rateLimiter admits or rejects a request for the given key.
type rateLimiter interface {
	Allow(key string) bool
}

// windowLimiter is a fixed-window counter per key. Counters reset when their
// window elapses and stale keys are pruned opportunistically on insert.
type windowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	windows map[string]limiterWindow
}

type limiterWindow struct {
	count   int
	resetAt time.Time
}

func newWindowLimiter(perMinute int, clock func() time.Time) rateLimiter {
	if perMinute <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &windowLimiter{
		limit:   perMinute,
		window:  time.Minute,
		clock:   clock,
		windows: make(map[string]limiterWindow),
	}
}

func (l *windowLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}

	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		for k, existing := range l.windows {
			if now.After(existing.resetAt) {
				delete(l.windows, k)
			}
		}
		l.windows[key] = limiterWindow{count: 1, resetAt: now.Add(l.window)}
		return true
	}
	if w.count >= l.limit {
		return false
	}
	w.count++
	l.windows[key] = w
	return true
}

// rateLimitMiddleware rejects over-limit callers with a 429. Callers are
// keyed by identity header when present, falling back to the peer address.
func rateLimitMiddleware(limiter rateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(limiterKey(r)) {
				w.Header().Set("Retry-After", "60")
				httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many requests", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func limiterKey(r *http.Request) string {
	if id := userIDFrom(r); id != "" {
		return "user:" + id
	}
	if id := adminIDFrom(r); id != "" {
		return "admin:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
