package handlers

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Hero-Alpha/KrishiSetu/internal/platform/auth"
	"github.com/Hero-Alpha/KrishiSetu/internal/platform/httpx"
)

// userRateLimiter allows limit writes per user in a fixed window.
type userRateLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	windows map[string]rateWindow
}

type rateWindow struct {
	count int
	reset time.Time
}

func newUserRateLimiter(limit int, window time.Duration, clock func() time.Time) *userRateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &userRateLimiter{
		limit:   limit,
		window:  window,
		clock:   clock,
		windows: make(map[string]rateWindow),
	}
}

// allow records one attempt for uid and reports whether it fits the window, plus the time the
// window resets.
func (l *userRateLimiter) allow(uid string) (bool, time.Time) {
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.windows[uid]
	if !ok || !now.Before(current.reset) {
		for key, w := range l.windows {
			if !now.Before(w.reset) {
				delete(l.windows, key)
			}
		}
		current = rateWindow{reset: now.Add(l.window)}
	}
	if current.count >= l.limit {
		return false, current.reset
	}
	current.count++
	l.windows[uid] = current
	return true, current.reset
}

// middleware rejects callers over their quota with 429. Anonymous requests are not limited; the
// auth middleware in front of it rejects them.
func (l *userRateLimiter) middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok || identity.UID == "" {
			next.ServeHTTP(w, r)
			return
		}
		allowed, reset := l.allow(identity.UID)
		if !allowed {
			retry := int(time.Until(reset).Seconds()) + 1
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many review submissions, try again later", http.StatusTooManyRequests))
			return
		}
		next.ServeHTTP(w, r)
	})
}
