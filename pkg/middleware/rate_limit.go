package middleware

import (
	"net/http"
	"sync"
	"time"

	"campusloans/pkg/auth"
	"campusloans/pkg/logger"
)

// UserRateLimiter is a sliding-window limiter keyed by the caller's user id.
// Anonymous requests are not limited here; they are rejected by auth.Require.
type UserRateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	log      *logger.Logger
	now      func() time.Time
	stopCh   chan struct{}
}

func NewUserRateLimiter(limit int, window time.Duration, log *logger.Logger) *UserRateLimiter {
	limiter := &UserRateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		log:      log,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}

	go limiter.cleanup()

	return limiter
}

func (rl *UserRateLimiter) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for user, timestamps := range rl.requests {
				if len(timestamps) == 0 || now.Sub(timestamps[len(timestamps)-1]) > rl.window {
					delete(rl.requests, user)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *UserRateLimiter) Stop() {
	close(rl.stopCh)
}

func (rl *UserRateLimiter) Allow(userID string) bool {
	if userID == "" {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	kept := rl.requests[userID][:0]
	for _, ts := range rl.requests[userID] {
		if now.Sub(ts) < rl.window {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= rl.limit {
		rl.requests[userID] = kept
		return false
	}

	rl.requests[userID] = append(kept, now)
	return true
}

func UserRateLimit(limiter *UserRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.Header.Get(auth.HeaderUserID)

			if !limiter.Allow(userID) {
				limiter.log.Warn("Rate limit exceeded",
					"request_id", RequestIDFrom(r),
					"user_id", userID,
					"path", r.URL.Path,
				)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", limiter.window.String())
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"Rate limit exceeded","code":"RATE_LIMITED","retryable":true}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
