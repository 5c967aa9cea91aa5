package api

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// rateLimiter is a per-client sliding window counter. A client's own entry
// is pruned on its next request; entries of idle clients are swept out at
// most once per window so one-shot callers do not accumulate.
type rateLimiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	clients   map[string][]time.Time
	lastSweep time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &rateLimiter{
		limit:   limit,
		window:  window,
		clients: make(map[string][]time.Time),
	}
}

func (rl *rateLimiter) allow(client string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-rl.window)
	if now.Sub(rl.lastSweep) >= rl.window {
		for key, stamps := range rl.clients {
			if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
				delete(rl.clients, key)
			}
		}
		rl.lastSweep = now
	}

	recent := rl.clients[client][:0]
	for _, ts := range rl.clients[client] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= rl.limit {
		rl.clients[client] = recent
		return false
	}

	rl.clients[client] = append(recent, now)
	return true
}

// RateLimit returns middleware rejecting clients exceeding limit requests
// per window with 429.
func RateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	rl := newRateLimiter(limit, window)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.allow(clientKey(r), time.Now()) {
				httpError(w, http.StatusTooManyRequests, "rate_limit_error", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
