package routes

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig bounds how often one client address may submit forms.
type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

const limiterIdleTTL = 10 * time.Minute

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimit is a per-IP limiter for the intake API. A zero PerMinute disables
// it.
func rateLimit(cfg RateLimitConfig, now func() time.Time) func(http.Handler) http.Handler {
	if cfg.PerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	every := rate.Every(time.Minute / time.Duration(cfg.PerMinute))

	var (
		mu        sync.Mutex
		clients   = make(map[string]*ipLimiter)
		lastSweep time.Time
	)

	allow := func(ip string) bool {
		mu.Lock()
		defer mu.Unlock()
		t := now()
		if t.Sub(lastSweep) > limiterIdleTTL {
			for k, c := range clients {
				if t.Sub(c.lastSeen) > limiterIdleTTL {
					delete(clients, k)
				}
			}
			lastSweep = t
		}
		c, ok := clients[ip]
		if !ok {
			c = &ipLimiter{limiter: rate.NewLimiter(every, cfg.Burst)}
			clients[ip] = c
		}
		c.lastSeen = t
		return c.limiter.AllowN(t, 1)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allow(clientIP(r)) {
				w.Header().Set("Retry-After", "60")
				writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
					"success": false,
					"message": "too many submissions, please try again later",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP relies on middleware.RealIP having rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
