package middlewares

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mbolis/lead-scorer/log"
)

type ipLimiter struct {
	limiter    *rate.Limiter
	lastActive time.Time
}

// RateLimiter throttles requests per client IP with a token bucket.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*ipLimiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
	}
}

// Allow reports whether ip may make one more request now.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	l, ok := rl.limiters[ip]
	if !ok {
		l = &ipLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[ip] = l
	}
	l.lastActive = rl.now()
	rl.mu.Unlock()

	return l.limiter.AllowN(rl.now(), 1)
}

// Cleanup forgets clients idle for longer than maxIdle.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	n := 0
	now := rl.now()
	for ip, l := range rl.limiters {
		if now.Sub(l.lastActive) > maxIdle {
			delete(rl.limiters, ip)
			n++
		}
	}
	return n
}

// Janitor runs Cleanup every interval until ctx is done.
func (rl *RateLimiter) Janitor(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Cleanup(maxIdle)
		}
	}
}

// Handler rejects requests over the limit with 429.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.Allow(ip) {
			w.Header().Set("retry-after", "1")
			log.Debugf("rate_limit: %s throttled on %s", ip, r.URL.Path)
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RemoteAddr has already been rewritten by middleware.RealIP when the
// router sits behind a proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
