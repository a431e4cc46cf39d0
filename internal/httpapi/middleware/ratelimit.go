package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	lim  *rate.Limiter
	seen time.Time
}

// limiter keeps one token bucket per client key; idle buckets are dropped
// after ttl.
type limiter struct {
	rate  rate.Limit
	burst int
	ttl   time.Duration

	mu        sync.Mutex
	m         map[string]*visitor
	lastSweep time.Time
}

func newLimiter(r rate.Limit, burst int, ttl time.Duration) *limiter {
	return &limiter{
		rate:  r,
		burst: burst,
		ttl:   ttl,
		m:     make(map[string]*visitor),
	}
}

func (l *limiter) allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.ttl {
		for k, v := range l.m {
			if now.Sub(v.seen) > l.ttl {
				delete(l.m, k)
			}
		}
		l.lastSweep = now
	}

	v := l.m[key]
	if v == nil {
		v = &visitor{lim: rate.NewLimiter(l.rate, l.burst)}
		l.m[key] = v
	}
	v.seen = now
	return v.lim.AllowN(now, 1)
}

// RateLimit limits each client IP to reqPerMin with the given burst.
// Example: RateLimit(120, 60) => 120 req/min with burst 60
func RateLimit(reqPerMin int, burst int) func(http.Handler) http.Handler {
	if reqPerMin <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst < 1 {
		burst = 1
	}
	l := newLimiter(rate.Limit(float64(reqPerMin)/60.0), burst, 10*time.Minute)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.allow(clientIP(r)) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	// honor X-Forwarded-For if behind a proxy
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
