package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IPRateLimiter keeps one token bucket per client IP.
//
// It keys buckets on r.RemoteAddr. Mount chi's RealIP in front of it only
// when a trusted proxy sets the forwarding headers; otherwise a client can
// forge X-Forwarded-For and get a fresh bucket on every request.
//
// EVICTION:
// A bucket left alone long enough refills to its burst, and a full bucket
// behaves exactly like a new one. Buckets idle for longer than that are
// dropped during a sweep that runs at most once per idle period, so the map
// only holds clients seen recently.
type IPRateLimiter struct {
	clients   map[string]*client
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const (
	minIdle = time.Minute
	maxIdle = 24 * time.Hour
)

// NewIPRateLimiter creates a limiter. limit is events per second; use
// PerHour for the usual configuration.
func NewIPRateLimiter(limit rate.Limit, burst int) *IPRateLimiter {
	return &IPRateLimiter{
		clients: make(map[string]*client),
		limit:   limit,
		burst:   burst,
		idle:    refillTime(limit, burst),
		now:     time.Now,
	}
}

// PerHour converts a requests-per-hour budget into a rate.Limit.
func PerHour(n int) rate.Limit {
	return rate.Limit(float64(n) / 3600.0)
}

// refillTime is how long an empty bucket takes to fill, clamped to
// [minIdle, maxIdle].
func refillTime(limit rate.Limit, burst int) time.Duration {
	if limit <= 0 || limit == rate.Inf {
		return minIdle
	}
	secs := float64(max(burst, 1)) / float64(limit)
	if secs >= maxIdle.Seconds() {
		return maxIdle
	}
	return max(time.Duration(secs*float64(time.Second)), minIdle)
}

// allow takes one token from ip's bucket.
func (l *IPRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.idle {
		l.sweep(now)
	}

	c, ok := l.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// sweep drops buckets idle for at least l.idle. Callers hold l.mu.
func (l *IPRateLimiter) sweep(now time.Time) {
	for ip, c := range l.clients {
		if now.Sub(c.lastSeen) >= l.idle {
			delete(l.clients, ip)
		}
	}
	l.lastSweep = now
}

// Len reports how many client buckets are held.
func (l *IPRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware answers 429 with a Retry-After header once the client's bucket
// is empty. The request never reaches the handler.
func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientIP(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(l.retryAfter()))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"too_many_requests","message":"Too many requests"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// retryAfter is the number of whole seconds until one token refills.
func (l *IPRateLimiter) retryAfter() int {
	if l.limit <= 0 || l.limit == rate.Inf {
		return 1
	}
	// Subtract a hair so 1/(1/3600) does not round up to 3601.
	secs := math.Ceil(1/float64(l.limit) - 1e-6)
	return max(int(secs), 1)
}
