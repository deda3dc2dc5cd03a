package server

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimitMiddleware throttles per client IP. The chat endpoint is
// public and unauthenticated, so the IP is the only identity available;
// a shared NAT will share a bucket, which is acceptable for a widget.
// Refill is continuous at limit/window.
func RateLimitMiddleware(limit int, window time.Duration) func(http.Handler) http.Handler {
	rl := &ipRateLimiter{
		limit:   float64(limit),
		refill:  float64(limit) / window.Seconds(),
		buckets: make(map[string]*bucket),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !rl.allow(ip) {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

type ipRateLimiter struct {
	limit  float64
	refill float64 // tokens per second

	mu      sync.Mutex
	buckets map[string]*bucket
	sweeps  int
}

func (rl *ipRateLimiter) allow(ip string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{tokens: rl.limit}
		rl.buckets[ip] = b
	} else {
		b.tokens += now.Sub(b.lastSeen).Seconds() * rl.refill
		if b.tokens > rl.limit {
			b.tokens = rl.limit
		}
	}
	b.lastSeen = now

	// Periodically drop buckets idle long enough to be full again.
	rl.sweeps++
	if rl.sweeps%1024 == 0 {
		for k, v := range rl.buckets {
			if now.Sub(v.lastSeen).Seconds()*rl.refill >= rl.limit {
				delete(rl.buckets, k)
			}
		}
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
