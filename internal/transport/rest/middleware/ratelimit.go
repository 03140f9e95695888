package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// bucket implements token bucket rate limiting for one caller.
type bucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func newBucket(maxTokens float64, refillRate float64) *bucket {
	return &bucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

func (b *bucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// RateLimiter caps request rate per caller. Callers are keyed by API key
// when present, otherwise by remote IP.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   int
	window  time.Duration
	maxKeys int
}

// NewRateLimiter allows limit requests per window per caller
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		limit:   limit,
		window:  window,
		maxKeys: 10000,
	}
}

// Middleware wraps a handler with rate limiting
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(callerKey(r)) {
			w.Header().Set("Retry-After", "60")
			http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	b, ok := rl.buckets[key]
	if !ok {
		if len(rl.buckets) >= rl.maxKeys {
			rl.prune()
		}
		b = newBucket(float64(rl.limit), float64(rl.limit)/rl.window.Seconds())
		rl.buckets[key] = b
	}
	rl.mu.Unlock()

	return b.allow()
}

// prune drops full buckets; a full bucket means the caller has been idle
// for at least a window. Must be called with the lock held.
func (rl *RateLimiter) prune() {
	for key, b := range rl.buckets {
		b.mu.Lock()
		idle := b.tokens >= b.maxTokens*0.9
		b.mu.Unlock()
		if idle {
			delete(rl.buckets, key)
		}
	}
}

func callerKey(r *http.Request) string {
	if apiKey := r.Header.Get("X-Api-Key"); apiKey != "" {
		return "key:" + apiKey
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
