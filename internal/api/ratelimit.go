package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures a per-IP token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	CleanupInterval   time.Duration // idle buckets are dropped after twice this
	// Reason labels rejections in the connection_rejected metric.
	Reason string
}

// DefaultRateLimitConfig allows a trigger-happy local client.
var DefaultRateLimitConfig = RateLimitConfig{
	RequestsPerSecond: 20,
	Burst:             40,
	CleanupInterval:   5 * time.Minute,
	Reason:            "rate_limit",
}

// DefaultSpawnRateLimitConfig throttles manual target spawns, which take
// slots from the target pool, harder than trigger and view requests.
var DefaultSpawnRateLimitConfig = RateLimitConfig{
	RequestsPerSecond: 2,
	Burst:             5,
	CleanupInterval:   5 * time.Minute,
	Reason:            "spawn_rate",
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nano
}

// IPRateLimiter keeps one token bucket per client IP.
type IPRateLimiter struct {
	buckets sync.Map // map[string]*bucket
	config  RateLimitConfig
	done    chan struct{}
	once    sync.Once

	allowed  atomic.Uint64
	rejected atomic.Uint64
}

// NewIPRateLimiter creates a limiter and starts its cleanup goroutine.
// Call Stop to end it.
func NewIPRateLimiter(cfg RateLimitConfig) *IPRateLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultRateLimitConfig.CleanupInterval
	}
	if cfg.Reason == "" {
		cfg.Reason = DefaultRateLimitConfig.Reason
	}
	rl := &IPRateLimiter{
		config: cfg,
		done:   make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (rl *IPRateLimiter) Stop() {
	rl.once.Do(func() { close(rl.done) })
}

func (rl *IPRateLimiter) bucketFor(ip string) *rate.Limiter {
	now := time.Now().UnixNano()
	if v, ok := rl.buckets.Load(ip); ok {
		b := v.(*bucket)
		b.lastSeen.Store(now)
		return b.limiter
	}

	b := &bucket{limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.Burst)}
	b.lastSeen.Store(now)
	actual, _ := rl.buckets.LoadOrStore(ip, b)
	return actual.(*bucket).limiter
}

func (rl *IPRateLimiter) sweepLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.sweep(time.Now())
		}
	}
}

func (rl *IPRateLimiter) sweep(now time.Time) {
	cutoff := now.Add(-2 * rl.config.CleanupInterval).UnixNano()
	rl.buckets.Range(func(key, value interface{}) bool {
		if value.(*bucket).lastSeen.Load() < cutoff {
			rl.buckets.Delete(key)
		}
		return true
	})
}

// Allow takes a token from ip's bucket.
func (rl *IPRateLimiter) Allow(ip string) bool {
	if rl.bucketFor(ip).Allow() {
		rl.allowed.Add(1)
		return true
	}
	rl.rejected.Add(1)
	RecordConnectionRejected(rl.config.Reason)
	return false
}

// Middleware answers 429 once the client's bucket is empty.
func (rl *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(GetClientIP(r)) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimitStats is a monitoring view of the limiter.
type RateLimitStats struct {
	Allowed  uint64 `json:"allowed"`
	Rejected uint64 `json:"rejected"`
	Clients  int    `json:"clients"`
}

// GetStats returns rate limiter statistics
func (rl *IPRateLimiter) GetStats() RateLimitStats {
	clients := 0
	rl.buckets.Range(func(_, _ interface{}) bool {
		clients++
		return true
	})
	return RateLimitStats{
		Allowed:  rl.allowed.Load(),
		Rejected: rl.rejected.Load(),
		Clients:  clients,
	}
}

// GetClientIP extracts the client IP from an HTTP request.
// X-Forwarded-For can be spoofed when not behind a trusted proxy.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// ConnLimiter caps concurrent connections per IP.
type ConnLimiter struct {
	conns    sync.Map // map[string]*atomic.Int32
	maxPerIP int32
	rejected atomic.Uint64
}

// NewConnLimiter creates a limiter allowing maxPerIP open connections.
func NewConnLimiter(maxPerIP int) *ConnLimiter {
	return &ConnLimiter{maxPerIP: int32(maxPerIP)}
}

// Acquire reserves a connection slot for ip. Pair with Release.
func (cl *ConnLimiter) Acquire(ip string) bool {
	v, _ := cl.conns.LoadOrStore(ip, new(atomic.Int32))
	n := v.(*atomic.Int32)
	for {
		cur := n.Load()
		if cur >= cl.maxPerIP {
			cl.rejected.Add(1)
			return false
		}
		if n.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// Release frees a slot taken by Acquire.
func (cl *ConnLimiter) Release(ip string) {
	if v, ok := cl.conns.Load(ip); ok {
		v.(*atomic.Int32).Add(-1)
	}
}

// Count returns ip's open connections.
func (cl *ConnLimiter) Count(ip string) int {
	if v, ok := cl.conns.Load(ip); ok {
		return int(v.(*atomic.Int32).Load())
	}
	return 0
}

// Rejected returns how many Acquire calls were refused.
func (cl *ConnLimiter) Rejected() uint64 { return cl.rejected.Load() }

// DefaultOrigins are the CORS and WebSocket origins allowed when none are
// configured: any local port.
var DefaultOrigins = []string{
	"http://localhost:*",
	"http://127.0.0.1:*",
}

// IsAllowedOrigin reports whether origin matches one of allowed. "*"
// matches anything non-empty; a trailing ":*" matches any port.
func IsAllowedOrigin(origin string, allowed []string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		switch {
		case a == "*" || a == origin:
			return true
		case strings.HasSuffix(a, ":*"):
			prefix := strings.TrimSuffix(a, "*")
			if origin == strings.TrimSuffix(prefix, ":") || strings.HasPrefix(origin, prefix) {
				return true
			}
		}
	}
	return false
}
