package shield

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures a RateLimiter.
type RateLimitConfig struct {
	// Rate is the sustained number of requests per second per IP (default: 1).
	Rate float64 `json:"rate" yaml:"rate"`

	// Burst is the bucket capacity (default: 10).
	Burst int `json:"burst" yaml:"burst"`

	// IdleTTL drops buckets untouched for this long (default: 10m).
	IdleTTL time.Duration `json:"idle_ttl" yaml:"idle_ttl"`

	// TrustProxy makes ExtractIP honour X-Forwarded-For.
	TrustProxy bool `json:"trust_proxy" yaml:"trust_proxy"`

	Now    func() time.Time `json:"-" yaml:"-"`
	Logger *slog.Logger     `json:"-" yaml:"-"`
}

func (c *RateLimitConfig) defaults() {
	if c.Rate <= 0 {
		c.Rate = 1
	}
	if c.Burst <= 0 {
		c.Burst = 10
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 10 * time.Minute
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type bucket struct {
	tokens float64
	last   time.Time
}

// RateLimiter is an in-memory per-IP token bucket. It guards the expensive
// routes (tool runs and chat turns); buckets are shared across them.
type RateLimiter struct {
	cfg RateLimitConfig

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewRateLimiter creates a limiter.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	cfg.defaults()
	return &RateLimiter{cfg: cfg, buckets: make(map[string]*bucket)}
}

// Allow takes one token for key. When the bucket is empty it reports false
// and how long until the next token.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	now := rl.cfg.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(rl.cfg.Burst), last: now}
		rl.buckets[key] = b
	}
	b.tokens = math.Min(float64(rl.cfg.Burst), b.tokens+now.Sub(b.last).Seconds()*rl.cfg.Rate)
	b.last = now
	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	wait := time.Duration((1 - b.tokens) / rl.cfg.Rate * float64(time.Second))
	return false, wait
}

// GC drops idle buckets and returns how many were removed.
func (rl *RateLimiter) GC() int {
	cutoff := rl.cfg.Now().Add(-rl.cfg.IdleTTL)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	n := 0
	for k, b := range rl.buckets {
		if b.last.Before(cutoff) {
			delete(rl.buckets, k)
			n++
		}
	}
	return n
}

// StartGC runs GC every interval until done is closed.
func (rl *RateLimiter) StartGC(done <-chan struct{}, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				rl.GC()
			}
		}
	}()
}

// Middleware answers 429 with a JSON error body once the caller's bucket
// is empty.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := rl.clientIP(r)
		ok, wait := rl.Allow(ip)
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		GetLogger(r.Context()).Warn("ratelimit: request blocked", "ip", ip)
		secs := int(math.Ceil(wait.Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "Too many requests. Please wait a moment and try again.",
			"kind":  "rate_limited",
		})
	})
}

func (rl *RateLimiter) clientIP(r *http.Request) string {
	if rl.cfg.TrustProxy {
		return ExtractIP(r)
	}
	return remoteHost(r)
}

// ExtractIP returns the first X-Forwarded-For hop, or the RemoteAddr host.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	return remoteHost(r)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
