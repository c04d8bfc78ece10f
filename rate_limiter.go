package main

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"bitableTimesheet/internal/logger"
	"bitableTimesheet/internal/observability"
	"bitableTimesheet/internal/utils"
)

const idleBucketTTL = 10 * time.Minute

// bucket is the state of one client. tokens is fractional so slow rates
// refill smoothly between requests.
type bucket struct {
	tokens  float64
	updated time.Time
}

// RateLimiter keeps a token bucket per client key.
type RateLimiter struct {
	perMinute float64
	burst     float64
	now       func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewRateLimiter allows perMinute requests per client with bursts of up to burst.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		perMinute: float64(perMinute),
		burst:     float64(burst),
		now:       time.Now,
		buckets:   make(map[string]*bucket),
	}
}

// Reserve takes a token for key. When none is left it reports how long until
// the next one is available.
func (rl *RateLimiter) Reserve(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.burst, updated: now}
		rl.buckets[key] = b
	}

	if elapsed := now.Sub(b.updated).Minutes(); elapsed > 0 {
		b.tokens = math.Min(rl.burst, b.tokens+elapsed*rl.perMinute)
	}
	b.updated = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	missing := 1 - b.tokens
	return false, time.Duration(missing * float64(time.Minute) / rl.perMinute)
}

// Allow is Reserve without the wait.
func (rl *RateLimiter) Allow(key string) bool {
	ok, _ := rl.Reserve(key)
	return ok
}

// Sweep forgets clients idle for longer than idleBucketTTL and reports how
// many were dropped.
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for key, b := range rl.buckets {
		if now.Sub(b.updated) > idleBucketTTL {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Sweep()
			}
		}
	}()
}

// RateLimits holds one limiter per route category.
type RateLimits struct {
	byCategory map[string]*RateLimiter
}

func NewRateLimits(config *Config) *RateLimits {
	return &RateLimits{byCategory: map[string]*RateLimiter{
		"login": NewRateLimiter(config.LoginRatePerMinute, config.LoginBurst),
		"api":   NewRateLimiter(config.APIRatePerMinute, config.APIBurst),
	}}
}

func (rl *RateLimits) Start(ctx context.Context) {
	for _, limiter := range rl.byCategory {
		limiter.Run(ctx, 5*time.Minute)
	}
}

// RateLimitMiddleware applies the per-client limit of the route's category.
// Preflight requests and routes outside /api are not limited.
func (app *App) RateLimitMiddleware(limits *RateLimits) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			category := getLimiterCategory(r.URL.Path)
			limiter, ok := limits.byCategory[category]
			if !ok || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			ip := getRealIP(r)
			allowed, wait := limiter.Reserve(ip)
			if !allowed {
				retryAfter := int(math.Ceil(wait.Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}

				observability.RecordRateLimited(category)
				app.Logger.WithFields(logger.Fields{
					"ip":          ip,
					"method":      r.Method,
					"path":        r.URL.Path,
					"category":    category,
					"retry_after": retryAfter,
					"request_id":  utils.GetRequestID(r),
				}).Warn("Rate limit exceeded")

				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				utils.TooManyRequestsError(w, "Rate limit exceeded. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func getLimiterCategory(path string) string {
	switch {
	case path == "/api/request_code" || path == "/api/verify_code":
		return "login"
	case strings.HasPrefix(path, "/api/"):
		return "api"
	default:
		return "general"
	}
}

// getRealIP prefers proxy headers over the socket address.
func getRealIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
