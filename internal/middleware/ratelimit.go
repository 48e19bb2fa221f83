package middleware

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	svcerrors "github.com/patisserie-labs/storefront/internal/errors"
	"github.com/patisserie-labs/storefront/internal/httputil"
	"github.com/patisserie-labs/storefront/pkg/logger"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per key (user ID, client IP or e-mail).
type RateLimiter struct {
	name     string
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     rate.Limit
	burst    int
	window   string
	idle     time.Duration
	interval time.Duration
	logger   *logger.Logger
	now      func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRateLimiter allows events per window with the given burst for each key.
func NewRateLimiter(name string, events int, window time.Duration, burst int, log *logger.Logger) *RateLimiter {
	if log == nil {
		log = logger.NewDefault("ratelimit")
	}
	if events <= 0 {
		events = 1
	}
	if burst <= 0 {
		burst = events
	}
	return &RateLimiter{
		name:     name,
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Every(window / time.Duration(events)),
		burst:    burst,
		window:   window.String(),
		idle:     10 * window,
		interval: time.Minute,
		logger:   log,
		now:      time.Now,
	}
}

// Allow consumes one token for key.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	entry, ok := rl.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// Handler limits requests by authenticated user, falling back to client IP.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := GetUserID(r.Context())
		if key == "" {
			key = ClientIP(r)
		}

		if !rl.Allow(key) {
			rl.logger.LogSecurityEvent(r.Context(), "rate_limit_exceeded", map[string]interface{}{
				"limiter": rl.name,
				"key":     key,
				"path":    r.URL.Path,
				"method":  r.Method,
			})
			httputil.WriteError(w, r, svcerrors.RateLimitExceeded(rl.burst, rl.window))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Cleanup removes limiters idle for longer than ten windows.
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.idle)
	removed := 0
	for key, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

// Size returns the number of tracked keys.
func (rl *RateLimiter) Size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) Name() string { return "ratelimit-" + rl.name }

// Start runs periodic cleanup until Stop.
func (rl *RateLimiter) Start(ctx context.Context) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	rl.cancel = cancel
	rl.done = make(chan struct{})
	go rl.loop(runCtx, rl.done)
	return nil
}

// Stop halts the cleanup loop.
func (rl *RateLimiter) Stop(ctx context.Context) error {
	rl.mu.Lock()
	cancel, done := rl.cancel, rl.done
	rl.cancel, rl.done = nil, nil
	rl.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (rl *RateLimiter) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(rl.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rl.Cleanup(); n > 0 {
				rl.logger.WithField("removed", n).Debug("rate limiter cleanup")
			}
		}
	}
}

// ClientIP returns the remote host without its port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
