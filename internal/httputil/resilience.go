package httputil

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// RetryConfig controls how failed upstream calls are retried.
type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	// Jitter is a fraction (0..1) of the backoff added or removed at random.
	Jitter               float64
	RetryableStatusCodes []int
}

// DefaultRetryConfig retries throttling and gateway errors three times.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryableStatusCodes: []int{
			http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

func (c RetryConfig) backoff(attempt int) time.Duration {
	d := float64(c.InitialBackoff) * math.Pow(c.BackoffMultiplier, float64(attempt-1))
	if max := float64(c.MaxBackoff); max > 0 && d > max {
		d = max
	}
	if c.Jitter > 0 {
		d += d * c.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(d)
}

func (c RetryConfig) retryableStatus(code int) bool {
	for _, s := range c.RetryableStatusCodes {
		if s == code {
			return true
		}
	}
	return false
}

// CircuitState is the state of a CircuitBreaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig controls when the breaker trips and recovers.
type CircuitBreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
	OnStateChange    func(from, to CircuitState)
}

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
	}
}

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker stops calling an upstream that keeps failing.
type CircuitBreaker struct {
	mu        sync.Mutex
	cfg       CircuitBreakerConfig
	state     CircuitState
	failures  int
	successes int
	openedAt  time.Time
	now       func() time.Time
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Allow returns ErrCircuitOpen while the breaker is open.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen {
		if cb.now().Sub(cb.openedAt) < cb.cfg.OpenTimeout {
			return ErrCircuitOpen
		}
		cb.setState(CircuitHalfOpen)
	}
	return nil
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.setState(CircuitClosed)
		}
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.setState(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.setState(CircuitOpen)
	}
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// caller holds cb.mu
func (cb *CircuitBreaker) setState(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.failures = 0
	cb.successes = 0
	if to == CircuitOpen {
		cb.openedAt = cb.now()
	}
	if cb.cfg.OnStateChange != nil && from != to {
		go cb.cfg.OnStateChange(from, to)
	}
}

// StatusError reports a retryable status that persisted after all retries.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return "upstream returned " + http.StatusText(e.StatusCode)
}

// ResilientTransport is an http.RoundTripper adding retries and a circuit
// breaker around a base transport.
type ResilientTransport struct {
	Base    http.RoundTripper
	Retry   RetryConfig
	Breaker *CircuitBreaker

	total   int64
	retried int64
	failed  int64
}

// NewResilientTransport wraps base (http.DefaultTransport when nil).
func NewResilientTransport(base http.RoundTripper, retry RetryConfig, breaker CircuitBreakerConfig) *ResilientTransport {
	if base == nil {
		base = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		}
	}
	return &ResilientTransport{Base: base, Retry: retry, Breaker: NewCircuitBreaker(breaker)}
}

// RoundTrip implements http.RoundTripper. Request bodies are replayed from
// GetBody, or buffered once when GetBody is not set. Only replayable
// requests are retried; see Replayable.
func (t *ResilientTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	atomic.AddInt64(&t.total, 1)
	if err := t.Breaker.Allow(); err != nil {
		atomic.AddInt64(&t.failed, 1)
		return nil, err
	}
	maxRetries := t.Retry.MaxRetries
	if !Replayable(req) {
		maxRetries = 0
	}

	getBody := req.GetBody
	if req.Body != nil && req.Body != http.NoBody && getBody == nil {
		buf, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		getBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(buf)), nil }
		req.Body, _ = getBody()
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			atomic.AddInt64(&t.retried, 1)
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(t.Retry.backoff(attempt)):
			}
			req = req.Clone(req.Context())
			if getBody != nil {
				body, err := getBody()
				if err != nil {
					return nil, err
				}
				req.Body = body
			}
		}

		resp, err := t.Base.RoundTrip(req)
		if err != nil {
			lastErr = err
			if retryableError(err) && attempt < maxRetries {
				continue
			}
			break
		}
		if t.Retry.retryableStatus(resp.StatusCode) && attempt < maxRetries {
			lastErr = &StatusError{StatusCode: resp.StatusCode}
			io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
			resp.Body.Close()
			continue
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			t.Breaker.RecordFailure()
		} else {
			t.Breaker.RecordSuccess()
		}
		return resp, nil
	}

	t.Breaker.RecordFailure()
	atomic.AddInt64(&t.failed, 1)
	return nil, lastErr
}

// Replayable reports whether req may be sent more than once. Methods that
// are idempotent by definition qualify, as does any request carrying an
// Idempotency-Key header.
func Replayable(req *http.Request) bool {
	switch req.Method {
	case "", http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace, http.MethodPut, http.MethodDelete:
		return true
	}
	return req.Header.Get("Idempotency-Key") != "" || req.Header.Get("X-Idempotency-Key") != ""
}

// Stats returns request counters.
func (t *ResilientTransport) Stats() map[string]int64 {
	return map[string]int64{
		"total_requests":   atomic.LoadInt64(&t.total),
		"retried_requests": atomic.LoadInt64(&t.retried),
		"failed_requests":  atomic.LoadInt64(&t.failed),
	}
}

func retryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
