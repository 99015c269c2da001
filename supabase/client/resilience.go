package client

// Retry and circuit-breaker transport used when SUPABASE_RESILIENCE is on.

import (
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

// =============================================================================
// Retry Configuration
// =============================================================================

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts
	MaxRetries int
	// InitialBackoff is the initial backoff duration
	InitialBackoff time.Duration
	// MaxBackoff is the maximum backoff duration
	MaxBackoff time.Duration
	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64
	// Jitter adds randomness to backoff (0.0 to 1.0)
	Jitter float64
	// RetryableStatusCodes are HTTP status codes that should be retried
	RetryableStatusCodes []int
}

// DefaultRetryConfig returns the retry policy used for Supabase calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryableStatusCodes: []int{
			http.StatusTooManyRequests,     // 429
			http.StatusInternalServerError, // 500
			http.StatusBadGateway,          // 502
			http.StatusServiceUnavailable,  // 503
			http.StatusGatewayTimeout,      // 504
		},
	}
}

// =============================================================================
// Circuit Breaker
// =============================================================================

// CircuitState represents the state of a circuit breaker.
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

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of failures before opening the circuit
	FailureThreshold int
	// SuccessThreshold is the number of successes in half-open state to close
	SuccessThreshold int
	// Timeout is how long the circuit stays open before probing again
	Timeout time.Duration
	// OnStateChange is called asynchronously when the circuit state changes
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns the breaker policy used for Supabase calls.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// CircuitBreaker stops calling an upstream that keeps failing.
type CircuitBreaker struct {
	mu sync.RWMutex

	config CircuitBreakerConfig
	state  CircuitState
	now    func() time.Time

	failures  int
	successes int
	lastError error
	openedAt  time.Time
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 1
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	return &CircuitBreaker{
		config: config,
		state:  CircuitClosed,
		now:    time.Now,
	}
}

// ErrCircuitOpen is returned when the circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Allow checks if a request should be allowed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen {
		if cb.now().Sub(cb.openedAt) <= cb.config.Timeout {
			return ErrCircuitOpen
		}
		cb.transitionTo(CircuitHalfOpen)
	}
	return nil
}

// RecordSuccess records a successful request.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transitionTo(CircuitClosed)
		}
	}
}

// RecordFailure records a failed request.
func (cb *CircuitBreaker) RecordFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastError = err

	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen)
	}
}

func (cb *CircuitBreaker) transitionTo(newState CircuitState) {
	oldState := cb.state
	cb.state = newState

	switch newState {
	case CircuitClosed:
		cb.failures = 0
		cb.successes = 0
	case CircuitOpen:
		cb.openedAt = cb.now()
		cb.successes = 0
	case CircuitHalfOpen:
		cb.successes = 0
	}

	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(oldState, newState)
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// LastError returns the last recorded error.
func (cb *CircuitBreaker) LastError() error {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.lastError
}

// =============================================================================
// Resilient Transport
// =============================================================================

// Stats are cumulative request counters of a ResilientTransport.
type Stats struct {
	Total   int64
	Success int64
	Failed  int64
	Retried int64
}

// ResilientTransport is an http.RoundTripper adding retries and a circuit
// breaker. Only idempotent requests are retried; a POST is attempted once.
type ResilientTransport struct {
	base           http.RoundTripper
	retryConfig    RetryConfig
	circuitBreaker *CircuitBreaker

	totalRequests   int64
	successRequests int64
	failedRequests  int64
	retriedRequests int64
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
	return &ResilientTransport{
		base:           base,
		retryConfig:    retry,
		circuitBreaker: NewCircuitBreaker(breaker),
	}
}

// RoundTrip executes an HTTP request with retry and circuit breaker.
func (rt *ResilientTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	atomic.AddInt64(&rt.totalRequests, 1)

	if err := rt.circuitBreaker.Allow(); err != nil {
		atomic.AddInt64(&rt.failedRequests, 1)
		return nil, err
	}

	maxRetries := rt.retryConfig.MaxRetries
	if !isIdempotent(req.Method) || (req.Body != nil && req.GetBody == nil) {
		maxRetries = 0
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			atomic.AddInt64(&rt.retriedRequests, 1)

			select {
			case <-req.Context().Done():
				atomic.AddInt64(&rt.failedRequests, 1)
				return nil, req.Context().Err()
			case <-time.After(rt.calculateBackoff(attempt)):
			}

			next := req.Clone(req.Context())
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				next.Body = body
			}
			req = next
		}

		resp, err := rt.base.RoundTrip(req)
		if err != nil {
			lastErr = err
			if attempt < maxRetries && rt.isRetryableError(err) {
				continue
			}
			break
		}

		if rt.isRetryableStatusCode(resp.StatusCode) {
			lastErr = &HTTPError{StatusCode: resp.StatusCode}
			if attempt < maxRetries {
				_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
				resp.Body.Close()
				continue
			}
			// Hand the final error response to the caller for decoding.
			rt.circuitBreaker.RecordFailure(lastErr)
			atomic.AddInt64(&rt.failedRequests, 1)
			return resp, nil
		}

		rt.circuitBreaker.RecordSuccess()
		atomic.AddInt64(&rt.successRequests, 1)
		return resp, nil
	}

	rt.circuitBreaker.RecordFailure(lastErr)
	atomic.AddInt64(&rt.failedRequests, 1)
	return nil, lastErr
}

func (rt *ResilientTransport) calculateBackoff(attempt int) time.Duration {
	backoff := float64(rt.retryConfig.InitialBackoff) * math.Pow(rt.retryConfig.BackoffMultiplier, float64(attempt-1))

	if backoff > float64(rt.retryConfig.MaxBackoff) {
		backoff = float64(rt.retryConfig.MaxBackoff)
	}

	if rt.retryConfig.Jitter > 0 {
		backoff += backoff * rt.retryConfig.Jitter * (rand.Float64()*2 - 1)
	}

	return time.Duration(backoff)
}

func (rt *ResilientTransport) isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func (rt *ResilientTransport) isRetryableStatusCode(code int) bool {
	for _, retryable := range rt.retryConfig.RetryableStatusCodes {
		if code == retryable {
			return true
		}
	}
	return false
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// HTTPError represents a retryable HTTP status.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return http.StatusText(e.StatusCode)
}

// Stats returns a snapshot of the transport counters.
func (rt *ResilientTransport) Stats() Stats {
	return Stats{
		Total:   atomic.LoadInt64(&rt.totalRequests),
		Success: atomic.LoadInt64(&rt.successRequests),
		Failed:  atomic.LoadInt64(&rt.failedRequests),
		Retried: atomic.LoadInt64(&rt.retriedRequests),
	}
}

// CircuitState returns the current circuit breaker state.
func (rt *ResilientTransport) CircuitState() CircuitState {
	return rt.circuitBreaker.State()
}

// =============================================================================
// Resilient Client Constructor
// =============================================================================

// ResilienceConfig extends Config with resilience options.
type ResilienceConfig struct {
	Config
	Timeout              time.Duration
	RetryConfig          RetryConfig
	CircuitBreakerConfig CircuitBreakerConfig
}

// NewResilient creates a Supabase client whose HTTP calls go through a
// ResilientTransport. The transport is returned for stats and state export.
func NewResilient(cfg ResilienceConfig) (*Client, *ResilientTransport, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var base http.RoundTripper
	if cfg.HTTPClient != nil {
		base = cfg.HTTPClient.Transport
	}
	transport := NewResilientTransport(base, cfg.RetryConfig, cfg.CircuitBreakerConfig)

	inner := cfg.Config
	inner.HTTPClient = &http.Client{Transport: transport, Timeout: timeout}
	c, err := New(inner)
	if err != nil {
		return nil, nil, err
	}
	return c, transport, nil
}
