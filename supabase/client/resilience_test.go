package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func fastRetry(max int) RetryConfig {
	return RetryConfig{
		MaxRetries:           max,
		InitialBackoff:       time.Millisecond,
		MaxBackoff:           5 * time.Millisecond,
		BackoffMultiplier:    2.0,
		RetryableStatusCodes: []int{http.StatusServiceUnavailable},
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.InitialBackoff != 100*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 100ms", cfg.InitialBackoff)
	}
	if cfg.MaxBackoff != 10*time.Second {
		t.Errorf("MaxBackoff = %v, want 10s", cfg.MaxBackoff)
	}
	if len(cfg.RetryableStatusCodes) != 5 {
		t.Errorf("RetryableStatusCodes = %v, want 5 codes", cfg.RetryableStatusCodes)
	}
}

// =============================================================================
// CircuitBreaker Tests
// =============================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(failures, successes int) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: failures,
		SuccessThreshold: successes,
		Timeout:          time.Second,
	})
	cb.now = clock.Now
	return cb, clock
}

func TestCircuitBreaker_OpenOnFailures(t *testing.T) {
	cb, _ := newTestBreaker(3, 2)

	cb.RecordFailure(errors.New("e1"))
	cb.RecordFailure(errors.New("e2"))
	cb.RecordSuccess()
	if cb.State() != CircuitClosed {
		t.Fatalf("State() = %v, want closed after success reset", cb.State())
	}

	for i := 0; i < 3; i++ {
		cb.RecordFailure(errors.New("boom"))
	}
	if cb.State() != CircuitOpen {
		t.Errorf("State() = %v, want %v", cb.State(), CircuitOpen)
	}
	if err := cb.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Allow() error = %v, want ErrCircuitOpen", err)
	}
	if cb.LastError() == nil || cb.LastError().Error() != "boom" {
		t.Errorf("LastError() = %v, want boom", cb.LastError())
	}
}

func TestCircuitBreaker_HalfOpenTransitions(t *testing.T) {
	cb, clock := newTestBreaker(1, 2)

	cb.RecordFailure(errors.New("down"))
	clock.Advance(2 * time.Second)

	if err := cb.Allow(); err != nil {
		t.Fatalf("Allow() after timeout: %v", err)
	}
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("State() = %v, want half-open", cb.State())
	}

	cb.RecordSuccess()
	cb.RecordSuccess()
	if cb.State() != CircuitClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}

	cb.RecordFailure(errors.New("down again"))
	clock.Advance(2 * time.Second)
	_ = cb.Allow()
	cb.RecordFailure(errors.New("probe failed"))
	if cb.State() != CircuitOpen {
		t.Errorf("State() = %v, want open after failed probe", cb.State())
	}
}

func TestCircuitState_String(t *testing.T) {
	testCases := []struct {
		state CircuitState
		want  string
	}{
		{CircuitClosed, "closed"},
		{CircuitOpen, "open"},
		{CircuitHalfOpen, "half-open"},
		{CircuitState(99), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.want, func(t *testing.T) {
			if got := tc.state.String(); got != tc.want {
				t.Errorf("String() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	changes := make(chan CircuitState, 4)
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
		OnStateChange: func(_, to CircuitState) {
			changes <- to
		},
	})

	cb.RecordFailure(errors.New("boom"))

	select {
	case to := <-changes:
		if to != CircuitOpen {
			t.Errorf("transition to %v, want open", to)
		}
	case <-time.After(time.Second):
		t.Fatal("OnStateChange was not called")
	}
}

// =============================================================================
// ResilientTransport Tests
// =============================================================================

func TestResilientTransport_RetriesIdempotentRequests(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	rt := NewResilientTransport(nil, fastRetry(3), DefaultCircuitBreakerConfig())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip() error: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	stats := rt.Stats()
	if stats.Total != 1 || stats.Success != 1 || stats.Retried != 2 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestResilientTransport_DoesNotRetryPost(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"message":"try later"}`))
	}))
	defer server.Close()

	rt := NewResilientTransport(nil, fastRetry(3), DefaultCircuitBreakerConfig())
	req, _ := http.NewRequest(http.MethodPost, server.URL, strings.NewReader(`{}`))
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip() error: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503 passed through", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestResilientTransport_CircuitOpen(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	rt := NewResilientTransport(nil, fastRetry(0), CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
	})

	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		if resp, err := rt.RoundTrip(req); err == nil {
			resp.Body.Close()
		}
	}

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	if _, err := rt.RoundTrip(req); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("RoundTrip() error = %v, want ErrCircuitOpen", err)
	}
	if rt.CircuitState() != CircuitOpen {
		t.Errorf("CircuitState() = %v, want open", rt.CircuitState())
	}
}

func TestResilientTransport_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	rt := NewResilientTransport(nil, DefaultRetryConfig(), DefaultCircuitBreakerConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	if _, err := rt.RoundTrip(req); err == nil {
		t.Error("RoundTrip() should error on context cancellation")
	}
}

func TestNewResilient_DecodesFinalErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"message":"upstream unavailable"}`))
	}))
	defer server.Close()

	c, transport, err := NewResilient(ResilienceConfig{
		Config:               Config{URL: server.URL, APIKey: "anon"},
		RetryConfig:          fastRetry(1),
		CircuitBreakerConfig: DefaultCircuitBreakerConfig(),
	})
	if err != nil {
		t.Fatalf("NewResilient() error: %v", err)
	}

	_, err = c.From("orders").Execute(context.Background())
	if Message(err) != "upstream unavailable" {
		t.Errorf("Message(err) = %q, want upstream unavailable (err=%v)", Message(err), err)
	}
	if transport.Stats().Retried != 1 {
		t.Errorf("Retried = %d, want 1", transport.Stats().Retried)
	}
}

func TestHTTPError_Error(t *testing.T) {
	err := &HTTPError{StatusCode: http.StatusNotFound}
	if err.Error() != "Not Found" {
		t.Errorf("Error() = %s, want Not Found", err.Error())
	}
}

func BenchmarkCircuitBreaker_Allow(b *testing.B) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cb.Allow()
	}
}
