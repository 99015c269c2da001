package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/printflow/portal/internal/config"
	"github.com/printflow/portal/internal/janitor"
	"github.com/printflow/portal/internal/logging"
	"github.com/printflow/portal/internal/metrics"
	"github.com/printflow/portal/internal/middleware"
	"github.com/printflow/portal/internal/portal/auth"
	"github.com/printflow/portal/internal/portal/httpapi"
	"github.com/printflow/portal/internal/portal/orders"
	"github.com/printflow/portal/internal/portal/payments"
	"github.com/printflow/portal/internal/portal/profile"
	"github.com/printflow/portal/internal/portal/session"
	"github.com/printflow/portal/internal/portal/support"
	"github.com/printflow/portal/supabase/client"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the portal HTTP server",
	Long: `Run the customer portal: the JSON API under /api, the auth event
stream, /health, /metrics and the single-page app from server.static_dir.

Stops gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.New("portal", cfg.Log.Level, cfg.Log.Format)
	if err := serve(cmd.Context(), cfg, logger); err != nil {
		logger.WithError(err).Error("Portal stopped")
		return err
	}
	return nil
}

func serve(parent context.Context, cfg *config.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New("portal")

	sb, health, err := newSupabase(cfg, m)
	if err != nil {
		return fmt.Errorf("supabase client: %w", err)
	}

	store, sweep, closeStore, err := newSessionStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	defer closeStore()

	profiles := profile.NewSupabaseRepository(sb)
	registry, err := auth.NewRegistry(auth.Options{
		Auth:             sb.Auth(),
		Bootstrapper:     auth.NewBootstrapper(profiles, logger, m),
		Profiles:         profiles,
		Store:            store,
		Logger:           logger,
		Recorder:         m,
		ResetRedirectURL: cfg.Auth.ResetRedirectURL,
		ResolveTimeout:   cfg.Auth.ResolveTimeout,
		RefreshSkew:      cfg.Auth.RefreshSkew,
	})
	if err != nil {
		return fmt.Errorf("auth registry: %w", err)
	}
	if err := m.GaugeFunc("sessions", "active", "Sessions held in memory.", func() float64 {
		return float64(registry.Len())
	}); err != nil {
		return err
	}

	limiter := middleware.NewRateLimiter(cfg.Auth.RateLimit, cfg.Auth.RateBurst, logger)
	if err := limiter.TrustProxies(cfg.Server.TrustedProxies); err != nil {
		return err
	}

	jobs := []janitor.Job{
		{Name: "sessions", Run: func() int { return registry.Evict(cfg.Session.IdleEviction) }},
		{Name: "rate_limiters", Run: func() int { return limiter.Cleanup(10 * time.Minute) }},
	}
	if sweep != nil {
		jobs = append(jobs, janitor.Job{Name: "session_store", Run: sweep})
	}
	jan, err := janitor.New(cfg.Session.JanitorSpec, logger, m, jobs...)
	if err != nil {
		return err
	}
	jan.Start()

	server := httpapi.NewServer(httpapi.Deps{
		Registry:    registry,
		Orders:      orders.NewSupabaseRepository(sb),
		Payments:    payments.NewSupabaseRepository(sb),
		Tickets:     support.NewSupabaseRepository(sb),
		Verifier:    middleware.NewTokenVerifier(cfg.Supabase.JWTSecret, sb.Auth(), logger),
		RateLimiter: limiter,
		Metrics:     m,
		Logger:      logger,
		Cookie: httpapi.CookieConfig{
			Name:   cfg.Session.CookieName,
			Secure: cfg.Session.CookieSecure,
			TTL:    cfg.Session.TTL,
		},
		CORSOrigins: cfg.Server.CORSOrigins,
		StaticDir:   cfg.Server.StaticDir,
		Health:      health,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.Server.Addr).Info("Portal listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := jan.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Janitor did not stop in time")
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newSupabase builds the backend client. With resilience enabled the
// transport counters and breaker state are exported as metrics and on
// /health.
func newSupabase(cfg *config.Config, m *metrics.Metrics) (*client.Client, func() map[string]interface{}, error) {
	base := client.Config{
		URL:        cfg.Supabase.URL,
		APIKey:     cfg.Supabase.AnonKey,
		HTTPClient: &http.Client{Timeout: cfg.Supabase.Timeout},
		RequestID:  logging.GetTraceID,
	}
	if !cfg.Supabase.Resilience {
		c, err := client.New(base)
		return c, nil, err
	}

	c, transport, err := client.NewResilient(client.ResilienceConfig{
		Config:               base,
		Timeout:              cfg.Supabase.Timeout,
		RetryConfig:          client.DefaultRetryConfig(),
		CircuitBreakerConfig: client.DefaultCircuitBreakerConfig(),
	})
	if err != nil {
		return nil, nil, err
	}

	counters := map[string]func(client.Stats) int64{
		"requests_total":         func(s client.Stats) int64 { return s.Total },
		"requests_success_total": func(s client.Stats) int64 { return s.Success },
		"requests_failed_total":  func(s client.Stats) int64 { return s.Failed },
		"requests_retried_total": func(s client.Stats) int64 { return s.Retried },
	}
	for name, pick := range counters {
		pick := pick
		if err := m.CounterFunc("supabase", name, "Supabase transport "+name+".", func() float64 {
			return float64(pick(transport.Stats()))
		}); err != nil {
			return nil, nil, err
		}
	}
	if err := m.GaugeFunc("supabase", "circuit_state", "Circuit breaker state: 0 closed, 1 open, 2 half-open.", func() float64 {
		return float64(transport.CircuitState())
	}); err != nil {
		return nil, nil, err
	}

	health := func() map[string]interface{} {
		return map[string]interface{}{"supabase_circuit": transport.CircuitState().String()}
	}
	return c, health, nil
}

// newSessionStore picks Redis when an address is configured and the
// in-process store otherwise. sweep is nil for Redis, which expires keys
// itself.
func newSessionStore(ctx context.Context, cfg *config.Config) (session.Store, func() int, func(), error) {
	if cfg.Session.RedisAddr != "" {
		rs, err := session.NewRedisStore(ctx, session.RedisConfig{
			Addr:     cfg.Session.RedisAddr,
			Password: cfg.Session.RedisPassword,
			DB:       cfg.Session.RedisDB,
			Prefix:   "portal:session:",
			TTL:      cfg.Session.TTL,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return rs, nil, func() { _ = rs.Close() }, nil
	}
	ms := session.NewMemoryStore(cfg.Session.TTL)
	return ms, ms.Sweep, func() {}, nil
}
