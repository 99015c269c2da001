// Package config loads portal configuration from defaults, an optional YAML
// file, a .env file and the process environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full portal configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Supabase SupabaseConfig `yaml:"supabase"`
	Session  SessionConfig  `yaml:"session"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig configures the HTTP listener and the static app.
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"PORTAL_ADDR"`
	PublicURL       string        `yaml:"public_url" env:"PORTAL_PUBLIC_URL"`
	StaticDir       string        `yaml:"static_dir" env:"PORTAL_STATIC_DIR"`
	CORSOrigins     []string      `yaml:"cors_origins" env:"PORTAL_CORS_ORIGINS"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"PORTAL_SHUTDOWN_TIMEOUT"`
	// TrustedProxies lists the addresses or CIDRs allowed to report the
	// client address in X-Forwarded-For.
	TrustedProxies []string `yaml:"trusted_proxies" env:"PORTAL_TRUSTED_PROXIES"`
}

// SupabaseConfig locates the hosted backend.
type SupabaseConfig struct {
	URL       string `yaml:"url" env:"SUPABASE_URL"`
	AnonKey   string `yaml:"anon_key" env:"SUPABASE_ANON_KEY"`
	JWTSecret string `yaml:"jwt_secret" env:"SUPABASE_JWT_SECRET"`
	// ServiceRoleKey bypasses row-level security. Only the seed command
	// uses it; the server never does.
	ServiceRoleKey string        `yaml:"service_role_key" env:"SUPABASE_SERVICE_ROLE_KEY"`
	Resilience     bool          `yaml:"resilience" env:"SUPABASE_RESILIENCE"`
	Timeout        time.Duration `yaml:"timeout" env:"SUPABASE_TIMEOUT"`
}

// SessionConfig configures browser sessions.
type SessionConfig struct {
	CookieName    string        `yaml:"cookie_name" env:"PORTAL_SESSION_COOKIE"`
	CookieSecure  bool          `yaml:"cookie_secure" env:"PORTAL_COOKIE_SECURE"`
	TTL           time.Duration `yaml:"ttl" env:"PORTAL_SESSION_TTL"`
	IdleEviction  time.Duration `yaml:"idle_eviction" env:"PORTAL_SESSION_IDLE"`
	JanitorSpec   string        `yaml:"janitor_spec" env:"PORTAL_JANITOR_SPEC"`
	RedisAddr     string        `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" env:"REDIS_DB"`
}

// AuthConfig configures the auth endpoints.
type AuthConfig struct {
	ResetRedirectURL string        `yaml:"reset_redirect_url" env:"PORTAL_RESET_REDIRECT_URL"`
	RateLimit        float64       `yaml:"rate_limit" env:"PORTAL_AUTH_RATE"`
	RateBurst        int           `yaml:"rate_burst" env:"PORTAL_AUTH_BURST"`
	ResolveTimeout   time.Duration `yaml:"resolve_timeout" env:"PORTAL_RESOLVE_TIMEOUT"`
	RefreshSkew      time.Duration `yaml:"refresh_skew" env:"PORTAL_REFRESH_SKEW"`
}

// LogConfig configures logrus.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			PublicURL:       "http://localhost:8080",
			ShutdownTimeout: 15 * time.Second,
		},
		Supabase: SupabaseConfig{
			Timeout: 30 * time.Second,
		},
		Session: SessionConfig{
			CookieName:   "portal_session",
			TTL:          30 * 24 * time.Hour,
			IdleEviction: 30 * time.Minute,
			JanitorSpec:  "@every 5m",
		},
		Auth: AuthConfig{
			RateLimit:      5,
			RateBurst:      10,
			ResolveTimeout: 10 * time.Second,
			RefreshSkew:    time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Options controls where Load looks.
type Options struct {
	// File is a YAML config file; empty skips it.
	File string
	// EnvFiles are dotenv files loaded before reading the environment.
	// Missing files are ignored.
	EnvFiles []string
}

// Load builds the configuration and validates it.
func Load(opts Options) (*Config, error) {
	cfg := Default()

	if opts.File != "" {
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	for _, f := range opts.EnvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	cfg.applyAliases()
	cfg.applyDerived()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyAliases accepts the VITE_-prefixed names the browser build uses and
// the bare SERVICE_ROLE_KEY of a local Supabase .env.
func (c *Config) applyAliases() {
	if c.Supabase.URL == "" {
		c.Supabase.URL = os.Getenv("VITE_SUPABASE_URL")
	}
	if c.Supabase.AnonKey == "" {
		c.Supabase.AnonKey = os.Getenv("VITE_SUPABASE_ANON_KEY")
	}
	if c.Supabase.ServiceRoleKey == "" {
		c.Supabase.ServiceRoleKey = os.Getenv("SERVICE_ROLE_KEY")
	}
}

func (c *Config) applyDerived() {
	c.Server.PublicURL = strings.TrimSuffix(c.Server.PublicURL, "/")
	if c.Auth.ResetRedirectURL == "" {
		c.Auth.ResetRedirectURL = c.Server.PublicURL + "/reset-password"
	}
	c.Server.CORSOrigins = trimAll(c.Server.CORSOrigins)
	c.Server.TrustedProxies = trimAll(c.Server.TrustedProxies)
}

func trimAll(list []string) []string {
	out := list[:0]
	for _, v := range list {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Validate reports the first fatal configuration problem. A missing backend
// URL or key is fatal.
func (c *Config) Validate() error {
	if c.Supabase.URL == "" || c.Supabase.AnonKey == "" {
		return errors.New("missing Supabase configuration: SUPABASE_URL and SUPABASE_ANON_KEY are required")
	}
	u, err := url.Parse(c.Supabase.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid SUPABASE_URL %q", c.Supabase.URL)
	}
	if c.Server.Addr == "" {
		return errors.New("server address is required")
	}
	if c.Session.CookieName == "" {
		return errors.New("session cookie name is required")
	}
	if c.Session.TTL <= 0 {
		return errors.New("session TTL must be positive")
	}
	if c.Auth.RateLimit <= 0 || c.Auth.RateBurst <= 0 {
		return errors.New("auth rate limit and burst must be positive")
	}
	return nil
}
