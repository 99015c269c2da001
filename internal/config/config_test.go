package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SUPABASE_URL", "SUPABASE_ANON_KEY", "VITE_SUPABASE_URL", "VITE_SUPABASE_ANON_KEY",
		"PORTAL_ADDR", "PORTAL_PUBLIC_URL", "PORTAL_RESET_REDIRECT_URL", "PORTAL_CORS_ORIGINS",
		"SUPABASE_RESILIENCE", "PORTAL_SESSION_TTL", "REDIS_ADDR",
		"SUPABASE_SERVICE_ROLE_KEY", "SERVICE_ROLE_KEY", "PORTAL_TRUSTED_PROXIES",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_MissingSupabaseIsFatal(t *testing.T) {
	clearEnv(t)

	_, err := Load(Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUPABASE_URL")
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("SUPABASE_URL", "https://abc.supabase.co")
	t.Setenv("SUPABASE_ANON_KEY", "anon")
	t.Setenv("SUPABASE_RESILIENCE", "true")
	t.Setenv("PORTAL_SESSION_TTL", "2h")
	t.Setenv("PORTAL_CORS_ORIGINS", "https://a.example.com;https://b.example.com")
	t.Setenv("PORTAL_TRUSTED_PROXIES", "10.0.0.0/8; 192.168.1.1")

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "https://abc.supabase.co", cfg.Supabase.URL)
	assert.True(t, cfg.Supabase.Resilience)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.1"}, cfg.Server.TrustedProxies)
	assert.Equal(t, "http://localhost:8080/reset-password", cfg.Auth.ResetRedirectURL)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_ViteAliases(t *testing.T) {
	clearEnv(t)
	t.Setenv("VITE_SUPABASE_URL", "https://vite.supabase.co")
	t.Setenv("VITE_SUPABASE_ANON_KEY", "vite-anon")

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "https://vite.supabase.co", cfg.Supabase.URL)
	assert.Equal(t, "vite-anon", cfg.Supabase.AnonKey)
}

func TestLoad_ServiceRoleAlias(t *testing.T) {
	clearEnv(t)
	t.Setenv("SUPABASE_URL", "https://abc.supabase.co")
	t.Setenv("SUPABASE_ANON_KEY", "anon")
	t.Setenv("SERVICE_ROLE_KEY", "service")

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "service", cfg.Supabase.ServiceRoleKey)
}

func TestLoad_FilesThenEnvPrecedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "portal.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
server:
  addr: ":9090"
  public_url: "https://portal.example.com/"
supabase:
  url: "https://file.supabase.co"
  anon_key: "file-anon"
  timeout: 5s
`), 0o600))

	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("SUPABASE_ANON_KEY=dotenv-anon\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("SUPABASE_ANON_KEY") })

	cfg, err := Load(Options{File: yamlPath, EnvFiles: []string{envPath, filepath.Join(dir, "missing.env")}})
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "https://file.supabase.co", cfg.Supabase.URL)
	assert.Equal(t, "dotenv-anon", cfg.Supabase.AnonKey)
	assert.Equal(t, 5*time.Second, cfg.Supabase.Timeout)
	assert.Equal(t, "https://portal.example.com/reset-password", cfg.Auth.ResetRedirectURL)
}

func TestValidate_RejectsBadURL(t *testing.T) {
	cfg := Default()
	cfg.Supabase.URL = "not a url"
	cfg.Supabase.AnonKey = "anon"
	assert.Error(t, cfg.Validate())
}
