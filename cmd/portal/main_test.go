package main

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printflow/portal/internal/portal/seed"
)

func TestCheckConfig(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://abc.supabase.co")
	t.Setenv("SUPABASE_ANON_KEY", "anon")
	t.Setenv("REDIS_ADDR", "")
	os.Unsetenv("REDIS_ADDR")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"check-config", "--env-file", "testdata/missing.env"})
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, out.String(), "supabase:    https://abc.supabase.co")
	assert.Contains(t, out.String(), "sessions:    memory")
	assert.Contains(t, out.String(), "http://localhost:8080/reset-password")
}

func TestExampleFixtureLoads(t *testing.T) {
	f, err := seed.LoadFixture("testdata/seed.example.yaml")
	require.NoError(t, err)
	assert.Len(t, f.Orders, 3)
	assert.Len(t, f.Payments, 2)
	assert.Len(t, f.Tickets, 1)
}
