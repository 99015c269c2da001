package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printflow/portal/pkg/testutil"
	"github.com/printflow/portal/supabase/client"
)

const fixtureYAML = `
customer:
  email: demo@printflow.test
  password: demo-pass
  name: Demo Customer
  company_name: Demo Prints
orders:
  - id: 101
    order_type: Flyers
    quantity: 500
    total_amount: 1200
    amount_received: 1200
    status: delivered
    created_at: "2024-02-10T10:00:00Z"
  - id: 102
    order_type: Banners
    quantity: 2
    total_amount: 3500
    status: printing
payments:
  - id: a1b2c3d4-0000-4000-8000-000000000001
    order_id: 102
    total_amount: 3500
    amount_paid: 1000
    status: Partial
    due_date: "2024-04-01"
tickets:
  - subject: Banner colours
    order_id: 102
    message: Please match the logo blue.
`

// fakeRest stores posted rows per table and honours ignore-duplicates on id.
type fakeRest struct {
	mu     sync.Mutex
	rows   map[string]map[string]map[string]any
	bearer []string
}

func newFakeRest() *fakeRest {
	return &fakeRest{rows: make(map[string]map[string]map[string]any)}
}

func (f *fakeRest) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bearer = append(f.bearer, r.Header.Get("Authorization"))

	table := strings.TrimPrefix(r.URL.Path, "/rest/v1/")
	if r.Method != http.MethodPost || r.URL.Query().Get("on_conflict") != "id" ||
		!strings.Contains(r.Header.Get("Prefer"), "resolution=ignore-duplicates") {
		http.Error(w, `{"message":"unexpected request"}`, http.StatusBadRequest)
		return
	}
	body, _ := io.ReadAll(r.Body)
	var posted []map[string]any
	if err := json.Unmarshal(body, &posted); err != nil {
		http.Error(w, `{"message":"bad body"}`, http.StatusBadRequest)
		return
	}
	if f.rows[table] == nil {
		f.rows[table] = make(map[string]map[string]any)
	}
	inserted := []map[string]any{}
	for _, row := range posted {
		key := fmt.Sprint(row["id"])
		if _, exists := f.rows[table][key]; exists {
			continue
		}
		f.rows[table][key] = row
		inserted = append(inserted, row)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(inserted)
}

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFixture(t *testing.T) {
	f, err := LoadFixture(writeFixture(t, fixtureYAML))
	require.NoError(t, err)
	assert.Equal(t, "demo@printflow.test", f.Customer.Email)
	require.Len(t, f.Orders, 2)
	assert.Equal(t, "Banners", f.Orders[1].OrderType)
	require.NotNil(t, f.Orders[0].AmountReceived)
	assert.Equal(t, 1200.0, *f.Orders[0].AmountReceived)
	require.Len(t, f.Payments, 1)
	assert.Equal(t, int64(102), *f.Payments[0].OrderID)

	_, err = LoadFixture(writeFixture(t, "customer:\n  email: x@example.com\n"))
	assert.Error(t, err)

	_, err = LoadFixture(writeFixture(t, "customer:\n  email: x@example.com\n  password: secret1\norders:\n  - order_type: Cards\n"))
	assert.Error(t, err)
}

func TestRun_Idempotent(t *testing.T) {
	rest := newFakeRest()
	srv := httptest.NewServer(rest)
	defer srv.Close()

	db, err := client.New(client.Config{URL: srv.URL, APIKey: "service-role"})
	require.NoError(t, err)

	f, err := LoadFixture(writeFixture(t, fixtureYAML))
	require.NoError(t, err)

	profiles := testutil.NewMockProfileRepository()
	tickets := testutil.NewMockTicketRepository()
	seeder := &Seeder{
		Identity: testutil.NewMockAuthenticator(),
		DB:       db,
		Profiles: profiles,
		Tickets:  tickets,
	}

	first, err := seeder.Run(context.Background(), f)
	require.NoError(t, err)
	assert.True(t, first.ProfileCreated)
	assert.Equal(t, 2, first.Orders)
	assert.Equal(t, 1, first.Payments)
	assert.Equal(t, 1, first.Tickets)
	assert.Equal(t, "Demo Customer", profiles.Stored(first.CustomerID).Name)
	assert.Equal(t, "Demo Prints", profiles.Stored(first.CustomerID).CompanyName)

	order := rest.rows["orders"]["102"]
	assert.Equal(t, first.CustomerID, order["customer_id"])
	assert.Equal(t, "Demo Customer", order["customer_name"])
	assert.NotContains(t, order, "created_at")
	assert.Equal(t, first.CustomerID, rest.rows["payments"]["a1b2c3d4-0000-4000-8000-000000000001"]["customer_id"])
	for _, h := range rest.bearer {
		assert.Equal(t, "Bearer service-role", h)
	}

	// The second run signs in instead of signing up and adds nothing.
	second, err := seeder.Run(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, first.CustomerID, second.CustomerID)
	assert.False(t, second.ProfileCreated)
	assert.Zero(t, second.Orders)
	assert.Zero(t, second.Payments)
	assert.Zero(t, second.Tickets)
	assert.Equal(t, 1, profiles.Rows())
}

func TestRun_SignUpFailure(t *testing.T) {
	f := &Fixture{Customer: Customer{Email: "short@example.com", Password: "123", Name: "Short"}}
	seeder := &Seeder{
		Identity: testutil.NewMockAuthenticator(),
		Profiles: testutil.NewMockProfileRepository(),
		Tickets:  testutil.NewMockTicketRepository(),
	}
	_, err := seeder.Run(context.Background(), f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Password should be at least 6 characters")
}
