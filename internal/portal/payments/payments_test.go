package payments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printflow/portal/supabase/client"
)

func orderID(id int64) *int64 { return &id }

func sample() []Payment {
	return []Payment{
		{ID: "7c9e6679-7425-40de-944b-e07fc1f90ae7", OrderID: orderID(101), TotalAmount: 1000, AmountPaid: 1000, Status: StatusPaid},
		{ID: "a1b2c3d4-0000-4000-8000-000000000001", OrderID: orderID(102), TotalAmount: 3000, AmountPaid: 1000, Status: StatusPartial, Notes: "Advance for banners"},
		{ID: "b2c3d4e5-0000-4000-8000-000000000002", TotalAmount: 500, AmountPaid: 0, Status: StatusDue},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sample())
	assert.Equal(t, 4500.0, s.TotalBilled)
	assert.Equal(t, 2000.0, s.TotalPaid)
	assert.Equal(t, 2500.0, s.Outstanding)

	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestFilter(t *testing.T) {
	list := sample()

	assert.Len(t, Filter{Status: "all"}.Apply(list), 3)
	assert.Len(t, Filter{Status: "partial"}.Apply(list), 1)
	assert.Len(t, Filter{Query: "banners"}.Apply(list), 1)
	assert.Len(t, Filter{Query: "102"}.Apply(list), 1)
	assert.Len(t, Filter{Query: "INV-7C9E"}.Apply(list), 1)
	assert.Len(t, Filter{Query: "b2c3d4e5"}.Apply(list), 1)
	assert.Empty(t, Filter{Query: "nothing"}.Apply(list))
}

func TestPayment_Display(t *testing.T) {
	p := sample()[1]
	assert.Equal(t, "INV-A1B2C3D4", p.InvoiceNumber())
	assert.Equal(t, 2000.0, p.Balance())
	assert.True(t, p.Outstanding())
	assert.False(t, sample()[0].Outstanding())
}

func TestSupabaseRepository_Get(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "eq.cust-1", r.URL.Query().Get("customer_id"))
		_, _ = w.Write([]byte(`{"id":"7c9e6679-7425-40de-944b-e07fc1f90ae7","order_id":101,"total_amount":1000,"amount_paid":400,"status":"Partial"}`))
	}))
	defer server.Close()

	c, err := client.New(client.Config{URL: server.URL, APIKey: "anon"})
	require.NoError(t, err)
	repo := NewSupabaseRepository(c)

	p, err := repo.Get(context.Background(), "cust-1", "7c9e6679-7425-40de-944b-e07fc1f90ae7")
	require.NoError(t, err)
	require.NotNil(t, p.OrderID)
	assert.Equal(t, int64(101), *p.OrderID)

	_, err = repo.Get(context.Background(), "cust-1", "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, calls)
}
