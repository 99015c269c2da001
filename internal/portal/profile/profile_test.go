package profile

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printflow/portal/supabase/client"
)

func newRepoWithHandler(t *testing.T, handler http.HandlerFunc) *SupabaseRepository {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := client.New(client.Config{URL: server.URL, APIKey: "anon"})
	require.NoError(t, err)
	return NewSupabaseRepository(c)
}

func strPtr(s string) *string { return &s }

func TestNewDefault(t *testing.T) {
	now := time.Date(2024, 2, 10, 8, 0, 0, 0, time.UTC)

	p := NewDefault("u1", "asha@example.com", map[string]interface{}{
		"name":         "Asha Rao",
		"company_name": "Rao Prints",
		"phone":        "98450 00000",
	}, now)
	assert.Equal(t, "u1", p.ID)
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, "Asha Rao", p.Name)
	assert.Equal(t, "Rao Prints", p.CompanyName)
	assert.Equal(t, "98450 00000", p.Phone)
	assert.Zero(t, p.TotalOrders)
	assert.Zero(t, p.TotalSpent)
	assert.Equal(t, "2024-02-10T08:00:00Z", p.JoinedDate)

	p = NewDefault("u2", "ravi.k@example.com", nil, now)
	assert.Equal(t, "ravi.k", p.Name)

	p = NewDefault("u3", "ravi@example.com", map[string]interface{}{"name": "   "}, now)
	assert.Equal(t, "ravi", p.Name)
}

func TestPatch(t *testing.T) {
	assert.True(t, Patch{}.Empty())

	tags := []string{"vip"}
	patch := Patch{Name: strPtr("X"), Phone: strPtr(""), Tags: &tags}
	assert.False(t, patch.Empty())
	require.NoError(t, patch.Validate())

	p := &Profile{Name: "Old", Phone: "123", CompanyName: "Keep"}
	patch.Apply(p)
	assert.Equal(t, "X", p.Name)
	assert.Equal(t, "", p.Phone)
	assert.Equal(t, "Keep", p.CompanyName)
	assert.Equal(t, []string{"vip"}, p.Tags)

	assert.Error(t, Patch{Name: strPtr("  ")}.Validate())
	assert.Error(t, Patch{Birthday: strPtr("10/02/1990")}.Validate())
	assert.NoError(t, Patch{Birthday: strPtr("1990-02-10")}.Validate())
}

func TestSupabaseRepository_GetByUserID(t *testing.T) {
	repo := newRepoWithHandler(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/customers", r.URL.Path)
		switch r.URL.Query().Get("user_id") {
		case "eq.u1":
			_, _ = w.Write([]byte(`{"id":"u1","user_id":"u1","name":"Asha","email":"a@x.co","phone":null,"total_orders":3,"total_spent":1500.5,"tags":null}`))
		default:
			w.WriteHeader(http.StatusNotAcceptable)
			_, _ = w.Write([]byte(`{"code":"PGRST116","message":"JSON object requested, multiple (or no) rows returned"}`))
		}
	})

	p, err := repo.GetByUserID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Asha", p.Name)
	assert.Equal(t, 3, p.TotalOrders)
	assert.Equal(t, 1500.5, p.TotalSpent)

	_, err = repo.GetByUserID(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSupabaseRepository_GetByUserID_OtherErrors(t *testing.T) {
	repo := newRepoWithHandler(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":"PGRST301","message":"JWT expired"}`))
	})

	_, err := repo.GetByUserID(context.Background(), "u1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "JWT expired", client.Message(err))
}

func TestSupabaseRepository_InsertIfAbsent(t *testing.T) {
	existing := map[string]bool{}
	repo := newRepoWithHandler(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "user_id", r.URL.Query().Get("on_conflict"))

		var row map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&row))
		assert.NotContains(t, row, "created_at")

		w.WriteHeader(http.StatusCreated)
		id := row["user_id"].(string)
		if existing[id] {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		existing[id] = true
		out, _ := json.Marshal([]interface{}{row})
		_, _ = w.Write(out)
	})

	p := NewDefault("u1", "a@x.co", nil, time.Now())

	row, created, err := repo.InsertIfAbsent(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "u1", row.ID)

	row, created, err = repo.InsertIfAbsent(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Nil(t, row)
}

func TestSupabaseRepository_Update(t *testing.T) {
	var body map[string]interface{}
	repo := newRepoWithHandler(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "eq.u1", r.URL.Query().Get("id"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`[]`))
	})

	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	err := repo.Update(context.Background(), "u1", Patch{Name: strPtr("X")}, now)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"name":       "X",
		"updated_at": "2024-03-01T00:00:00Z",
	}, body)
}
