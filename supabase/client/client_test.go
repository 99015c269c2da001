package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := New(Config{
		URL:    server.URL + "/",
		APIKey: "anon-key",
		RequestID: func(ctx context.Context) string {
			return "req-1"
		},
	})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresURLAndKey(t *testing.T) {
	_, err := New(Config{APIKey: "k"})
	assert.Error(t, err)
	_, err = New(Config{URL: "http://x"})
	assert.Error(t, err)
}

func TestQueryBuilder_SelectUsesUserToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/orders", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "eq.cust-1", q.Get("customer_id"))
		assert.Equal(t, "created_at.desc", q.Get("order"))
		assert.Equal(t, "3", q.Get("limit"))
		assert.Equal(t, "*", q.Get("select"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		assert.Equal(t, "req-1", r.Header.Get("X-Request-ID"))
		_, _ = w.Write([]byte(`[{"id":1},{"id":2}]`))
	})

	ctx := WithAccessToken(context.Background(), "user-token")
	var rows []struct {
		ID int64 `json:"id"`
	}
	err := c.From("orders").Select("*").Eq("customer_id", "cust-1").
		Order("created_at", false).Limit(3).ExecuteInto(ctx, &rows)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestQueryBuilder_AnonymousFallsBackToAnonKey(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer anon-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := c.From("customers").Execute(context.Background())
	require.NoError(t, err)
}

func TestQueryBuilder_SingleNoRows(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/vnd.pgrst.object+json", r.Header.Get("Accept"))
		w.WriteHeader(http.StatusNotAcceptable)
		_, _ = w.Write([]byte(`{"code":"PGRST116","details":"The result contains 0 rows","hint":null,"message":"JSON object requested, multiple (or no) rows returned"}`))
	})

	_, err := c.From("customers").Eq("user_id", "u1").Single().Execute(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoRows))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "The result contains 0 rows", apiErr.Details)
}

func TestQueryBuilder_InsertIgnoreDuplicates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "user_id", r.URL.Query().Get("on_conflict"))
		assert.Equal(t, "resolution=ignore-duplicates,return=representation", r.Header.Get("Prefer"))
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "u1", payload["user_id"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[]`))
	})

	resp, err := c.From("customers").OnConflict("user_id").IgnoreDuplicates().
		ExecuteInsert(context.Background(), map[string]any{"user_id": "u1"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestQueryBuilder_UpdateRequiresFilter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := c.From("customers").ExecuteUpdate(context.Background(), map[string]any{"name": "x"})
	assert.Error(t, err)
}

func TestAuth_SignInWithPassword(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "Bearer anon-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":3600,"expires_at":1700000000,"user":{"id":"u1","email":"a@b.co"}}`))
	})

	resp, err := c.Auth().SignInWithPassword(context.Background(), "a@b.co", "pw")
	require.NoError(t, err)
	assert.Equal(t, "at", resp.AccessToken)
	assert.Equal(t, "u1", resp.User.ID)
	assert.Equal(t, time.Unix(1700000000, 0), resp.Expiry(time.Now()))
}

func TestAuth_ErrorMessagePrecedence(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"gotrue msg", `{"code":400,"error_code":"invalid_credentials","msg":"Invalid login credentials"}`, "Invalid login credentials"},
		{"oauth style", `{"error":"invalid_grant","error_description":"Email not confirmed"}`, "Email not confirmed"},
		{"postgrest", `{"code":"42501","message":"permission denied"}`, "permission denied"},
		{"bare error", `{"error":"rate limited"}`, "rate limited"},
		{"no message", `<html>bad gateway</html>`, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := c.Auth().SignInWithPassword(context.Background(), "a@b.co", "bad")
			require.Error(t, err)
			assert.Equal(t, tc.want, Message(err))
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		})
	}
}

func TestAuth_SignUpSendsMetadata(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/signup", r.URL.Path)
		var payload struct {
			Email string         `json:"email"`
			Data  map[string]any `json:"data"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "Asha", payload.Data["name"])
		// Confirmation required: GoTrue returns the bare user.
		_, _ = w.Write([]byte(`{"id":"u9","email":"asha@example.com","user_metadata":{"name":"Asha"}}`))
	})

	resp, err := c.Auth().SignUp(context.Background(), SignUpParams{
		Email:    "asha@example.com",
		Password: "secret1",
		Data:     map[string]any{"name": "Asha"},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.AccessToken)
	require.NotNil(t, resp.User)
	assert.Equal(t, "u9", resp.User.ID)
}

func TestAuth_SignOutAndRecover(t *testing.T) {
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/auth/v1/logout":
			assert.Equal(t, "Bearer at", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusNoContent)
		case "/auth/v1/recover":
			assert.Equal(t, "https://portal.example.com/reset-password", r.URL.Query().Get("redirect_to"))
			_, _ = w.Write([]byte(`{}`))
		}
	})

	require.NoError(t, c.Auth().SignOut(context.Background(), "at"))
	require.NoError(t, c.Auth().ResetPasswordForEmail(context.Background(), "a@b.co", "https://portal.example.com/reset-password"))
	assert.Equal(t, []string{"/auth/v1/logout", "/auth/v1/recover"}, paths)
}
