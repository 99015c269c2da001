package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printflow/portal/internal/errors"
	"github.com/printflow/portal/internal/logging"
)

func TestWriteError_ServiceError(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	r = r.WithContext(logging.WithTraceID(r.Context(), "trace-1"))
	w := httptest.NewRecorder()

	WriteError(w, r, errors.NotFound("order", "42"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
	assert.Equal(t, "order not found", body.Error.Message)
	assert.Equal(t, "42", body.Error.Details["id"])
	assert.Equal(t, "trace-1", body.Error.TraceID)
}

func TestWriteError_PlainErrorIsInternal(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	WriteError(w, r, errors.New("db password is hunter2"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "hunter2")
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Email string `json:"email"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.co"}`))
	require.NoError(t, DecodeJSON(r, &v))
	assert.Equal(t, "a@b.co", v.Email)

	for _, body := range []string{``, `{"email":"x","admin":true}`, `{"email":"x"} {}`, `not json`} {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		err := DecodeJSON(r, &v)
		require.Error(t, err, body)
		assert.Equal(t, http.StatusBadRequest, errors.GetServiceError(err).HTTPStatus)
	}
}

func TestReadAllWithLimit(t *testing.T) {
	data, truncated, err := ReadAllWithLimit(strings.NewReader("abcdef"), 4)
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Equal(t, "abcd", string(data))

	_, err = ReadAllStrict(strings.NewReader("abcdef"), 4)
	assert.Error(t, err)
}
