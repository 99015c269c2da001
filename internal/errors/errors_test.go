package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	cases := []struct {
		err    *ServiceError
		code   ErrorCode
		status int
	}{
		{BadRequest("bad"), CodeBadRequest, http.StatusBadRequest},
		{Validation("phone", "invalid"), CodeValidation, http.StatusUnprocessableEntity},
		{Unauthorized(""), CodeUnauthorized, http.StatusUnauthorized},
		{InvalidToken(nil), CodeInvalidToken, http.StatusUnauthorized},
		{NotAuthenticated(), CodeNotAuthenticated, http.StatusUnauthorized},
		{NotFound("order", "7"), CodeNotFound, http.StatusNotFound},
		{RateLimitExceeded(5, "1s"), CodeRateLimited, http.StatusTooManyRequests},
		{Upstream("down", nil), CodeUpstream, http.StatusBadGateway},
		{Unavailable("busy", nil), CodeUnavailable, http.StatusServiceUnavailable},
		{Internal("oops", nil), CodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, tc.err.Code)
		assert.Equal(t, tc.status, tc.err.HTTPStatus)
	}

	assert.Equal(t, "Unauthorized", Unauthorized("").Message)
	assert.Equal(t, "phone", Validation("phone", "invalid").Details["field"])
	assert.Equal(t, "7", NotFound("order", "7").Details["id"])
}

func TestGetServiceError(t *testing.T) {
	cause := New("connection reset")
	wrapped := fmt.Errorf("load orders: %w", Upstream("Could not load orders", cause))

	se := GetServiceError(wrapped)
	require.NotNil(t, se)
	assert.Equal(t, CodeUpstream, se.Code)
	assert.True(t, Is(wrapped, cause))
	assert.Equal(t, "UPSTREAM_ERROR: Could not load orders: connection reset", se.Error())

	assert.Nil(t, GetServiceError(cause))
	assert.Nil(t, GetServiceError(nil))
}
