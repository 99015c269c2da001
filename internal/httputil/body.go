package httputil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/printflow/portal/internal/errors"
)

// DefaultMaxBodyBytes bounds JSON request bodies.
const DefaultMaxBodyBytes = 64 << 10

// ReadAllWithLimit reads at most limit bytes and reports whether r had more.
func ReadAllWithLimit(r io.Reader, limit int64) ([]byte, bool, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) > limit {
		return data[:limit], true, nil
	}
	return data, false, nil
}

// ReadAllStrict reads r and fails if it exceeds limit bytes.
func ReadAllStrict(r io.Reader, limit int64) ([]byte, error) {
	data, truncated, err := ReadAllWithLimit(r, limit)
	if err != nil {
		return nil, err
	}
	if truncated {
		return nil, fmt.Errorf("body exceeds %d bytes", limit)
	}
	return data, nil
}

// DecodeJSON decodes the request body into v, rejecting unknown fields and
// trailing data. Failures are returned as BadRequest service errors.
func DecodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.BadRequest("Request body is required")
	}
	body, err := ReadAllStrict(r.Body, DefaultMaxBodyBytes)
	if err != nil {
		return errors.BadRequest("Request body too large")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return errors.BadRequest("Request body is required")
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.BadRequest("Invalid JSON body").WithDetails("reason", err.Error())
	}
	if dec.More() {
		return errors.BadRequest("Invalid JSON body").WithDetails("reason", "trailing data")
	}
	return nil
}
