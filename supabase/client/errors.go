package client

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrNoRows is matched by errors.Is for single-object queries that returned
// nothing.
var ErrNoRows = errors.New("supabase: no rows")

// APIError is a failed Supabase response. Both PostgREST and GoTrue error
// bodies are understood.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    string
	Hint       string

	// structured is false when Message is a truncated raw body.
	structured bool
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase error (status %d, %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase error (status %d): %s", e.StatusCode, e.Message)
}

// Is reports PGRST116 responses as ErrNoRows.
func (e *APIError) Is(target error) bool {
	return target == ErrNoRows && e.Code == CodeNoRows
}

// NewAPIError builds an error as if the service had returned a structured
// body with the given message.
func NewAPIError(status int, code, message string) *APIError {
	return &APIError{StatusCode: status, Code: code, Message: message, structured: message != ""}
}

// messageKeys lists the body fields carrying a human message, in the order
// GoTrue and PostgREST populate them.
var messageKeys = []string{"msg", "error_description", "message", "error"}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	if gjson.ValidBytes(body) {
		res := gjson.ParseBytes(body)
		for _, key := range messageKeys {
			if v := res.Get(key); v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
				apiErr.Message = v.Str
				apiErr.structured = true
				break
			}
		}
		if v := res.Get("error_code"); v.Exists() {
			apiErr.Code = v.String()
		} else if v := res.Get("code"); v.Type == gjson.String {
			apiErr.Code = v.Str
		}
		apiErr.Details = res.Get("details").String()
		apiErr.Hint = res.Get("hint").String()
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
		if len(apiErr.Message) > 256 {
			apiErr.Message = apiErr.Message[:256]
		}
	}
	return apiErr
}

// Message returns the human-readable message the service sent with err, or
// "" when err did not come from a structured Supabase error body.
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.structured {
		return apiErr.Message
	}
	return ""
}
