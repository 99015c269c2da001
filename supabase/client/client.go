// Package client provides a Supabase client for the customer portal.
// It covers the PostgREST table API and the GoTrue auth API; requests are
// issued with the project's anon key and, when present in the context, the
// signed-in user's access token so row-level security applies.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	maxResponseBytes = 8 << 20 // 8 MiB

	// CodeNoRows is the PostgREST code returned when a single-object request
	// matched zero (or more than one) rows.
	CodeNoRows = "PGRST116"
)

// Client is a Supabase REST API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	requestID  func(context.Context) string
}

// Config holds client configuration.
type Config struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
	// RequestID, when set, supplies the X-Request-ID header for each call.
	RequestID func(context.Context) string
}

// New creates a new Supabase client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("APIKey is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		requestID:  cfg.RequestID,
	}, nil
}

type accessTokenKey struct{}

// WithAccessToken returns a context whose requests are authorized as the
// given user instead of the anonymous role.
func WithAccessToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, accessTokenKey{}, token)
}

// AccessToken returns the user token stored by WithAccessToken.
func AccessToken(ctx context.Context) string {
	if token, ok := ctx.Value(accessTokenKey{}).(string); ok {
		return token
	}
	return ""
}

// =============================================================================
// Database Operations (PostgREST)
// =============================================================================

// From starts a query builder for a table.
func (c *Client) From(table string) *QueryBuilder {
	return &QueryBuilder{
		client: c,
		table:  table,
	}
}

// QueryBuilder builds PostgREST queries.
type QueryBuilder struct {
	client           *Client
	table            string
	columns          string
	filters          []filter
	orders           []string
	limit            int
	single           bool
	onConflict       string
	ignoreDuplicates bool
}

type filter struct {
	column string
	expr   string
}

// Select specifies columns to select.
func (q *QueryBuilder) Select(columns string) *QueryBuilder {
	q.columns = columns
	return q
}

// Eq adds an equality filter.
func (q *QueryBuilder) Eq(column string, value any) *QueryBuilder {
	return q.where(column, "eq", value)
}

func (q *QueryBuilder) where(column, op string, value any) *QueryBuilder {
	q.filters = append(q.filters, filter{column: column, expr: fmt.Sprintf("%s.%v", op, value)})
	return q
}

// Order adds an ORDER BY clause.
func (q *QueryBuilder) Order(column string, ascending bool) *QueryBuilder {
	dir := "asc"
	if !ascending {
		dir = "desc"
	}
	q.orders = append(q.orders, fmt.Sprintf("%s.%s", column, dir))
	return q
}

// Limit sets the LIMIT. Zero or negative means no limit.
func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit = n
	return q
}

// Single expects exactly one row. Zero rows yield an *APIError with
// code CodeNoRows.
func (q *QueryBuilder) Single() *QueryBuilder {
	q.single = true
	return q
}

// OnConflict names the unique columns an insert is resolved against.
func (q *QueryBuilder) OnConflict(columns string) *QueryBuilder {
	q.onConflict = columns
	return q
}

// IgnoreDuplicates makes a conflicting insert a no-op instead of an error.
// Only rows that were actually inserted are returned.
func (q *QueryBuilder) IgnoreDuplicates() *QueryBuilder {
	q.ignoreDuplicates = true
	return q
}

func (q *QueryBuilder) endpoint() string {
	return fmt.Sprintf("%s/rest/v1/%s", q.client.baseURL, url.PathEscape(q.table))
}

func (q *QueryBuilder) filterParams() url.Values {
	params := url.Values{}
	for _, f := range q.filters {
		params.Add(f.column, f.expr)
	}
	return params
}

// Execute executes a SELECT query.
func (q *QueryBuilder) Execute(ctx context.Context) (*Response, error) {
	params := q.filterParams()
	if q.columns != "" {
		params.Set("select", q.columns)
	}
	if len(q.orders) > 0 {
		params.Set("order", strings.Join(q.orders, ","))
	}
	if q.limit > 0 {
		params.Set("limit", strconv.Itoa(q.limit))
	}

	reqURL := q.endpoint()
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	q.client.setHeaders(req)
	if q.single {
		req.Header.Set("Accept", "application/vnd.pgrst.object+json")
	}

	return q.client.do(req)
}

// ExecuteInto runs a SELECT and decodes the body into v.
func (q *QueryBuilder) ExecuteInto(ctx context.Context, v any) error {
	resp, err := q.Execute(ctx)
	if err != nil {
		return err
	}
	return resp.JSON(v)
}

// ExecuteInsert executes an INSERT operation and returns the inserted rows.
func (q *QueryBuilder) ExecuteInsert(ctx context.Context, data any) (*Response, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal data: %w", err)
	}

	reqURL := q.endpoint()
	if q.onConflict != "" {
		reqURL += "?" + url.Values{"on_conflict": {q.onConflict}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	q.client.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	prefer := "return=representation"
	if q.onConflict != "" {
		if q.ignoreDuplicates {
			prefer = "resolution=ignore-duplicates," + prefer
		} else {
			prefer = "resolution=merge-duplicates," + prefer
		}
	}
	req.Header.Set("Prefer", prefer)

	return q.client.do(req)
}

// ExecuteUpdate executes an UPDATE operation on the filtered rows.
func (q *QueryBuilder) ExecuteUpdate(ctx context.Context, data any) (*Response, error) {
	params := q.filterParams()
	if len(params) == 0 {
		return nil, errors.New("update without filters is not allowed")
	}
	reqURL := q.endpoint() + "?" + params.Encode()

	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	q.client.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	return q.client.do(req)
}

// =============================================================================
// Response Types
// =============================================================================

// Response is a generic API response.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// Error returns an error if the response indicates failure.
func (r *Response) Error() error {
	if r.StatusCode >= 400 {
		return parseAPIError(r.StatusCode, r.Body)
	}
	return nil
}

// =============================================================================
// Internal Methods
// =============================================================================

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	token := AccessToken(req.Context())
	if token == "" {
		token = c.apiKey
	}
	if req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if c.requestID != nil {
		if id := c.requestID(req.Context()); id != "" {
			req.Header.Set("X-Request-ID", id)
		}
	}
}

// do performs the request. A non-2xx status yields the response together with
// an *APIError so callers can inspect both.
func (c *Client) do(req *http.Request) (*Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(body) > maxResponseBytes {
		return nil, fmt.Errorf("response exceeds %d bytes", maxResponseBytes)
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		Headers:    resp.Header,
	}
	if err := out.Error(); err != nil {
		return out, err
	}
	return out, nil
}
