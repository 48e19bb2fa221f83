// Package client is a small Supabase REST client covering the PostgREST
// query surface and the Auth user lookup used by the storefront.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patisserie-labs/storefront/internal/httputil"
	"github.com/patisserie-labs/storefront/pkg/logger"
)

// maxResponseBody bounds PostgREST responses read into memory.
const maxResponseBody = 8 << 20

// PostgREST / Postgres error codes.
const (
	CodeNoRows          = "PGRST116"
	CodeUniqueViolation = "23505"
	CodeForeignKey      = "23503"
	CodeCheckViolation  = "23514"
)

// Client is a Supabase REST API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Config holds client configuration.
type Config struct {
	URL    string
	APIKey string
	// Timeout applies when HTTPClient is nil. Defaults to 30s.
	Timeout time.Duration
	// Retry wraps the transport with retries and a circuit breaker when set.
	Retry      *httputil.RetryConfig
	HTTPClient *http.Client
}

// New creates a new Supabase client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("URL is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("APIKey is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
		if cfg.Retry != nil {
			httpClient.Transport = httputil.NewResilientTransport(nil, *cfg.Retry, httputil.DefaultCircuitBreakerConfig())
		}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}, nil
}

// From starts a query builder for a table.
func (c *Client) From(table string) *QueryBuilder {
	return &QueryBuilder{client: c, table: table}
}

type filter struct {
	column string
	expr   string
}

// QueryBuilder builds PostgREST queries.
type QueryBuilder struct {
	client  *Client
	table   string
	columns string
	filters []filter
	orders  []string
	limit   int
	offset  int
	single  bool
	count   string
}

// Select specifies columns to select, including embedded resources such as
// "*,order_items(*)".
func (q *QueryBuilder) Select(columns string) *QueryBuilder {
	q.columns = columns
	return q
}

func (q *QueryBuilder) where(column, op string, value any) *QueryBuilder {
	q.filters = append(q.filters, filter{column: column, expr: op + "." + fmt.Sprint(value)})
	return q
}

// Eq adds an equality filter.
func (q *QueryBuilder) Eq(column string, value any) *QueryBuilder {
	return q.where(column, "eq", value)
}

// Neq adds a not-equal filter.
func (q *QueryBuilder) Neq(column string, value any) *QueryBuilder {
	return q.where(column, "neq", value)
}

// Gt adds a greater-than filter.
func (q *QueryBuilder) Gt(column string, value any) *QueryBuilder {
	return q.where(column, "gt", value)
}

// Gte adds a greater-than-or-equal filter.
func (q *QueryBuilder) Gte(column string, value any) *QueryBuilder {
	return q.where(column, "gte", value)
}

// Lt adds a less-than filter.
func (q *QueryBuilder) Lt(column string, value any) *QueryBuilder {
	return q.where(column, "lt", value)
}

// Lte adds a less-than-or-equal filter.
func (q *QueryBuilder) Lte(column string, value any) *QueryBuilder {
	return q.where(column, "lte", value)
}

// ILike adds a case-insensitive LIKE filter. Use * as the wildcard.
func (q *QueryBuilder) ILike(column, pattern string) *QueryBuilder {
	return q.where(column, "ilike", pattern)
}

// In adds an IN filter.
func (q *QueryBuilder) In(column string, values []string) *QueryBuilder {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = quoteValue(v)
	}
	return q.where(column, "in", "("+strings.Join(quoted, ",")+")")
}

// Is adds an IS filter (null, true, false).
func (q *QueryBuilder) Is(column string, value any) *QueryBuilder {
	return q.where(column, "is", value)
}

// Cs adds an array contains filter.
func (q *QueryBuilder) Cs(column string, values []string) *QueryBuilder {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = quoteValue(v)
	}
	return q.where(column, "cs", "{"+strings.Join(quoted, ",")+"}")
}

// Or adds a disjunction such as "name.ilike.*cake*,description.ilike.*cake*".
func (q *QueryBuilder) Or(expr string) *QueryBuilder {
	q.filters = append(q.filters, filter{column: "or", expr: "(" + expr + ")"})
	return q
}

// Order adds an ORDER BY clause.
func (q *QueryBuilder) Order(column string, ascending bool) *QueryBuilder {
	dir := "asc"
	if !ascending {
		dir = "desc"
	}
	q.orders = append(q.orders, column+"."+dir)
	return q
}

// Limit sets the LIMIT.
func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit = n
	return q
}

// Offset sets the OFFSET.
func (q *QueryBuilder) Offset(n int) *QueryBuilder {
	q.offset = n
	return q
}

// Single expects exactly one row; zero rows yields a PGRST116 error.
func (q *QueryBuilder) Single() *QueryBuilder {
	q.single = true
	return q
}

// Count requests a row count (exact, planned, estimated) reported through
// Response.Total.
func (q *QueryBuilder) Count(countType string) *QueryBuilder {
	q.count = countType
	return q
}

func (q *QueryBuilder) url(withPaging bool) string {
	params := url.Values{}
	if q.columns != "" {
		params.Set("select", q.columns)
	}
	for _, f := range q.filters {
		params.Add(f.column, f.expr)
	}
	if withPaging {
		if len(q.orders) > 0 {
			params.Set("order", strings.Join(q.orders, ","))
		}
		if q.limit > 0 {
			params.Set("limit", strconv.Itoa(q.limit))
		}
		if q.offset > 0 {
			params.Set("offset", strconv.Itoa(q.offset))
		}
	}
	reqURL := q.client.baseURL + "/rest/v1/" + q.table
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	return reqURL
}

func (q *QueryBuilder) prefer(base string) string {
	parts := []string{}
	if base != "" {
		parts = append(parts, base)
	}
	if q.count != "" {
		parts = append(parts, "count="+q.count)
	}
	return strings.Join(parts, ",")
}

// Execute executes a SELECT query.
func (q *QueryBuilder) Execute(ctx context.Context) (*Response, error) {
	req, err := q.client.newRequest(ctx, http.MethodGet, q.url(true), nil)
	if err != nil {
		return nil, err
	}
	if q.single {
		req.Header.Set("Accept", "application/vnd.pgrst.object+json")
	}
	if p := q.prefer(""); p != "" {
		req.Header.Set("Prefer", p)
	}
	return q.client.do(req)
}

// ExecuteInsert inserts one row or a slice of rows and returns them.
func (q *QueryBuilder) ExecuteInsert(ctx context.Context, data any) (*Response, error) {
	return q.write(ctx, http.MethodPost, q.client.baseURL+"/rest/v1/"+q.table, data, "return=representation")
}

// ExecuteUpsert inserts rows, merging duplicates on the onConflict columns.
func (q *QueryBuilder) ExecuteUpsert(ctx context.Context, data any, onConflict string) (*Response, error) {
	reqURL := q.client.baseURL + "/rest/v1/" + q.table
	if onConflict != "" {
		reqURL += "?" + url.Values{"on_conflict": {onConflict}}.Encode()
	}
	return q.write(ctx, http.MethodPost, reqURL, data, "resolution=merge-duplicates,return=representation")
}

// ExecuteUpdate patches every row matching the filters.
func (q *QueryBuilder) ExecuteUpdate(ctx context.Context, data any) (*Response, error) {
	return q.write(ctx, http.MethodPatch, q.url(false), data, "return=representation")
}

// ExecuteDelete deletes every row matching the filters.
func (q *QueryBuilder) ExecuteDelete(ctx context.Context) (*Response, error) {
	req, err := q.client.newRequest(ctx, http.MethodDelete, q.url(false), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Prefer", "return=representation")
	return q.client.do(req)
}

func (q *QueryBuilder) write(ctx context.Context, method, reqURL string, data any, prefer string) (*Response, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal data: %w", err)
	}
	req, err := q.client.newRequest(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", q.prefer(prefer))
	if q.single {
		req.Header.Set("Accept", "application/vnd.pgrst.object+json")
	}
	return q.client.do(req)
}

// RPC calls a stored procedure.
func (c *Client) RPC(ctx context.Context, fn string, params any) (*Response, error) {
	var body []byte
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		body = data
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+"/rest/v1/rpc/"+fn, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// Auth returns an auth client.
func (c *Client) Auth() *AuthClient {
	return &AuthClient{client: c}
}

// AuthClient handles authentication operations.
type AuthClient struct {
	client *Client
}

// GetUser resolves the user owning accessToken.
func (a *AuthClient) GetUser(ctx context.Context, accessToken string) (*User, error) {
	req, err := a.client.newRequest(ctx, http.MethodGet, a.client.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := a.client.do(req)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	var user User
	if err := resp.JSON(&user); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &user, nil
}

// User represents a Supabase Auth user.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Phone        string         `json:"phone"`
	Role         string         `json:"role"`
	AppMetadata  map[string]any `json:"app_metadata"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// Provider returns the sign-in provider recorded in the app metadata.
func (u *User) Provider() string {
	if p, ok := u.AppMetadata["provider"].(string); ok {
		return p
	}
	return ""
}

// DisplayName returns the best available name from the user metadata.
func (u *User) DisplayName() string {
	for _, key := range []string{"full_name", "name"} {
		if v, ok := u.UserMetadata[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Response is a raw API response.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Total returns the row count from Content-Range ("0-9/42"), or -1.
func (r *Response) Total() int {
	cr := r.Headers.Get("Content-Range")
	idx := strings.LastIndex(cr, "/")
	if idx < 0 {
		return -1
	}
	n, err := strconv.Atoi(cr[idx+1:])
	if err != nil {
		return -1
	}
	return n
}

// Err returns an *APIError when the response indicates failure.
func (r *Response) Err() error {
	if r.StatusCode < 400 {
		return nil
	}
	apiErr := &APIError{StatusCode: r.StatusCode}
	if err := json.Unmarshal(r.Body, apiErr); err != nil || (apiErr.Message == "" && apiErr.Msg == "") {
		apiErr.Message = strings.TrimSpace(string(r.Body))
	}
	if apiErr.Message == "" {
		apiErr.Message = apiErr.Msg
	}
	return apiErr
}

// APIError is a PostgREST or GoTrue error body.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details"`
	Hint       string `json:"hint"`
	Msg        string `json:"msg"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase error %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a missing-row error.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == CodeNoRows || apiErr.StatusCode == http.StatusNotFound
}

// IsConflict reports whether err is a unique-constraint violation.
func IsConflict(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == CodeUniqueViolation || (apiErr.StatusCode == http.StatusConflict && apiErr.Code != CodeForeignKey)
}

// IsForeignKeyViolation reports whether err is a foreign-key violation.
func IsForeignKeyViolation(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == CodeForeignKey
}

// IsCheckViolation reports whether err is a CHECK constraint failure.
func IsCheckViolation(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == CodeCheckViolation
}

func (c *Client) newRequest(ctx context.Context, method, reqURL string, body []byte) (*http.Request, error) {
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, reqURL, bytes.NewReader(body))
	} else {
		req, err = http.NewRequestWithContext(ctx, method, reqURL, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if traceID := logger.GetTraceID(ctx); traceID != "" {
		req.Header.Set("X-Request-ID", traceID)
	}
	return req, nil
}

func (c *Client) do(req *http.Request) (*Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := httputil.ReadAllStrict(resp.Body, maxResponseBody)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		Headers:    resp.Header,
	}, nil
}

// quoteValue double-quotes list members containing PostgREST reserved
// characters.
func quoteValue(v string) string {
	if strings.ContainsAny(v, `,()"{}. `) {
		return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return v
}
