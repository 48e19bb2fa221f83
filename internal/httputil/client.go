package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/patisserie-labs/storefront/pkg/logger"
)

// APIClient calls a third-party JSON API (payment gateway, image CDN).
type APIClient struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	userAgent  string
}

// APIClientConfig configures an APIClient.
type APIClientConfig struct {
	BaseURL string
	// Username and Password enable HTTP basic auth.
	Username   string
	Password   string
	Timeout    time.Duration
	UserAgent  string
	Retry      *RetryConfig
	HTTPClient *http.Client
}

// NewAPIClient builds a client. When Retry is set the transport retries
// transient failures and trips a circuit breaker.
func NewAPIClient(cfg APIClientConfig) *APIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	if cfg.Retry != nil {
		httpClient = &http.Client{
			Timeout:   httpClient.Timeout,
			Transport: NewResilientTransport(httpClient.Transport, *cfg.Retry, DefaultCircuitBreakerConfig()),
		}
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = "patisserie-storefront"
	}

	return &APIClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
		userAgent:  ua,
	}
}

// HTTPClient exposes the underlying client for multipart uploads.
func (c *APIClient) HTTPClient() *http.Client { return c.httpClient }

// Do sends a JSON request. body may be nil.
func (c *APIClient) Do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if traceID := logger.GetTraceID(ctx); traceID != "" {
		req.Header.Set("X-Request-ID", traceID)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// DoJSON sends a request and decodes a successful response into target.
func (c *APIClient) DoJSON(ctx context.Context, method, path string, body, target interface{}) error {
	resp, err := c.Do(ctx, method, path, body)
	if err != nil {
		return err
	}
	return DecodeResponse(resp, target)
}

// UpstreamError is a non-2xx response from a third-party API.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}

// DecodeResponse closes resp and decodes its JSON body into target.
func DecodeResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, truncated, err := ReadAllWithLimit(resp.Body, 64<<10)
		if err != nil {
			return fmt.Errorf("read error response body: %w", err)
		}
		msg := strings.TrimSpace(string(body))
		if truncated {
			msg += "...(truncated)"
		}
		return &UpstreamError{StatusCode: resp.StatusCode, Body: msg}
	}

	if target == nil {
		_, err := io.Copy(io.Discard, io.LimitReader(resp.Body, 8<<20))
		return err
	}

	body, err := ReadAllStrict(resp.Body, 8<<20)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
