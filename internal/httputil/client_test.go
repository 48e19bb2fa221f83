package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/patisserie-labs/storefront/pkg/logger"
)

func TestNewAPIClient_Defaults(t *testing.T) {
	client := NewAPIClient(APIClientConfig{BaseURL: "https://api.example.com/"})

	if client.baseURL != "https://api.example.com" {
		t.Errorf("baseURL = %s, want trailing slash trimmed", client.baseURL)
	}
	if client.httpClient.Timeout != 20*time.Second {
		t.Errorf("Timeout = %v, want 20s", client.httpClient.Timeout)
	}
}

func TestAPIClient_BasicAuthAndTrace(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			t.Errorf("basic auth = %q/%q, want key/secret", user, pass)
		}
		if r.Header.Get("X-Request-ID") != "trace-9" {
			t.Errorf("X-Request-ID = %q, want trace-9", r.Header.Get("X-Request-ID"))
		}
		var body map[string]int
		json.NewDecoder(r.Body).Decode(&body)
		if body["amount"] != 500 {
			t.Errorf("amount = %d, want 500", body["amount"])
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "order_1"})
	}))
	defer server.Close()

	client := NewAPIClient(APIClientConfig{BaseURL: server.URL, Username: "key", Password: "secret"})
	ctx := logger.WithTraceID(context.Background(), "trace-9")

	var out map[string]string
	if err := client.DoJSON(ctx, http.MethodPost, "/orders", map[string]int{"amount": 500}, &out); err != nil {
		t.Fatalf("DoJSON() error = %v", err)
	}
	if out["id"] != "order_1" {
		t.Errorf("id = %s, want order_1", out["id"])
	}
}

func TestAPIClient_RetriesTransientStatus(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"k":"v"}` {
			t.Errorf("body on attempt %d = %q", atomic.LoadInt32(&attempts)+1, body)
		}
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	retry := DefaultRetryConfig()
	retry.InitialBackoff = time.Millisecond
	retry.Jitter = 0
	client := NewAPIClient(APIClientConfig{BaseURL: server.URL, Retry: &retry})

	if err := client.DoJSON(context.Background(), http.MethodPut, "/x", map[string]string{"k": "v"}, nil); err != nil {
		t.Fatalf("DoJSON() error = %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestAPIClient_DoesNotRetryPost(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	retry := DefaultRetryConfig()
	retry.InitialBackoff = time.Millisecond
	client := NewAPIClient(APIClientConfig{BaseURL: server.URL, Retry: &retry})

	if err := client.DoJSON(context.Background(), http.MethodPost, "/x", map[string]string{"k": "v"}, nil); err == nil {
		t.Fatal("DoJSON() error = nil, want upstream failure")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestDecodeResponse_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"message": "hello"})
	}))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("http.Get() error = %v", err)
	}

	var result map[string]string
	if err := DecodeResponse(resp, &result); err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if result["message"] != "hello" {
		t.Errorf("result[message] = %s, want hello", result["message"])
	}
}

func TestDecodeResponse_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad request"))
	}))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("http.Get() error = %v", err)
	}

	err = DecodeResponse(resp, nil)
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("DecodeResponse() error = %v, want *UpstreamError", err)
	}
	if upstream.StatusCode != http.StatusBadRequest || !strings.Contains(upstream.Body, "bad request") {
		t.Errorf("unexpected upstream error %+v", upstream)
	}
}

func TestReadAllStrict(t *testing.T) {
	if _, err := ReadAllStrict(strings.NewReader("12345"), 5); err != nil {
		t.Fatalf("exact-size read failed: %v", err)
	}
	if _, err := ReadAllStrict(strings.NewReader("123456"), 5); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
	data, truncated, err := ReadAllWithLimit(strings.NewReader("abcdef"), 3)
	if err != nil || !truncated || string(data) != "abc" {
		t.Fatalf("ReadAllWithLimit = %q, %v, %v", data, truncated, err)
	}
}
