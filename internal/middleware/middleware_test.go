package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/patisserie-labs/storefront/pkg/logger"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORSMiddleware(t *testing.T) {
	m := NewCORSMiddleware([]string{"https://shop.example.com/", " "})

	tests := []struct {
		name       string
		method     string
		origin     string
		preflight  bool
		wantStatus int
		wantAllow  string
	}{
		{"allowed origin", http.MethodGet, "https://shop.example.com", false, http.StatusOK, "https://shop.example.com"},
		{"suffix attack", http.MethodGet, "https://evilshop.example.com", false, http.StatusOK, ""},
		{"allowed preflight", http.MethodOptions, "https://shop.example.com", true, http.StatusNoContent, "https://shop.example.com"},
		{"denied preflight", http.MethodOptions, "https://evil.test", true, http.StatusForbidden, ""},
		{"no origin", http.MethodGet, "", false, http.StatusOK, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/api/products", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			if tc.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rr := httptest.NewRecorder()
			m.Handler(okHandler()).ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tc.wantStatus)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tc.wantAllow {
				t.Errorf("Allow-Origin = %q, want %q", got, tc.wantAllow)
			}
			if tc.wantAllow != "" && rr.Header().Get("Access-Control-Allow-Credentials") != "true" {
				t.Error("expected credentials to be allowed")
			}
		})
	}
}

func TestCORSMiddleware_CheckOrigin(t *testing.T) {
	m := NewCORSMiddleware([]string{"https://admin.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if !m.CheckOrigin(req) {
		t.Error("request without origin should be accepted")
	}
	req.Header.Set("Origin", "https://other.example.com")
	if m.CheckOrigin(req) {
		t.Error("foreign origin accepted")
	}
}

func TestRateLimiter_AllowPerKey(t *testing.T) {
	rl := NewRateLimiter("otp", 3, time.Minute, 3, logger.NewDiscard())
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !rl.Allow("a@example.com") {
			t.Fatalf("request %d rejected", i+1)
		}
	}
	if rl.Allow("a@example.com") {
		t.Fatal("fourth request within the window allowed")
	}
	if !rl.Allow("b@example.com") {
		t.Fatal("other key should have its own bucket")
	}

	now = now.Add(20 * time.Second)
	if !rl.Allow("a@example.com") {
		t.Fatal("token should refill after window/events")
	}
}

func TestRateLimiter_Handler(t *testing.T) {
	rl := NewRateLimiter("api", 1, time.Second, 1, logger.NewDiscard())
	handler := rl.Handler(okHandler())

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/otp/request", nil)
		req.RemoteAddr = "203.0.113.7:51000"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != want {
			t.Fatalf("request %d: status = %d, want %d", i+1, rr.Code, want)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/otp/request", nil)
	req.RemoteAddr = "203.0.113.7:52000"
	req = req.WithContext(logger.WithUserID(context.Background(), "user-1"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("authenticated caller should be keyed by user, got %d", rr.Code)
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter("otp", 3, time.Minute, 3, logger.NewDiscard())
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.Allow("stale")
	now = now.Add(5 * time.Minute)
	rl.Allow("fresh")
	now = now.Add(6 * time.Minute)

	if removed := rl.Cleanup(); removed != 1 {
		t.Fatalf("Cleanup() removed %d, want 1", removed)
	}
	if rl.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", rl.Size())
	}
}

func TestRateLimiter_StartStop(t *testing.T) {
	rl := NewRateLimiter("otp", 3, time.Minute, 3, logger.NewDiscard())
	rl.interval = time.Millisecond
	ctx := context.Background()

	if err := rl.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := rl.Start(ctx); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := rl.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := rl.Stop(stopCtx); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	if got := ClientIP(req); got != "2001:db8::1" {
		t.Errorf("ClientIP() = %q", got)
	}
	req.RemoteAddr = "pipe"
	if got := ClientIP(req); got != "pipe" {
		t.Errorf("ClientIP() = %q", got)
	}
}

func TestTracingMiddleware(t *testing.T) {
	m := NewTracingMiddleware(logger.NewDiscard())
	var seen string
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.GetTraceID(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Trace-ID", "trace-abc")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if seen != "trace-abc" || rr.Header().Get("X-Trace-ID") != "trace-abc" {
		t.Fatalf("trace id not propagated: ctx %q header %q", seen, rr.Header().Get("X-Trace-ID"))
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || seen == "trace-abc" {
		t.Fatalf("expected a generated trace id, got %q", seen)
	}
}

func TestTracingMiddleware_Recover(t *testing.T) {
	m := NewTracingMiddleware(logger.NewDiscard())
	handler := m.Recover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
}

func TestMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	router := mux.NewRouter()
	router.Use(MetricsMiddleware())
	router.Handle("/api/products/{slug}", okHandler())

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/products/opera-cake", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestCacheControl(t *testing.T) {
	handler := CacheControl("public, max-age=60")(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Header().Get("Cache-Control") != "public, max-age=60" {
		t.Errorf("GET Cache-Control = %q", rr.Header().Get("Cache-Control"))
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	if rr.Header().Get("Cache-Control") != "" {
		t.Errorf("POST Cache-Control = %q", rr.Header().Get("Cache-Control"))
	}

	rr = httptest.NewRecorder()
	NoStore(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("NoStore Cache-Control = %q", rr.Header().Get("Cache-Control"))
	}
}
