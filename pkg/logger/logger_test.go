package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"
)

func TestWithContextAddsIdentifiers(t *testing.T) {
	log := NewDefault("test")
	var buf bytes.Buffer
	log.Logger.SetOutput(&buf)

	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithUserID(ctx, "user-1")
	log.WithContext(ctx).Info("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["trace_id"] != "trace-1" || line["user_id"] != "user-1" {
		t.Fatalf("missing identifiers: %v", line)
	}
	if line["component"] != "test" {
		t.Fatalf("expected component field, got %v", line["component"])
	}
}

func TestLogRequestLevels(t *testing.T) {
	log := NewDefault("http")
	var buf bytes.Buffer
	log.Logger.SetOutput(&buf)

	log.LogRequest(context.Background(), http.MethodGet, "/api/products", http.StatusNotFound, 3*time.Millisecond)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["level"] != "warning" {
		t.Fatalf("expected warning level for 404, got %v", line["level"])
	}
	if line["status"].(float64) != http.StatusNotFound {
		t.Fatalf("unexpected status field: %v", line["status"])
	}
}

func TestContextHelpersOnEmptyContext(t *testing.T) {
	ctx := context.Background()
	if GetTraceID(ctx) != "" || GetUserID(ctx) != "" || GetRole(ctx) != "" {
		t.Fatal("expected empty values")
	}
	if WithTraceID(ctx, "") != ctx {
		t.Fatal("empty trace id should not wrap context")
	}
}
