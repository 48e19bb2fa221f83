// Package logger provides the structured logger shared by every storefront
// component. It wraps logrus so callers can chain WithField/WithError the
// same way everywhere.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	userIDKey  contextKey = "user_id"
	roleKey    contextKey = "role"
)

// Config controls logger construction.
type Config struct {
	Level  string
	Format string // json or text
	// File enables rotating file output in addition to stdout.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger is a component-scoped logrus entry.
type Logger struct {
	*logrus.Entry
}

// New builds a logger from configuration.
func New(component string, cfg Config) *Logger {
	base := logrus.New()

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	if strings.EqualFold(cfg.Format, "text") {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 50),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 14),
			Compress:   true,
		})
	}
	base.SetOutput(out)

	return &Logger{Entry: base.WithField("component", component)}
}

// NewDefault returns an info-level JSON logger for the named component.
func NewDefault(component string) *Logger {
	return New(component, Config{Level: "info", Format: "json"})
}

// NewDiscard returns a logger that drops everything. Handy in tests.
func NewDiscard() *Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return &Logger{Entry: logrus.NewEntry(base)}
}

// Named returns a child logger for another component sharing the same output.
func (l *Logger) Named(component string) *Logger {
	return &Logger{Entry: l.Entry.WithField("component", component)}
}

// WithContext adds trace and user identifiers found in ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Entry
	if ctx == nil {
		return entry
	}
	if traceID := GetTraceID(ctx); traceID != "" {
		entry = entry.WithField("trace_id", traceID)
	}
	if userID := GetUserID(ctx); userID != "" {
		entry = entry.WithField("user_id", userID)
	}
	return entry
}

// LogRequest records a completed HTTP request.
func (l *Logger) LogRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	})
	switch {
	case status >= 500:
		entry.Error("request failed")
	case status >= 400:
		entry.Warn("request rejected")
	default:
		entry.Info("request completed")
	}
}

// LogSecurityEvent records auth failures, rate limiting and similar events.
func (l *Logger) LogSecurityEvent(ctx context.Context, event string, fields map[string]interface{}) {
	l.WithContext(ctx).WithFields(logrus.Fields(fields)).WithField("security_event", event).Warn("security event")
}

// NewTraceID generates a request trace identifier.
func NewTraceID() string {
	return uuid.NewString()
}

// WithTraceID stores the trace identifier in ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, traceIDKey, traceID)
}

// GetTraceID returns the trace identifier stored in ctx.
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}

// WithUserID stores the authenticated user in ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID returns the authenticated user stored in ctx.
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}

// WithRole stores the caller's role in ctx.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey, role)
}

// GetRole returns the caller's role stored in ctx.
func GetRole(ctx context.Context) string {
	v, _ := ctx.Value(roleKey).(string)
	return v
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
