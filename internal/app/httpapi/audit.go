package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/natefinch/lumberjack"

	"github.com/patisserie-labs/storefront/internal/middleware"
)

// auditEntry records one admin request.
type auditEntry struct {
	Time       time.Time `json:"time"`
	User       string    `json:"user"`
	Role       string    `json:"role"`
	Path       string    `json:"path"`
	Method     string    `json:"method"`
	Status     int       `json:"status"`
	TraceID    string    `json:"trace_id,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
}

type auditSink interface {
	Write(entry auditEntry) error
}

// auditLog keeps the most recent admin actions in memory and optionally
// forwards them to a sink.
type auditLog struct {
	mu      sync.Mutex
	entries []auditEntry
	max     int
	sink    auditSink
}

func newAuditLog(max int, sink auditSink) *auditLog {
	if max <= 0 {
		max = 200
	}
	return &auditLog{max: max, sink: sink}
}

func (l *auditLog) add(entry auditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
	if l.sink != nil {
		_ = l.sink.Write(entry)
	}
}

// listLimit returns up to limit entries, newest first.
func (l *auditLog) listLimit(limit int) []auditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || limit > len(l.entries) {
		limit = len(l.entries)
	}
	out := make([]auditEntry, 0, limit)
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.entries[i])
	}
	return out
}

// fileAuditSink appends audit entries as JSON lines to a rotating file.
type fileAuditSink struct {
	mu  sync.Mutex
	out io.Writer
}

func newFileAuditSink(path string) (auditSink, error) {
	if path == "" {
		return nil, nil
	}
	return &fileAuditSink{out: &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     90,
		Compress:   true,
	}}, nil
}

func (s *fileAuditSink) Write(entry auditEntry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.out.Write(append(b, '\n'))
	return err
}

// statusRecorder captures the response status for the audit trail.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// auditAdmin records every state-changing admin request.
func (h *handler) auditAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		entry := auditEntry{
			Time:       time.Now().UTC(),
			User:       middleware.GetUserID(r.Context()),
			Role:       middleware.GetUserRole(r.Context()),
			Path:       r.URL.Path,
			Method:     r.Method,
			Status:     rec.status,
			TraceID:    w.Header().Get("X-Trace-ID"),
			RemoteAddr: middleware.ClientIP(r),
			UserAgent:  r.UserAgent(),
		}
		h.audit.add(entry)
		h.log.WithContext(r.Context()).
			WithField("method", entry.Method).
			WithField("path", entry.Path).
			WithField("status", entry.Status).
			Info("admin action")
	})
}
