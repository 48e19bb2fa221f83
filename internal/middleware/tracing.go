package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	svcerrors "github.com/patisserie-labs/storefront/internal/errors"
	"github.com/patisserie-labs/storefront/internal/httputil"
	"github.com/patisserie-labs/storefront/pkg/logger"
)

const traceHeader = "X-Trace-ID"

// TracingMiddleware assigns a trace ID to every request and logs its outcome.
type TracingMiddleware struct {
	logger *logger.Logger
}

// NewTracingMiddleware creates a new tracing middleware.
func NewTracingMiddleware(log *logger.Logger) *TracingMiddleware {
	if log == nil {
		log = logger.NewDefault("http")
	}
	return &TracingMiddleware{logger: log}
}

// Handler returns the tracing middleware handler.
func (m *TracingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(traceHeader)
		if traceID == "" || len(traceID) > 128 {
			traceID = logger.NewTraceID()
		}

		ctx := logger.WithTraceID(r.Context(), traceID)
		w.Header().Set(traceHeader, traceID)

		rw := wrapResponseWriter(w)
		start := time.Now()
		next.ServeHTTP(rw, r.WithContext(ctx))

		m.logger.LogRequest(ctx, r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}

// Recover turns handler panics into a 500 response.
func (m *TracingMiddleware) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				m.logger.WithContext(r.Context()).
					WithField("panic", rec).
					WithField("stack", string(debug.Stack())).
					Error("handler panic")
				httputil.WriteError(w, r, svcerrors.Internal("internal server error", nil))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
