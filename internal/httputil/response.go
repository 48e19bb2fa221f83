// Package httputil holds the JSON request/response helpers shared by the
// storefront handlers and the outbound HTTP client used for third-party APIs.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	svcerrors "github.com/patisserie-labs/storefront/internal/errors"
	"github.com/patisserie-labs/storefront/pkg/logger"
)

// MaxRequestBody bounds JSON request bodies.
const MaxRequestBody = 1 << 20

var log = logger.NewDefault("httputil")

// SetLogger replaces the package logger (used by the application at startup).
func SetLogger(l *logger.Logger) {
	if l != nil {
		log = l
	}
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// WriteJSON encodes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.WithError(err).Warn("encode response")
	}
}

// WriteErrorResponse writes an error body with an explicit status and code.
func WriteErrorResponse(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	WriteJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}

// WriteError maps err to its HTTP status. Unknown errors become a 500 whose
// message is not exposed to the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	se := svcerrors.GetServiceError(err)
	if se == nil {
		se = svcerrors.Internal("", err)
	}

	entry := log.WithContext(r.Context()).
		WithField("method", r.Method).
		WithField("path", r.URL.Path).
		WithField("status", se.HTTPStatus)
	if se.HTTPStatus >= http.StatusInternalServerError {
		entry.WithError(err).Error("request failed")
	} else {
		entry.WithField("reason", se.Message).Debug("request rejected")
	}

	WriteErrorResponse(w, se.HTTPStatus, string(se.Code), se.Message, se.Details)
}

// DecodeJSON reads a bounded JSON body into dst, rejecting unknown fields
// and trailing data.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		return svcerrors.BadRequest("content type must be application/json")
	}
	body := http.MaxBytesReader(w, r.Body, MaxRequestBody)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return svcerrors.BadRequest("request body too large")
		case errors.Is(err, io.EOF):
			return svcerrors.BadRequest("request body is empty")
		default:
			return svcerrors.BadRequest(fmt.Sprintf("invalid JSON payload: %v", err))
		}
	}
	if dec.More() {
		return svcerrors.BadRequest("request body must contain a single JSON object")
	}
	return nil
}
