// Package http provides the HTTP API: kind discovery, property validation
// and entity lifecycle endpoints.
package http

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	metaerrors "github.com/arkilian/catalogmeta/internal/errors"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

type contextKey struct{}

// ErrorResponse is the body of every failed request. Validation failures
// carry the offending property and, for type errors, the expected and actual
// values.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Property  string `json:"property,omitempty"`
	Expected  string `json:"expected,omitempty"`
	Actual    string `json:"actual,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares so the first one sees the request first.
func Chain(middlewares ...Middleware) Middleware {
	return func(h http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			h = middlewares[i](h)
		}
		return h
	}
}

// DefaultMiddleware is the chain every API route runs behind.
func DefaultMiddleware() Middleware {
	return Chain(RequestIDMiddleware, AccessLogMiddleware, RecoveryMiddleware)
}

// RequestIDMiddleware reuses the caller's X-Request-ID or assigns a new one,
// echoes it in the response and stores it in the request context.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, id)))
	})
}

// statusRecorder remembers the status code written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// AccessLogMiddleware logs one line per request with its outcome.
func AccessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("http: %s %s status=%d duration=%s request=%s",
			r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Microsecond), GetRequestID(r.Context()))
	})
}

// RecoveryMiddleware turns a handler panic into a 500 response.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				requestID := GetRequestID(r.Context())
				log.Printf("http: panic serving %s %s (request %s): %v", r.Method, r.URL.Path, requestID, v)
				writeError(w, http.StatusInternalServerError, "internal server error", requestID)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// GetRequestID returns the ID assigned by RequestIDMiddleware.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

func writeError(w http.ResponseWriter, statusCode int, message, requestID string) {
	writeJSON(w, statusCode, ErrorResponse{Error: message, RequestID: requestID})
}

// writeMetaError maps err onto a status code and writes the structured
// error fields.
func writeMetaError(w http.ResponseWriter, err error, requestID string) {
	resp := ErrorResponse{Error: err.Error(), RequestID: requestID}
	var me *metaerrors.MetaError
	if errors.As(err, &me) {
		resp.Code = me.Code
		resp.Property = me.Property
		resp.Expected = me.Expected
		resp.Actual = me.Actual
	}
	writeJSON(w, statusFor(err), resp)
}

func statusFor(err error) int {
	switch metaerrors.GetCode(err) {
	case metaerrors.CodeUnknownKind, metaerrors.CodeEntityNotFound, metaerrors.CodeObjectNotFound:
		return http.StatusNotFound
	case metaerrors.CodePreconditionFailed, metaerrors.CodeEntityAlreadyExists, metaerrors.CodeVersionConflict:
		return http.StatusConflict
	}
	switch metaerrors.GetCategory(err) {
	case metaerrors.ErrCategoryValidation:
		return http.StatusBadRequest
	case metaerrors.ErrCategoryBackend, metaerrors.ErrCategoryStorage:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("http: failed to encode response: %v", err)
	}
}
