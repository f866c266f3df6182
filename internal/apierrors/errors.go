// Package apierrors shapes the five error kinds of the gateway's error model
// into JSON bodies and HTTP status codes.
package apierrors

import (
	"encoding/json"
	"net/http"
	"time"
)

// Kind is one of the five error kinds the gateway distinguishes (§7).
type Kind string

const (
	KindNotFound   Kind = "NOT_FOUND"
	KindValidation Kind = "VALIDATION_ERROR"
	KindDatabase   Kind = "DATABASE_ERROR"
	KindCache      Kind = "CACHE_ERROR"
	KindInternal   Kind = "INTERNAL_ERROR"
)

// APIError is the JSON body returned on every non-2xx response.
type APIError struct {
	Kind           Kind     `json:"code"`
	Message        string   `json:"error"`
	MissingFields  []string `json:"missingFields,omitempty"`
	RequestID      string   `json:"request_id,omitempty"`
	Timestamp      string   `json:"timestamp"`
}

// New creates an APIError of the given kind.
func New(kind Kind, message string) *APIError {
	return &APIError{
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// WithMissingFields attaches the PUT-validation missing-field list (§7, §8.7).
func (e *APIError) WithMissingFields(fields []string) *APIError {
	e.MissingFields = fields
	return e
}

// WithRequestID attaches the request ID for tracing.
func (e *APIError) WithRequestID(id string) *APIError {
	e.RequestID = id
	return e
}

// StatusCode maps the error kind to the HTTP status code of §7.
func (e *APIError) StatusCode() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindDatabase:
		return http.StatusInternalServerError
	case KindCache:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// TableNotFound is the canonical "unknown table" not-found error.
func TableNotFound() *APIError {
	return New(KindNotFound, "Table not found")
}

// RecordNotFound is the canonical "unknown row" not-found error.
func RecordNotFound() *APIError {
	return New(KindNotFound, "Record not found")
}

// Internal wraps an unexpected invariant violation.
func Internal(message string) *APIError {
	return New(KindInternal, message)
}

// Write serialises the error as the JSON response body and sets the status
// code. Cache errors never reach here — they are logged and swallowed by
// the caller before a response is produced (§7).
func Write(w http.ResponseWriter, err *APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode())
	_ = json.NewEncoder(w).Encode(err)
}
