// Package errors provides HTTP error handling utilities for the API.
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/stacklok/oagw/pkg/errors"
	"github.com/stacklok/oagw/pkg/logger"
)

// HandlerWithError is an HTTP handler that can return an error.
// This signature allows handlers to return errors instead of manually
// writing error responses, enabling centralized error handling.
type HandlerWithError func(http.ResponseWriter, *http.Request) error

// envelope is the JSON body every proxy_request/CRUD error response
// carries: a stable, qualified type id plus a message safe to show a
// caller, matching the taxonomy in pkg/errors (spec.md §7).
type envelope struct {
	Type     string         `json:"type"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ErrorHandler wraps a HandlerWithError and converts returned errors
// into the gateway's error envelope.
//
// The decorator:
//   - Returns early if no error is returned (handler already wrote response)
//   - Extracts HTTP status code and type from the error using errors.Code()
//   - For 5xx errors: logs full error details, returns a generic message to the client
//   - For 4xx errors: returns the error's type/message/metadata (e.g. retry_after_ms
//     on a throttled.v1 response, also surfaced as a Retry-After header)
//
// Usage:
//
//	r.Get("/{name}", apierrors.ErrorHandler(routes.getWorkload))
func ErrorHandler(fn HandlerWithError) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			// No error returned, handler already wrote the response
			return
		}

		code := errors.Code(err)
		env := envelope{Type: string(errors.TypeOf(err)), Message: err.Error()}

		if code >= http.StatusInternalServerError {
			logger.Errorf("Internal server error: %v", err)
			env.Message = http.StatusText(code)
			writeEnvelope(w, code, env)
			return
		}

		if meta := errors.MetadataOf(err); meta != nil {
			env.Metadata = meta
			env.Message = errors.MessageOf(err)
			if v, ok := meta["retry_after_ms"]; ok {
				if ms, ok := v.(int64); ok {
					w.Header().Set("Retry-After", fmt.Sprintf("%d", ms/1000))
				}
			}
		} else {
			env.Message = errors.MessageOf(err)
		}
		writeEnvelope(w, code, env)
	}
}

func writeEnvelope(w http.ResponseWriter, code int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		logger.Errorf("failed to encode error envelope: %v", err)
	}
}
