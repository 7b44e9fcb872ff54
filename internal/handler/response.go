// Package handler contains the HTTP handlers of the journaling API.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the incoming request (path params, query, JSON body)
//  2. Call the service layer
//  3. Write the JSON response, or the error envelope
//
// Handlers hold no business rules. Validation and normalization live in
// internal/service; ownership and statistics live in the stores.
package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/chronicle/internal/apperror"
)

// MaxBodyBytes caps every request body.
const MaxBodyBytes = 1_000_000

// ErrorResponse is the error envelope returned by every endpoint:
//
//	{"message": "entry not found with id abc123"}
//	{"message": "Rate limit reached", "data": {...upstream payload...}}
type ErrorResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// OKResponse acknowledges an operation that has nothing else to return.
type OKResponse struct {
	OK bool `json:"ok"`
}

// writeJSON sends data as JSON with the given status code.
//
// Headers and status MUST be set before the body: once Encode writes,
// later header changes are silently dropped.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already out; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// WriteError maps err to its HTTP status and writes the error envelope.
//
// ERROR MAPPING:
// apperror.Status walks the wrap chain (errors.Is) to find the sentinel
// kind, so a service may return
//
//	fmt.Errorf("service/entry: updating entry %s: %w", id, apperror.NotFound(...))
//
// and the client still gets a 404 with the AppError's own message.
//
// Anything outside the taxonomy is a 500 with a generic message. The
// cause is logged, never sent: it may contain SQL, file paths or
// upstream details.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperror.Status(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("requestID", chimiddleware.GetReqID(r.Context())),
			slog.String("error", err.Error()),
		)
		writeJSON(w, status, ErrorResponse{Message: "Internal server error"})
		return
	}

	resp := ErrorResponse{Message: http.StatusText(status)}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		resp.Message = appErr.Message
		resp.Data = appErr.Data
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads a JSON request body into dst.
//
// BODY RULES:
//   - more than MaxBodyBytes         → 413
//   - empty (or whitespace) body     → treated as {}; dst is left as is
//   - not valid JSON                 → 400 "Invalid JSON"
//   - a field of the wrong JSON type → 400 naming the field
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.PayloadTooLarge()
		}
		return fmt.Errorf("handler: reading request body: %w", err)
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	if err := json.Unmarshal(body, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			if typeErr.Field == "" {
				return apperror.ValidationFailed("", "Request body must be a JSON object")
			}
			return apperror.ValidationFailed(typeErr.Field,
				fmt.Sprintf("Invalid value for field %q", typeErr.Field))
		}
		return apperror.ValidationFailed("", "Invalid JSON")
	}
	return nil
}
