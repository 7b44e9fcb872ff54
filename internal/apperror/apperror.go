// Package apperror defines the application's error taxonomy.
//
// Every error a service or repository returns on purpose is an *AppError
// wrapping one of the sentinel kinds below. The HTTP layer never inspects
// messages; it asks Status(err) for the status code and renders the
// AppError's Message and Data as the JSON error envelope.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation       = errors.New("validation error")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotFound         = errors.New("not found")
	ErrMethodNotAllowed = errors.New("method not allowed")
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrRateLimited      = errors.New("rate limited")
	ErrGateway          = errors.New("upstream failure")
	ErrConflict         = errors.New("conflict")
)

// AppError is an error the HTTP layer can show to the client as is.
type AppError struct {
	Err     error  // sentinel kind
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Data    any    // Optional: extra payload echoed to the client
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound reports an unknown id. Entries owned by another user are
// reported the same way.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// ValidationFailed reports bad input in field.
func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Unauthorized is returned for a missing, malformed, unknown or expired
// bearer token. The message is deliberately the same for all four.
func Unauthorized() *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: "Unauthorized",
	}
}

// MethodNotAllowed is written with the route's Allow header.
func MethodNotAllowed() *AppError {
	return &AppError{
		Err:     ErrMethodNotAllowed,
		Message: "Method not allowed",
	}
}

// PayloadTooLarge reports a request body over the size cap.
func PayloadTooLarge() *AppError {
	return &AppError{
		Err:     ErrPayloadTooLarge,
		Message: "Payload too large",
	}
}

// RateLimited is returned with a Retry-After header.
func RateLimited() *AppError {
	return &AppError{
		Err:     ErrRateLimited,
		Message: "Too many requests",
	}
}

// Gateway reports a failed call to an upstream service. data is the
// upstream's decoded error payload, if any, and is passed to the client.
func Gateway(message string, data any) *AppError {
	return &AppError{
		Err:     ErrGateway,
		Message: message,
		Data:    data,
	}
}

// Conflict reports a write that collides with an existing record, such as a
// second account for the same email.
func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Status maps an error to its HTTP status code. Errors outside the
// taxonomy are 500.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
