package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks input rejected client-side before any
	// network call is made.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks an unknown event or guest id. Never retried.
	ErrNotFound = errors.New("not found")

	// ErrTimeout marks a request that exceeded the transport bound.
	ErrTimeout = errors.New("request timed out")

	// ErrConnection marks an unavailable push channel or an unreachable
	// backend. The dashboard degrades to invalidation-driven refetch.
	ErrConnection = errors.New("connection error")
)

// APIError is a failure reported by the backend envelope
// {success:false, message, statusCode}.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// Is lets APIError with status 404 match ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == 404
}

// UserMessage extracts a human-readable description from any error
// surfaced by the transport or the synchronization core.
func UserMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "Invalid input"
	case errors.Is(err, ErrNotFound):
		return "Not found"
	case errors.Is(err, ErrTimeout):
		return "The request timed out"
	case errors.Is(err, ErrConnection):
		return "Connection unavailable"
	}
	if err != nil {
		return err.Error()
	}
	return "An unexpected error occurred"
}
