package http

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for endpoint responses.
var (
	// ErrRateLimited indicates the endpoint rate limit was exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrBadRequest indicates the payload was rejected.
	ErrBadRequest = errors.New("bad request")

	// ErrServerError indicates an endpoint-side failure.
	ErrServerError = errors.New("server error")
)

// DeliveryError represents a rejected delivery.
type DeliveryError struct {
	// URL is the endpoint that rejected the payload.
	URL string

	// StatusCode is the HTTP status code returned.
	StatusCode int

	// Message is the error message from the endpoint.
	Message string

	// RequestID is the request ID for debugging (if available).
	RequestID string
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("delivery to %s failed (%d) [%s]: %s",
			e.URL, e.StatusCode, e.RequestID, e.Message)
	}
	return fmt.Sprintf("delivery to %s failed (%d): %s", e.URL, e.StatusCode, e.Message)
}

// Unwrap returns the matching sentinel error based on status code.
func (e *DeliveryError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.StatusCode >= 500:
		return ErrServerError
	case e.StatusCode >= 400:
		return ErrBadRequest
	default:
		return nil
	}
}

// IsRateLimited reports whether the error indicates rate limiting.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsRetryable reports whether the error is transient and worth another
// delivery attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServerError)
}
