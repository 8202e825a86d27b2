package cartsync

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	ErrMissingAddress  = errors.New("shipping address is required")

	// ErrUnavailable covers every failure that says nothing about the request itself:
	// network errors, timeouts, 5xx responses and an open circuit breaker.
	ErrUnavailable = errors.New("cart service unavailable")

	// ErrMalformedResponse means the server accepted the request but its reply could not be decoded.
	// The change may have been applied, so it must not be retried as if the server were unreachable.
	ErrMalformedResponse = errors.New("malformed response from cart service")

	ErrRejected     = errors.New("request rejected by cart service")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
)

// APIError is a non-2xx response of the cart API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("cart api: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("cart api: %d %s", e.Status, e.Message)
}

// Is classifies the response: 5xx is ErrUnavailable, 401 ErrUnauthorized, 404 ErrNotFound and any other 4xx ErrRejected.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnavailable:
		return e.Status >= http.StatusInternalServerError
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrRejected:
		return e.Status >= http.StatusBadRequest && e.Status < http.StatusInternalServerError
	}
	return false
}
