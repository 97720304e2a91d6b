package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrEmptyToken       = errors.New("login returned an empty token")
	ErrInvalidResponse  = errors.New("invalid api response")
	ErrResponseTooLarge = errors.New("api response too large")
)

// Error is a non-2xx answer from the billing API. Message carries the
// server's error text, or a generic "<operation> failed: <status>" when the
// body was empty.
type Error struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(op operation, status int, message string) *Error {
	if message == "" {
		message = fmt.Sprintf("%s failed: %d", op.label, status)
	}
	return &Error{Operation: op.name, StatusCode: status, Message: message}
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsUnauthorized reports a rejected or missing bearer token.
func IsUnauthorized(err error) bool {
	code := StatusCode(err)
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}
