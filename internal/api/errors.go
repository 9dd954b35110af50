package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a non-200 response from the credential server.
type Error struct {
	StatusCode int
	ErrorCode  string
	Message    string
}

func (e *Error) Error() string {
	if e.ErrorCode == "" {
		return fmt.Sprintf("credential server returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("credential server returned %d %s: %s", e.StatusCode, e.ErrorCode, e.Message)
}

// IsNotFound reports whether err is a NOT_FOUND response (unknown table or volume).
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && (apiErr.ErrorCode == "NOT_FOUND" || apiErr.StatusCode == http.StatusNotFound)
}

// IsPreconditionFailed reports whether the entity exists but has no storage location.
func IsPreconditionFailed(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.ErrorCode == "FAILED_PRECONDITION"
}
