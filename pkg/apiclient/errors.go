package apiclient

import (
	"fmt"
	"net/http"
)

// APIError represents an error response from the daemon.
type APIError struct {
	StatusCode int    `json:"-"`
	Status     string `json:"status"`
	Message    string `json:"error,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Status, e.Message)
	}
	if e.Status != "" {
		return e.Status
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// IsNotFound reports whether the account does not exist.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsUnauthorized reports whether the daemon rejected the caller or the
// target account.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusForbidden
}

// IsExhausted reports whether the uid/gid ranges are out of free
// numbers.
func (e *APIError) IsExhausted() bool {
	return e.Status == "allocation_exhausted"
}
