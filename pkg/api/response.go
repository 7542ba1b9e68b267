package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/leibniz-psychology/usermgrd/pkg/identity"
	"github.com/leibniz-psychology/usermgrd/pkg/lifecycle"
)

// CreateResponse is the body of a successful creation. The embedded
// user contributes the status, username, uid/gid and the one-time
// password.
type CreateResponse struct {
	identity.User
	Warnings []identity.Warning `json:"warnings,omitempty"`
}

// StatusResponse is the body of deletes and failures. Status is a
// stable machine-readable token; Error carries free-form detail.
// Warnings surface best-effort steps that failed on an otherwise
// successful delete.
type StatusResponse struct {
	Status   string             `json:"status"`
	Error    string             `json:"error,omitempty"`
	Warnings []identity.Warning `json:"warnings,omitempty"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// last resort, may not reach the client anymore
		http.Error(w, `{"status":"error","error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

// WriteError maps a lifecycle error onto the HTTP status and the
// stable status token clients dispatch on.
func WriteError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	status := "error"

	switch {
	case errors.Is(err, identity.ErrNotFound):
		code, status = http.StatusNotFound, "user_not_found"
	case errors.Is(err, lifecycle.ErrUnauthorized):
		code, status = http.StatusForbidden, "unauthorized"
	case errors.Is(err, identity.ErrAllocationExhausted):
		code, status = http.StatusServiceUnavailable, "allocation_exhausted"
	case errors.Is(err, identity.ErrConflict):
		code, status = http.StatusConflict, "conflict"
	case errors.Is(err, identity.ErrAuthenticationFailure):
		code, status = http.StatusBadGateway, "backend_auth_failed"
	case errors.Is(err, identity.ErrDependencyUnavailable):
		code, status = http.StatusBadGateway, "backend_unavailable"
	}

	JSON(w, code, StatusResponse{Status: status, Error: err.Error()})
}
