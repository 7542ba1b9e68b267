package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/leibniz-psychology/usermgrd/pkg/identity"
	"github.com/leibniz-psychology/usermgrd/pkg/lifecycle"
)

// Orchestrator is the lifecycle surface the handlers drive.
type Orchestrator interface {
	CreateUser(ctx context.Context) (*lifecycle.Result, error)
	DeleteUser(ctx context.Context, username string) ([]identity.Warning, error)
}

// Pinger reports backend reachability for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the user lifecycle endpoints.
type Handler struct {
	orch Orchestrator
	dir  Pinger
}

// NewHandler creates the lifecycle handler. dir may be nil, in which
// case readiness degrades to liveness.
func NewHandler(orch Orchestrator, dir Pinger) *Handler {
	return &Handler{orch: orch, dir: dir}
}

// CreateUser handles POST /.
//
// The request carries no body: username, password and uid/gid are
// generated server-side. The password in the response is shown exactly
// once.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	res, err := h.orch.CreateUser(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	JSON(w, http.StatusCreated, CreateResponse{
		User:     *res.User,
		Warnings: res.Warnings,
	})
}

// DeleteUser handles DELETE /{user}.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "user")
	if !identity.ValidUsername(username) {
		JSON(w, http.StatusNotFound, StatusResponse{Status: "user_not_found"})
		return
	}

	warnings, err := h.orch.DeleteUser(r.Context(), username)
	if err != nil {
		WriteError(w, err)
		return
	}

	JSON(w, http.StatusOK, StatusResponse{Status: "ok", Warnings: warnings})
}

// Liveness handles GET /health.
func (h *Handler) Liveness(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// Readiness handles GET /health/ready. Ready means the directory
// answers; the KDC and the collaborator daemons are probed lazily by
// the sagas themselves.
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.dir == nil {
		JSON(w, http.StatusOK, StatusResponse{Status: "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.dir.Ping(ctx); err != nil {
		JSON(w, http.StatusServiceUnavailable, StatusResponse{
			Status: "not_ready",
			Error:  err.Error(),
		})
		return
	}

	JSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}
