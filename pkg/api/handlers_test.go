package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leibniz-psychology/usermgrd/pkg/config"
	"github.com/leibniz-psychology/usermgrd/pkg/identity"
	"github.com/leibniz-psychology/usermgrd/pkg/lifecycle"
)

type fakeOrchestrator struct {
	createResult   *lifecycle.Result
	createErr      error
	deleteErr      error
	deleteWarnings []identity.Warning
	deleted        []string
}

func (f *fakeOrchestrator) CreateUser(context.Context) (*lifecycle.Result, error) {
	return f.createResult, f.createErr
}

func (f *fakeOrchestrator) DeleteUser(_ context.Context, username string) ([]identity.Warning, error) {
	f.deleted = append(f.deleted, username)
	return f.deleteWarnings, f.deleteErr
}

type fakePinger struct{ err error }

func (p *fakePinger) Ping(context.Context) error { return p.err }

func testRouter(orch *fakeOrchestrator, authCfg config.AuthConfig) http.Handler {
	return NewRouter(authCfg, NewHandler(orch, &fakePinger{}))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestCreateUserEndpoint(t *testing.T) {
	orch := &fakeOrchestrator{
		createResult: &lifecycle.Result{
			User: &identity.User{
				Username: "pabcdefgh12345678",
				UID:      10500,
				GID:      10500,
				Password: "supersecret",
				Status:   identity.StatusOK,
			},
		},
	}
	router := testRouter(orch, config.AuthConfig{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	require.Equal(t, http.StatusCreated, rec.Code)

	var body map[string]any
	decode(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "pabcdefgh12345678", body["user"])
	assert.Equal(t, float64(10500), body["uid"])
	assert.Equal(t, float64(10500), body["gid"])
	assert.Equal(t, "supersecret", body["password"])
	assert.NotContains(t, body, "warnings")
}

func TestCreateUserEndpointWithWarnings(t *testing.T) {
	orch := &fakeOrchestrator{
		createResult: &lifecycle.Result{
			User: &identity.User{Username: "pxyz", UID: 1, GID: 1, Status: identity.StatusOK},
			Warnings: []identity.Warning{
				{Step: "home-directory", Detail: "daemon unreachable"},
			},
		},
	}
	router := testRouter(orch, config.AuthConfig{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	require.Equal(t, http.StatusCreated, rec.Code)

	var body CreateResponse
	decode(t, rec, &body)
	require.Len(t, body.Warnings, 1)
	assert.Equal(t, "home-directory", body.Warnings[0].Step)
}

func TestCreateUserEndpointErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantStatus string
	}{
		{"exhausted", identity.ErrAllocationExhausted, http.StatusServiceUnavailable, "allocation_exhausted"},
		{"backend down", identity.ErrDependencyUnavailable, http.StatusBadGateway, "backend_unavailable"},
		{"backend auth", identity.ErrAuthenticationFailure, http.StatusBadGateway, "backend_auth_failed"},
		{"internal", errors.New("boom"), http.StatusInternalServerError, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := testRouter(&fakeOrchestrator{createErr: tt.err}, config.AuthConfig{})

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			var body StatusResponse
			decode(t, rec, &body)
			assert.Equal(t, tt.wantStatus, body.Status)
		})
	}
}

func TestDeleteUserEndpoint(t *testing.T) {
	orch := &fakeOrchestrator{}
	router := testRouter(orch, config.AuthConfig{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/pabc123", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"pabc123"}, orch.deleted)
	assert.NotContains(t, rec.Body.String(), "warnings")
}

func TestDeleteUserEndpointWithWarnings(t *testing.T) {
	orch := &fakeOrchestrator{
		deleteWarnings: []identity.Warning{
			{Step: "home-commit-delete", Detail: "daemon unreachable"},
		},
	}
	router := testRouter(orch, config.AuthConfig{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/pabc123", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body StatusResponse
	decode(t, rec, &body)
	assert.Equal(t, "ok", body.Status)
	require.Len(t, body.Warnings, 1)
	assert.Equal(t, "home-commit-delete", body.Warnings[0].Step)
}

func TestDeleteUserEndpointNotFound(t *testing.T) {
	router := testRouter(&fakeOrchestrator{deleteErr: identity.ErrNotFound}, config.AuthConfig{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/pnobody", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body StatusResponse
	decode(t, rec, &body)
	assert.Equal(t, "user_not_found", body.Status)
}

func TestDeleteUserEndpointUnauthorizedRange(t *testing.T) {
	router := testRouter(&fakeOrchestrator{deleteErr: lifecycle.ErrUnauthorized}, config.AuthConfig{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/root", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeleteUserEndpointInvalidUsername(t *testing.T) {
	orch := &fakeOrchestrator{}
	router := testRouter(orch, config.AuthConfig{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/UPPER..case", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, orch.deleted)
}

func TestPrincipalAuth(t *testing.T) {
	authCfg := config.AuthConfig{AuthorizedPrincipal: "notebook/web@EXAMPLE.ORG"}
	orch := &fakeOrchestrator{
		createResult: &lifecycle.Result{User: &identity.User{Username: "pxyz", Status: identity.StatusOK}},
	}
	router := testRouter(orch, authCfg)

	// no header
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// wrong principal
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Forwarded-User", "mallory@EXAMPLE.ORG")
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// authorized principal
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Forwarded-User", "notebook/web@EXAMPLE.ORG")
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)

	// health stays open
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadiness(t *testing.T) {
	h := NewHandler(&fakeOrchestrator{}, &fakePinger{})
	router := NewRouter(config.AuthConfig{}, h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadinessDirectoryDown(t *testing.T) {
	h := NewHandler(&fakeOrchestrator{}, &fakePinger{err: errors.New("connection refused")})
	router := NewRouter(config.AuthConfig{}, h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body StatusResponse
	decode(t, rec, &body)
	assert.Equal(t, "not_ready", body.Status)
}
