package apiclient

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startDaemon(t *testing.T, handler http.Handler) string {
	t.Helper()

	socket := filepath.Join(t.TempDir(), "usermgrd.socket")
	ln, err := net.Listen("unix", socket)
	require.NoError(t, err)

	srv := httptest.NewUnstartedServer(handler)
	srv.Listener = ln
	srv.Start()
	t.Cleanup(srv.Close)

	return socket
}

func TestCreateUser(t *testing.T) {
	var gotMethod string
	socket := startDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "ok", "user": "pxyz", "uid": 10500, "gid": 10500,
			"password": "secret",
			"warnings": []map[string]string{{"step": "home-directory", "detail": "unreachable"}},
		})
	}))

	res, err := New(socket).CreateUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "pxyz", res.Username)
	assert.Equal(t, 10500, res.UID)
	assert.Equal(t, "secret", res.Password)
	require.Len(t, res.Warnings, 1)
}

func TestDeleteUser(t *testing.T) {
	var gotPath string
	socket := startDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"warnings": []map[string]string{
				{"step": "home-commit-delete", "detail": "unreachable"},
			},
		})
	}))

	warnings, err := New(socket).DeleteUser(context.Background(), "pxyz")
	require.NoError(t, err)
	assert.Equal(t, "/pxyz", gotPath)
	require.Len(t, warnings, 1)
	assert.Equal(t, "home-commit-delete", warnings[0].Step)
}

func TestDeleteUserNotFound(t *testing.T) {
	socket := startDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "user_not_found"})
	}))

	_, err := New(socket).DeleteUser(context.Background(), "pnobody")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsNotFound())
	assert.Equal(t, "user_not_found", apiErr.Status)
}

func TestWithPrincipal(t *testing.T) {
	var gotPrincipal string
	socket := startDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPrincipal = r.Header.Get("X-Forwarded-User")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))

	c := New(socket).WithPrincipal("notebook/web@EXAMPLE.ORG")
	require.NoError(t, c.Health(context.Background()))
	assert.Equal(t, "notebook/web@EXAMPLE.ORG", gotPrincipal)
}

func TestDaemonUnreachable(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "missing.socket"))
	err := c.Health(context.Background())
	assert.Error(t, err)
}
