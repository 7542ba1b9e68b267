package api

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/user"
	"strconv"
	"sync"
	"time"

	"github.com/leibniz-psychology/usermgrd/internal/logger"
	"github.com/leibniz-psychology/usermgrd/pkg/config"
)

// Server serves the lifecycle API on a unix socket. The socket's
// ownership and mode are the outer authentication layer: only the
// fronting proxy's user may connect.
//
// The server supports graceful shutdown with configurable timeout.
type Server struct {
	server          *http.Server
	cfg             config.SocketConfig
	shutdownTimeout time.Duration
	shutdownOnce    sync.Once
}

// NewServer creates the API server in a stopped state. Call Start() to
// bind the socket and begin serving. shutdownTimeout bounds how long
// in-flight requests may finish after the context is cancelled.
func NewServer(cfg config.SocketConfig, router http.Handler, shutdownTimeout time.Duration) *Server {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}
	return &Server{
		server: &http.Server{
			Handler:      router,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  120 * time.Second,
		},
		cfg:             cfg,
		shutdownTimeout: shutdownTimeout,
	}
}

// Start binds the unix socket, applies ownership and mode, and blocks
// until the context is cancelled or the server fails.
func (s *Server) Start(ctx context.Context) error {
	ln, err := s.listen()
	if err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "socket", s.cfg.Path)

		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("API server shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop initiates graceful shutdown and removes the socket file. Safe
// to call multiple times.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("API server shutdown error: %w", err)
			logger.Error("API server shutdown error", logger.KeyError, err)
		} else {
			logger.Info("API server stopped gracefully")
		}
		if err := os.Remove(s.cfg.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("failed to remove socket file", "socket", s.cfg.Path, logger.KeyError, err)
		}
	})
	return shutdownErr
}

// listen binds the socket and applies ownership and mode before any
// request is accepted.
func (s *Server) listen() (net.Listener, error) {
	// a previous run may have left its socket behind
	if info, err := os.Stat(s.cfg.Path); err == nil {
		if info.Mode().Type() != fs.ModeSocket {
			return nil, fmt.Errorf("refusing to replace non-socket file %s", s.cfg.Path)
		}
		if err := os.Remove(s.cfg.Path); err != nil {
			return nil, fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}

	ln, err := net.Listen("unix", s.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to bind socket %s: %w", s.cfg.Path, err)
	}

	if err := s.applySocketPermissions(); err != nil {
		_ = ln.Close()
		_ = os.Remove(s.cfg.Path)
		return nil, err
	}

	return ln, nil
}

func (s *Server) applySocketPermissions() error {
	uid, gid := -1, -1

	if s.cfg.Owner != "" {
		u, err := user.Lookup(s.cfg.Owner)
		if err != nil {
			return fmt.Errorf("unknown socket owner %q: %w", s.cfg.Owner, err)
		}
		uid, err = strconv.Atoi(u.Uid)
		if err != nil {
			return fmt.Errorf("non-numeric uid for %q: %w", s.cfg.Owner, err)
		}
	}

	if s.cfg.Group != "" {
		g, err := user.LookupGroup(s.cfg.Group)
		if err != nil {
			return fmt.Errorf("unknown socket group %q: %w", s.cfg.Group, err)
		}
		gid, err = strconv.Atoi(g.Gid)
		if err != nil {
			return fmt.Errorf("non-numeric gid for %q: %w", s.cfg.Group, err)
		}
	}

	if uid != -1 || gid != -1 {
		if err := os.Chown(s.cfg.Path, uid, gid); err != nil {
			return fmt.Errorf("failed to chown socket: %w", err)
		}
	}

	if s.cfg.Mode != 0 {
		if err := os.Chmod(s.cfg.Path, s.cfg.Mode); err != nil {
			return fmt.Errorf("failed to chmod socket: %w", err)
		}
	}

	return nil
}
