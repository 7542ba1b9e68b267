package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/leibniz-psychology/usermgrd/internal/logger"
	"github.com/leibniz-psychology/usermgrd/pkg/config"
)

// NewRouter creates and configures the chi router with all middleware
// and routes.
//
// Routes:
//   - POST /          - create a user
//   - DELETE /{user}  - delete a user
//   - GET /health     - liveness probe
//   - GET /health/ready - readiness probe (directory reachability)
//
// The lifecycle routes sit behind the caller-principal check; the
// health routes are open.
func NewRouter(authCfg config.AuthConfig, handler *Handler) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Route("/health", func(r chi.Router) {
		r.Get("/", handler.Liveness)
		r.Get("/ready", handler.Readiness)
	})

	r.Group(func(r chi.Router) {
		r.Use(principalAuth(authCfg))
		r.Post("/", handler.CreateUser)
		r.Delete("/{user}", handler.DeleteUser)
	})

	return r
}

// requestLogger logs requests using the internal logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			logger.KeyRequestID, requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logger.Info("API request completed",
			logger.KeyRequestID, requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			logger.KeyDuration, duration.String(),
		)
	})
}

// callerPrincipalHeader carries the authenticated caller identity
// asserted by the fronting GSSAPI proxy. The unix socket's file
// permissions ensure only that proxy can set it.
const callerPrincipalHeader = "X-Forwarded-User"

// principalAuth rejects lifecycle requests from any caller other than
// the configured principal. An empty configuration disables the check,
// leaving the socket permissions as the only gate.
func principalAuth(cfg config.AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.AuthorizedPrincipal != "" {
				caller := r.Header.Get(callerPrincipalHeader)
				if caller != cfg.AuthorizedPrincipal {
					logger.Warn("rejected unauthorized caller",
						"caller", caller,
						"path", r.URL.Path)
					JSON(w, http.StatusForbidden, StatusResponse{Status: "unauthorized"})
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
