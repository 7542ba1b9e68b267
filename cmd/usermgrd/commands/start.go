package commands

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/leibniz-psychology/usermgrd/internal/logger"
	"github.com/leibniz-psychology/usermgrd/pkg/allocator"
	"github.com/leibniz-psychology/usermgrd/pkg/api"
	"github.com/leibniz-psychology/usermgrd/pkg/collab"
	"github.com/leibniz-psychology/usermgrd/pkg/config"
	"github.com/leibniz-psychology/usermgrd/pkg/directory"
	"github.com/leibniz-psychology/usermgrd/pkg/lifecycle"
	"github.com/leibniz-psychology/usermgrd/pkg/metrics"
	"github.com/leibniz-psychology/usermgrd/pkg/principal"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the usermgrd daemon",
	Long: `Start the usermgrd daemon with the specified configuration.

The daemon binds its unix socket, verifies the Kerberos keytab, and
serves lifecycle requests until SIGINT or SIGTERM.

Examples:
  # Start with default config location
  usermgrd start

  # Start with custom config file
  usermgrd start --config /etc/usermgrd/config.yaml

  # Start with environment variable overrides
  USERMGRD_LOGGING_LEVEL=DEBUG usermgrd start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	logger.Info("usermgrd starting",
		"version", Version,
		"socket", cfg.Socket.Path,
		"uid_range", fmt.Sprintf("[%d,%d]", cfg.Allocator.MinUID, cfg.Allocator.MaxUID))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var lm *metrics.LifecycleMetrics
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		lm = metrics.NewLifecycleMetrics()
		go serveMetrics(ctx, cfg.Metrics.Port)
	}

	dir := directory.NewLDAPClient(cfg.Directory)

	// fail fast on an unreadable keytab
	kdc, err := principal.NewKadminClient(cfg.Kerberos)
	if err != nil {
		return fmt.Errorf("kerberos setup failed: %w", err)
	}

	home := collab.NewHomeClient(cfg.Homedir)
	cache := collab.NewCacheClient(cfg.NSSCache)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	alloc := allocator.New(cfg.Allocator, dir, rng, lm)

	orch := lifecycle.New(cfg.Allocator, dir, kdc, home, cache, alloc, lm)

	router := api.NewRouter(cfg.Auth, api.NewHandler(orch, dir))
	server := api.NewServer(cfg.Socket, router, cfg.ShutdownTimeout)

	if err := server.Start(ctx); err != nil {
		return err
	}

	logger.Info("usermgrd stopped")
	return nil
}

// serveMetrics runs the Prometheus scrape endpoint on its own TCP
// port. The lifecycle API stays unix-socket only.
func serveMetrics(ctx context.Context, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", port),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server listening", "port", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		// metrics are not worth taking the daemon down for
		logger.Error("metrics server failed", logger.KeyError, err)
	}
}
