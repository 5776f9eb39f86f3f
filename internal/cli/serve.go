package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/api"
)

// shutdownTimeout bounds how long in-flight requests may take to drain.
const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *rootOptions, info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP decision server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			setupLogging(cfg.Logging, os.Stdout)

			slog.Info("starting kestrel",
				"version", info.Version,
				"commit", info.Commit,
				"build_date", info.BuildDate,
			)
			slog.Info("configuration loaded",
				"profile", cfg.Profile,
				"policy_provider", cfg.Policy.Provider,
				"repository", cfg.Repository.Driver,
				"cache", cfg.Cache.Type,
				"eventbus", cfg.EventBus.Type,
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cfg, prometheus.DefaultRegisterer)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					slog.Error("failed to close collaborators", "error", err)
				}
			}()

			if w, err := a.startWorker(ctx); err != nil {
				return err
			} else if w != nil {
				slog.Info("async worker started", "topics", w.GetStats().Topics)
			}

			srv := api.NewServer(cfg.Server, a.deps(info.Version, prometheus.DefaultGatherer))

			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			slog.Info("kestrel is ready",
				"host", cfg.Server.Host,
				"port", cfg.Server.Port,
			)

			select {
			case err, ok := <-errCh:
				if ok {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}
			slog.Info("shutting down...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("server forced to shutdown", "error", err)
			}

			slog.Info("kestrel shutdown complete")
			return nil
		},
	}
}
