package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mikepea/inkwell/pkg/inkwell/database"
	"github.com/mikepea/inkwell/pkg/inkwell/observability"
	"github.com/mikepea/inkwell/pkg/inkwell/ratelimit"
	"github.com/mikepea/inkwell/pkg/inkwell/server"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		logger := observability.Logger

		shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
			ServiceName: cfg.TracingServiceName,
			Environment: cfg.Env,
			Enabled:     cfg.TracingEnabled,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Warn("tracer shutdown failed", "error", err)
			}
		}()

		db, err := openDB()
		if err != nil {
			return err
		}
		defer func() { _ = database.Close() }()

		rdb, err := ratelimit.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		if rdb != nil {
			defer func() { _ = rdb.Close() }()
		} else if cfg.RateLimitPerMinute > 0 {
			logger.Warn("REDIS_URL not set, rate limiting disabled")
		}

		if err := os.MkdirAll(cfg.MediaRoot, 0o755); err != nil {
			return fmt.Errorf("failed to create media root: %w", err)
		}

		srv := &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           server.New(server.Deps{Config: cfg, DB: db, Redis: rdb}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("starting inkwell server", "port", cfg.Port, "env", cfg.Env)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		logger.Info("server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
