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

	"github.com/spf13/cobra"

	"github.com/jamesprial/guildview/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP facade and WebSocket stream",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := setup(ctx, os.Stderr)
		if err != nil {
			return err
		}
		return runServe(ctx, a)
	},
}

func runServe(ctx context.Context, a *app) error {
	cfg := a.cfg
	api := httpapi.New(a.registry, a.engine,
		httpapi.WithLogger(a.logger),
		httpapi.WithAudit(a.audit),
		httpapi.WithAuthToken(cfg.Server.AuthToken),
		httpapi.WithPollInterval(cfg.Sync.PollInterval()),
		httpapi.WithMaxLogSize(cfg.Sync.MaxLogSize),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.Handler(),
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeoutSec) * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if cfg.Server.AuthToken == "" {
		a.logger.Warn("server.auth_token is empty; the facade is unauthenticated")
	}

	errc := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case serveErr = <-errc:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSec)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("HTTP shutdown error", "error", err)
	}
	a.shutdown(shutdownCtx)
	a.logger.Info("server stopped")

	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	return nil
}
