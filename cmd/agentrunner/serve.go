package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codeready-toolchain/agent-runner/pkg/api"
)

// newServeCommand runs the Control Plane API and the Background Worker in
// one process, the default deployment shape.
func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Control Plane API and the Background Worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			if err := a.listener.Start(ctx); err != nil {
				return fmt.Errorf("start event stream listener: %w", err)
			}

			a.pool.Start(ctx)
			defer a.pool.Stop()

			server := api.NewServer(a.cfg, a.store, a.broker, a.pool, a.registry)

			errCh := make(chan error, 1)
			go func() {
				addr := ":" + a.cfg.HTTP.Port
				slog.Info("control plane API listening", "addr", addr)
				if err := server.Start(addr); err != nil {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
				slog.Info("shutdown signal received")
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("api server: %w", err)
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Queue.GracefulShutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
}
