package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// newWorkerCommand runs only the Background Worker, for deployments that
// scale claim/execute capacity independently of the Control Plane API.
// Exposes /metrics on its own listener since no API server is running in
// this process.
func newWorkerCommand() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run only the Background Worker (claim and execute Runs)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			if err := a.listener.Start(ctx); err != nil {
				slog.Warn("event stream listener failed to start, heartbeats still work but SSE fan-out in this process will not", "error", err)
			}

			a.pool.Start(ctx)
			defer a.pool.Stop()

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			metricsServer := &http.Server{Addr: metricsAddr, Handler: mux}
			go func() {
				if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					slog.Warn("worker metrics server failed", "error", err)
				}
			}()

			slog.Info("background worker running", "metrics_addr", metricsAddr)
			<-ctx.Done()
			slog.Info("shutdown signal received")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Queue.GracefulShutdownTimeout)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Address to serve /metrics on")
	return cmd
}
