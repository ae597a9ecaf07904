package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/skiffcloud/skiff/internal/logging"
	"github.com/skiffcloud/skiff/internal/metrics"
	"github.com/skiffcloud/skiff/internal/observability"
)

func daemonCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run as daemon, serving metrics and health endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			m := metrics.New("skiff")
			p, err := newPlatform(ctx, m)
			if err != nil {
				return err
			}
			defer p.close()

			if metricsAddr == "" {
				metricsAddr = p.cfg.Daemon.MetricsAddr
			}

			if err := observability.Init(ctx, observability.Config{
				Enabled:     p.cfg.Telemetry.Enabled,
				Endpoint:    p.cfg.Telemetry.Endpoint,
				ServiceName: p.cfg.Telemetry.ServiceName,
				SampleRate:  p.cfg.Telemetry.SampleRate,
			}); err != nil {
				return err
			}

			mux := http.NewServeMux()
			mux.Handle("/metrics", m.Handler())
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
				if err := p.store.DB().Ping(r.Context()); err != nil {
					http.Error(w, err.Error(), http.StatusServiceUnavailable)
					return
				}
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})

			server := &http.Server{Addr: metricsAddr, Handler: mux}
			go func() {
				logging.Op().Info("daemon listening", "addr", metricsAddr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logging.Op().Error("daemon server failed", "error", err)
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			logging.Op().Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
			observability.Shutdown(shutdownCtx)
			return nil
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Metrics listen address (overrides config)")
	return cmd
}
