package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/smallnest/researchcanvas/config"
	"github.com/smallnest/researchcanvas/log"
	"github.com/smallnest/researchcanvas/server"
	"github.com/spf13/cobra"
)

func serveCmd(cfgPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			metrics := server.NewMetrics()
			a, err := newApp(ctx, cfg, metrics.ToolCall)
			if err != nil {
				return err
			}
			defer a.close()

			srv, err := server.New(server.Options{
				Runner:          a.runner,
				DefaultProvider: a.defaultProvider(),
				CORSOrigins:     cfg.Server.CORSOrigins,
				Metrics:         metrics,
			})
			if err != nil {
				return err
			}

			errc := make(chan error, 1)
			go func() { errc <- srv.Start(addr) }()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}

			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from server.host and server.port)")
	return cmd
}
