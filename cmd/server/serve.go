package main

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the diagnostics and content API",
		Long: `Serve GET /health, GET /api/transport/status, GET /api/telemetry/recent,
GET /metrics and the operator-token protected POST endpoints. When
database.url is set, migrations are applied on start and telemetry is
persisted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = fmt.Sprintf(":%d", cfg.Server.Port)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := newApplication(cfg, log)
			if err != nil {
				return err
			}
			if err := app.attachDatabase(ctx); err != nil {
				return err
			}
			return serve(ctx, app, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default :server.port)")
	return cmd
}

func serve(ctx context.Context, app *application, addr string) error {
	handler, err := app.router()
	if err != nil {
		app.cleanup()
		return fmt.Errorf("failed to build router: %w", err)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		app.cleanup()
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return app.runHTTPServer(ctx, ln, handler)
}
