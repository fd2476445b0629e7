package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spboyer/promptbench/internal/webserver"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds how long serve waits for in-flight runs on exit.
const shutdownTimeout = 30 * time.Second

func newServeCommand() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API.

Routes:
  POST /api/runs             Create a run (alias: POST /api/run)
  GET  /api/runs             List runs (?promptId=, ?limit=)
  GET  /api/runs/{id}        Get a run
  GET  /api/runs/{id}/stream Stream run events (Server-Sent Events)
  GET  /api/runs/{id}/ws     Stream run events (WebSocket)
  POST /api/validate         Grade completed results of a run
  GET  /api/models           List backend models (?refresh=true)
  GET  /api/health           Health check

The listen address defaults to server.host and server.port from
.promptbench.yaml (PORT overrides the port).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := a.Close(shutdownCtx); err != nil {
					a.logger.Warn("shutdown incomplete", "error", err)
				}
			}()

			cfg := webserver.Config{
				Host:           a.cfg.Server.Host,
				Port:           a.cfg.Server.Port,
				AllowedOrigins: a.cfg.Server.AllowedOrigins,
				Services:       a.services(),
				Logger:         a.logger,
			}
			if cmd.Flags().Changed("host") {
				cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}

			srv, err := webserver.New(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "HTTP API listening on %s:%d\n", cfg.Host, cfg.Port) //nolint:errcheck
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", webserver.DefaultHost, "Host to bind")
	cmd.Flags().IntVar(&port, "port", webserver.DefaultPort, "Port to listen on")

	return cmd
}
