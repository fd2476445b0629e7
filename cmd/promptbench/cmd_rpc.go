package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"syscall"

	"github.com/spboyer/promptbench/internal/jsonrpc"
	"github.com/spf13/cobra"
)

func newRPCCommand() *cobra.Command {
	var tcpAddr string
	var tcpAllowRemote bool

	cmd := &cobra.Command{
		Use:   "rpc",
		Short: "Start a JSON-RPC 2.0 server for editor integration",
		Long: `Start a JSON-RPC 2.0 server for editor integration.

By default, the server communicates over stdin/stdout using newline-delimited JSON.

Use --tcp to start a TCP server instead (useful for debugging).
TCP defaults to loopback (127.0.0.1). Use --tcp-allow-remote to bind
to all interfaces.

Supported methods:
  run.create     Create a run (returns the pending run)
  run.get        Get a run
  run.list       List runs
  run.validate   Grade completed results of a run
  run.subscribe  Stream run.event notifications until the run is done
  models.list    List backend models`,
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

			registry := jsonrpc.NewMethodRegistry()
			hctx := jsonrpc.NewHandlerContext(a.orchestrator, a.validator, a.catalog, a.logger)
			jsonrpc.RegisterHandlers(registry, hctx)
			server := jsonrpc.NewServer(registry, a.logger)

			if tcpAddr != "" {
				addr := resolveTCPAddr(tcpAddr, tcpAllowRemote, a.logger)

				listener, err := jsonrpc.NewTCPListener(addr, server)
				if err != nil {
					return fmt.Errorf("failed to start TCP server: %w", err)
				}
				defer listener.Close() //nolint:errcheck
				fmt.Fprintf(cmd.ErrOrStderr(), "JSON-RPC server listening on %s\n", listener.Addr()) //nolint:errcheck
				return listener.Serve(ctx)
			}

			fmt.Fprintln(cmd.ErrOrStderr(), "JSON-RPC server running on stdio") //nolint:errcheck
			server.ServeStdio(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().StringVar(&tcpAddr, "tcp", "", "TCP address to listen on (e.g., :9000)")
	cmd.Flags().BoolVar(&tcpAllowRemote, "tcp-allow-remote", false,
		"Allow binding to non-loopback addresses (WARNING: exposes the server to the network with no authentication)")

	return cmd
}

// resolveTCPAddr keeps TCP addresses on loopback unless allowRemote is set.
func resolveTCPAddr(addr string, allowRemote bool, logger *slog.Logger) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		// A bare port such as "9000".
		host = ""
		port = addr
	}

	if allowRemote {
		logger.Warn("TCP server binding without authentication", "address", addr)
		return addr
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		return net.JoinHostPort("127.0.0.1", port)
	}
	return addr
}
