package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wwaihoe/TailorED/internal/mcp"
)

func newMCPCmd(opts *rootOptions) *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the knowledge base to MCP clients",
		Long: `Start an MCP server exposing search, add_document, remove_document
and list_sources tools.

The server speaks JSON-RPC on stdin and stdout, so nothing else is ever
written there. Logs go to ~/.tailored/logs/tailored.log.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runMCP(ctx, opts, transport)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport: stdio")
	return cmd
}

func runMCP(ctx context.Context, opts *rootOptions, transport string) error {
	defer opts.setupLogging(false)()

	svc, closeSvc, err := openService(ctx, opts.cfg, false)
	if err != nil {
		slog.Error("mcp_engine_failed", slog.String("error", err.Error()))
		return err
	}
	defer closeSvc()

	srv, err := mcp.NewServer(svc)
	if err != nil {
		return err
	}
	return srv.Serve(ctx, transport)
}
