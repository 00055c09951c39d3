package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wwaihoe/TailorED/internal/daemon"
	"github.com/wwaihoe/TailorED/internal/logging"
	"github.com/wwaihoe/TailorED/internal/output"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the knowledge base daemon",
		Long: `Run the daemon in the foreground.

The daemon owns the data directory and keeps the embedder, the lexical
index and the source registry loaded. Other tailored commands talk to it
over a Unix socket instead of opening the store themselves.

Stop it with Ctrl+C or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, opts)
		},
	}
}

func runServe(ctx context.Context, cmd *cobra.Command, opts *rootOptions) error {
	defer opts.setupLogging(true)()
	out := output.New(cmd.OutOrStdout())

	dcfg := daemonConfig(opts.cfg)
	if daemon.NewClient(dcfg).IsRunning() {
		out.Status("", "Daemon is already running")
		return nil
	}

	engine, err := openEngine(ctx, opts.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			slog.Warn("engine_close_failed", slog.String("error", err.Error()))
		}
	}()

	d, err := daemon.NewDaemon(dcfg, engine)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	out.Successf("Serving %s", opts.cfg.StorePath())
	out.Status("", "Socket: "+dcfg.SocketPath)
	out.Status("", "Logs:   "+logging.DefaultLogPath())
	out.Status("", "Press Ctrl+C to stop")

	if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
