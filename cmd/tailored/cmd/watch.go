package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wwaihoe/TailorED/internal/config"
	"github.com/wwaihoe/TailorED/internal/output"
	"github.com/wwaihoe/TailorED/internal/watcher"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var local bool

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Keep a directory in sync with the knowledge base",
		Long: `Watch a directory and ingest what lands in it.

Files already in the directory are added first, unless a source with the
same relative path exists. From then on a new file is added, a changed
file is re-added, and a deleted file is removed. Hidden files and editor
temporaries are ignored; only configured extensions are ingested.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd, opts, args[0], local)
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "Open the store directly even if the daemon is running")
	return cmd
}

func watcherOptions(cfg *config.Config) watcher.Options {
	o := watcher.DefaultOptions()
	o.DebounceWindow = cfg.Watcher.Debounce
	if len(cfg.Watcher.Extensions) > 0 {
		o.Extensions = cfg.Watcher.Extensions
	}
	return o.WithDefaults()
}

func runWatch(ctx context.Context, cmd *cobra.Command, opts *rootOptions, dir string, local bool) error {
	defer opts.setupLogging(true)()
	out := output.New(cmd.OutOrStdout())

	svc, closeSvc, err := openService(ctx, opts.cfg, local)
	if err != nil {
		return err
	}
	defer closeSvc()

	wopts := watcherOptions(opts.cfg)
	w, err := watcher.New(wopts)
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	ing := watcher.NewIngestor(svc, dir, wopts)
	if err := ing.Sync(ctx); err != nil {
		out.Warningf("Some files could not be added: %v", err)
	}

	startErr := make(chan error, 1)
	go func() {
		err := w.Start(ctx, dir)
		if err != nil {
			_ = w.Stop()
		}
		startErr <- err
	}()
	go func() {
		for err := range w.Errors() {
			slog.Warn("watcher_error", slog.String("error", err.Error()))
		}
	}()

	out.Successf("Watching %s (Ctrl+C to stop)", dir)
	ing.Run(ctx, w.Events())

	if err := <-startErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
