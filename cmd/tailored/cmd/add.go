package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/wwaihoe/TailorED/internal/daemon"
	terrors "github.com/wwaihoe/TailorED/internal/errors"
	"github.com/wwaihoe/TailorED/internal/output"
	"github.com/wwaihoe/TailorED/internal/ui"
)

type addOptions struct {
	mediaType string
	local     bool
	plain     bool
}

func newAddCmd(opts *rootOptions) *cobra.Command {
	var aopts addOptions

	cmd := &cobra.Command{
		Use:   "add <file>...",
		Short: "Add files to the knowledge base",
		Long: `Add documents, images or recordings to the knowledge base.

Each file is converted to text, split into passages and indexed. Plain
text, Markdown and PDF work out of the box; images and audio need a
vision host and a transcription endpoint in the configuration.

The printed source id is what 'tailored remove' takes.`,
		Example: `  tailored add notes/photosynthesis.md
  tailored add lecture.pdf diagram.png
  tailored add --media-type text/plain README`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd.Context(), cmd, opts, args, aopts)
		},
	}

	cmd.Flags().StringVar(&aopts.mediaType, "media-type", "", "Media type for every file (default: from extension)")
	cmd.Flags().BoolVar(&aopts.local, "local", false, "Open the store directly even if the daemon is running")
	cmd.Flags().BoolVar(&aopts.plain, "plain", false, "Plain progress output")
	return cmd
}

func runAdd(ctx context.Context, cmd *cobra.Command, opts *rootOptions, files []string, aopts addOptions) error {
	defer opts.setupLogging(false)()

	svc, closeSvc, err := openService(ctx, opts.cfg, aopts.local)
	if err != nil {
		return err
	}
	defer closeSvc()

	renderer := ui.NewRenderer(ui.Config{
		Output:     cmd.OutOrStdout(),
		ForcePlain: aopts.plain,
		NoColor:    ui.DetectNoColor(),
	})
	if err := renderer.Start(ctx); err != nil {
		return err
	}

	start := time.Now()
	stats := ui.CompletionStats{Files: len(files)}
	var (
		added    [][2]string
		firstErr error
	)
	for i, path := range files {
		renderer.UpdateProgress(ui.ProgressEvent{Current: i + 1, Total: len(files), File: path})

		id, err := addFile(ctx, svc, path, aopts.mediaType)
		if err != nil {
			stats.Failed++
			renderer.AddError(ui.ErrorEvent{File: path, Err: err})
			slog.Warn("add_failed", append([]any{slog.String("file", path)}, terrors.LogAttrs(err)...)...)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		stats.Added++
		added = append(added, [2]string{id, path})
	}

	stats.Duration = time.Since(start)
	renderer.Complete(stats)
	if err := renderer.Stop(); err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	for _, a := range added {
		out.Successf("%s  %s", a[0], a[1])
	}
	return firstErr
}

// addFile reads path and adds it under its base name.
func addFile(ctx context.Context, svc daemon.Service, path, mediaType string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", terrors.ValidationError(fmt.Sprintf("file not found: %s", path), err)
		}
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return svc.Add(ctx, content, filepath.Base(path), mediaType)
}
