package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wwaihoe/TailorED/internal/logging"
	"github.com/wwaihoe/TailorED/internal/ui"
)

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	filter  string
	noColor bool
	logFile string
}

func newLogsCmd() *cobra.Command {
	var lopts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View tailored logs",
		Long: `Show the last lines of the tailored log, or follow it with -f.

Examples:
  tailored logs                    # Last 50 lines
  tailored logs -f                 # Follow in real time
  tailored logs --level error      # Errors only
  tailored logs --filter source_   # Lines matching a pattern`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoConfig: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runLogs(ctx, cmd, lopts)
		},
	}

	cmd.Flags().BoolVarP(&lopts.follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&lopts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&lopts.level, "level", "", "Filter by log level (debug|info|warn|error)")
	cmd.Flags().StringVar(&lopts.filter, "filter", "", "Filter by pattern (regex)")
	cmd.Flags().BoolVar(&lopts.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&lopts.logFile, "file", "", "Path to log file")
	return cmd
}

func runLogs(ctx context.Context, cmd *cobra.Command, opts logsOptions) error {
	path, err := logging.FindLogFile(opts.logFile)
	if err != nil {
		return err
	}

	var pattern *regexp.Regexp
	if opts.filter != "" {
		pattern, err = regexp.Compile(opts.filter)
		if err != nil {
			return fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:   opts.level,
		Pattern: pattern,
		NoColor: opts.noColor || ui.DetectNoColor() || !ui.IsTTY(out),
	}, out)

	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Log file: %s\n---\n", path)

	entries, err := viewer.Tail(path, opts.lines)
	if err != nil {
		return err
	}
	viewer.Print(entries)

	if !opts.follow {
		return nil
	}
	_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Following... (Ctrl+C to stop)")
	return viewer.Follow(ctx, path)
}
