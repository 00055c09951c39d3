package cmd

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wwaihoe/TailorED/internal/output"
)

type searchOptions struct {
	k          int
	jsonOutput bool
	local      bool
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var sopts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge base",
		Long: `Search the knowledge base with hybrid retrieval.

The query runs against the BM25 index and the dense index; the union of
their hits is reranked and the best k passages are printed, followed by
every file either index matched.`,
		Example: `  tailored search "light-dependent reactions"
  tailored search -k 5 "causes of the French Revolution"
  tailored search --json "mitochondria"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, opts, strings.Join(args, " "), sopts)
		},
	}

	cmd.Flags().IntVarP(&sopts.k, "k", "k", 0, "Number of passages (default: search.k from config)")
	cmd.Flags().BoolVar(&sopts.jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&sopts.local, "local", false, "Open the store directly even if the daemon is running")
	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, opts *rootOptions, query string, sopts searchOptions) error {
	defer opts.setupLogging(false)()

	svc, closeSvc, err := openService(ctx, opts.cfg, sopts.local)
	if err != nil {
		return err
	}
	defer closeSvc()

	start := time.Now()
	res, err := svc.Search(ctx, query, sopts.k)
	if err != nil {
		return err
	}
	slog.Info("search_complete",
		slog.String("query", query),
		slog.Int("passages", len(res.Passages)),
		slog.Duration("duration", time.Since(start)))

	if sopts.jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	output.New(cmd.OutOrStdout()).SearchResult(res)
	return nil
}
