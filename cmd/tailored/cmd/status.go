package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wwaihoe/TailorED/internal/daemon"
	"github.com/wwaihoe/TailorED/internal/output"
	"github.com/wwaihoe/TailorED/internal/search"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show knowledge base status",
		Long: `Show whether the daemon is running and summarize the knowledge base:
source and passage counts, the store location, the embedder and the
reranker in use.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, opts, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, opts *rootOptions, jsonOutput bool) error {
	defer opts.setupLogging(false)()

	result := daemon.StatusResult{}
	client := daemon.NewClient(daemonConfig(opts.cfg))
	if client.IsRunning() {
		res, err := client.Status(ctx)
		if err != nil {
			return err
		}
		result = *res
	} else {
		engine, err := openEngine(ctx, opts.cfg)
		if err != nil {
			return err
		}
		defer func() { _ = engine.Close() }()
		if result.Engine, err = engine.Status(ctx); err != nil {
			return err
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	out := output.New(cmd.OutOrStdout())
	if result.Running {
		out.Successf("Daemon running (pid %d, up %s)", result.PID, result.Uptime)
	} else {
		out.Warning("Daemon not running")
	}
	printEngineStatus(out, result.Engine)
	return nil
}

func printEngineStatus(out *output.Writer, s *search.Status) {
	if s == nil {
		return
	}
	out.Status("", fmt.Sprintf("Sources:  %d", s.Sources))
	out.Status("", fmt.Sprintf("Passages: %d (lexical %d, stored %d)", s.Passages, s.LexicalPassages, s.StoredPassages))
	out.Status("", fmt.Sprintf("Store:    %s", s.StorePath))
	out.Status("", fmt.Sprintf("Embedder: %s (%d dims)", s.EmbedderModel, s.Dimensions))
	out.Status("", fmt.Sprintf("Reranker: %s", s.Scorer))

	if q := s.Queries; q != nil && q.TotalQueries > 0 {
		out.Status("", fmt.Sprintf("Queries:  %d since %s (%d failed, %.0f%% empty)",
			q.TotalQueries, q.Since.Format(time.DateTime), q.FailedQueries, q.ZeroResultRate()*100))
		if len(q.TopTerms) > 0 {
			terms := make([]string, 0, len(q.TopTerms))
			for _, t := range q.TopTerms {
				terms = append(terms, fmt.Sprintf("%s (%d)", t.Term, t.Count))
			}
			out.Status("", "Top terms: "+strings.Join(terms, ", "))
		}
	}
}
