package cmd

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wwaihoe/TailorED/internal/output"
	"github.com/wwaihoe/TailorED/internal/registry"
)

func newRemoveCmd(opts *rootOptions) *cobra.Command {
	var local bool

	cmd := &cobra.Command{
		Use:   "remove <source-id>...",
		Short: "Remove sources from the knowledge base",
		Long: `Remove sources and every passage they own. Run 'tailored list' to
see source ids.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd.Context(), cmd, opts, args, local)
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "Open the store directly even if the daemon is running")
	return cmd
}

func runRemove(ctx context.Context, cmd *cobra.Command, opts *rootOptions, ids []string, local bool) error {
	defer opts.setupLogging(false)()

	svc, closeSvc, err := openService(ctx, opts.cfg, local)
	if err != nil {
		return err
	}
	defer closeSvc()

	out := output.New(cmd.OutOrStdout())
	for _, id := range ids {
		if err := svc.Remove(ctx, strings.TrimSpace(id)); err != nil {
			return err
		}
		out.Successf("Removed %s", id)
	}
	return nil
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var (
		jsonOutput bool
		local      bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sources in the knowledge base",
		Long:  `List every source with its id, filename and total passage length.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd.Context(), cmd, opts, jsonOutput, local)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&local, "local", false, "Open the store directly even if the daemon is running")
	return cmd
}

func runList(ctx context.Context, cmd *cobra.Command, opts *rootOptions, jsonOutput, local bool) error {
	defer opts.setupLogging(false)()

	svc, closeSvc, err := openService(ctx, opts.cfg, local)
	if err != nil {
		return err
	}
	defer closeSvc()

	sources, err := svc.List(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		if sources == nil {
			sources = []registry.SourceInfo{}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(sources)
	}
	output.New(cmd.OutOrStdout()).Sources(sources)
	return nil
}
