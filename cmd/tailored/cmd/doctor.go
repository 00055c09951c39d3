package cmd

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/wwaihoe/TailorED/internal/preflight"
)

func newDoctorCmd(opts *rootOptions) *cobra.Command {
	var (
		jsonOutput bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that tailored can run",
		Long: `Check the data directory and every collaborator the configuration
names: Ollama and its embedding model, the reranker endpoint, the PDF
converter and the image and audio endpoints.

Exits non-zero when a required check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd.Context(), cmd, opts, jsonOutput, verbose)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show check details")
	return cmd
}

func runDoctor(ctx context.Context, cmd *cobra.Command, opts *rootOptions, jsonOutput, verbose bool) error {
	checker := preflight.New(opts.cfg,
		preflight.WithOutput(cmd.OutOrStdout()),
		preflight.WithVerbose(verbose))
	results := checker.RunAll(ctx)

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)
	}

	if preflight.HasCriticalFailures(results) {
		return errors.New("required checks failed")
	}
	return nil
}
