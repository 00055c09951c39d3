// Package cmd provides the CLI commands for tailored.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/wwaihoe/TailorED/internal/config"
	terrors "github.com/wwaihoe/TailorED/internal/errors"
	"github.com/wwaihoe/TailorED/internal/logging"
	"github.com/wwaihoe/TailorED/internal/profiling"
	"github.com/wwaihoe/TailorED/pkg/version"
)

// annotationNoConfig marks commands that run on defaults, so that a broken
// config file cannot lock the user out of fixing it.
const annotationNoConfig = "tailored.no_config"

// rootOptions is shared by every subcommand. cfg is loaded once in
// PersistentPreRunE.
type rootOptions struct {
	debug     bool
	configDir string
	profile   profiling.Config

	cfg      *config.Config
	profiler *profiling.Session
}

// logLevel is the configured level, raised to debug by --debug.
func (o *rootOptions) logLevel() string {
	if o.debug {
		return "debug"
	}
	return o.cfg.Server.LogLevel
}

// setupLogging installs the JSON file logger. toStderr tees records to
// stderr; stdio servers must leave it off.
func (o *rootOptions) setupLogging(toStderr bool) func() {
	var (
		cleanup func()
		err     error
	)
	if toStderr {
		logCfg := logging.DefaultConfig()
		logCfg.Level = o.logLevel()
		cleanup, err = logging.SetupDefault(logCfg)
	} else {
		cleanup, err = logging.SetupFileOnly(o.logLevel())
	}
	if err != nil {
		return func() {}
	}
	return cleanup
}

func (o *rootOptions) startProfiling() error {
	if !o.profile.Enabled() {
		return nil
	}
	s, err := profiling.Start(o.profile)
	if err != nil {
		return err
	}
	o.profiler = s
	return nil
}

func (o *rootOptions) stopProfiling() error {
	if o.profiler == nil {
		return nil
	}
	err := o.profiler.Stop()
	o.profiler = nil
	return err
}

// NewRootCmd creates the root command for the tailored CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "tailored",
		Short: "Hybrid retrieval over your study material",
		Long: `tailored keeps a knowledge base of documents, images and recordings
and answers queries with the passages most relevant to them.

Every upload is turned into text, split into overlapping passages and
indexed twice: lexically with BM25 and densely with embeddings. Searches
query both and rerank the union.

Run 'tailored serve' to keep the knowledge base loaded in a daemon;
other commands use it when it is running.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[annotationNoConfig] == "true" {
				opts.cfg = config.NewConfig()
				return opts.startProfiling()
			}
			cfg, err := config.Load(opts.configDir)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return opts.startProfiling()
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return opts.stopProfiling()
		},
	}

	cmd.SetVersionTemplate("tailored version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&opts.configDir, "config-dir", ".", "Directory searched for "+config.ProjectConfigName)
	cmd.PersistentFlags().StringVar(&opts.profile.CPUPath, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.HeapPath, "profile-mem", "", "Write heap profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.TracePath, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newMCPCmd(opts))
	cmd.AddCommand(newAddCmd(opts))
	cmd.AddCommand(newRemoveCmd(opts))
	cmd.AddCommand(newListCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newWatchCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newDoctorCmd(opts))
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command, printing coded errors with their hint.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		if _, ok := terrors.As(err); ok {
			fmt.Fprint(os.Stderr, terrors.FormatForCLI(err))
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		slog.Debug("command_failed", slog.String("error", err.Error()))
	}
	return err
}
