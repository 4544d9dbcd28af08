// Package main is the entry point for baton, a command-line language
// server client for a single document.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	root := &cobra.Command{
		Use:   "baton [flags] FILE",
		Short: "Talk to a language server about one file",
		Long: `Opens FILE in a language server (clangd by default), prints the
diagnostics it publishes and, with --complete, the completion
suggestions at a position.

With --watch, baton keeps running and sends every change made to FILE
on disk to the server until interrupted.

Configuration is read from --config, or from baton.toml / baton.yaml in
the working directory, then from BATON_* environment variables. Flags
override both.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.file = args[0]
			opts.changed = func(name string) bool { return cmd.Flags().Changed(name) }
			return run(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := root.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	flags.StringVar(&opts.server, "server", "", "Language server command")
	flags.StringVar(&opts.root, "root", "", "Workspace root (default: the file's directory)")
	flags.StringVar(&opts.complete, "complete", "", "Request completion at LINE:COL (1-based)")
	flags.BoolVarP(&opts.watch, "watch", "w", false, "Send changes to FILE until interrupted")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error, off)")
	flags.DurationVar(&opts.timeout, "timeout", defaultTimeout, "How long to wait for results without --watch")

	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "baton %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
