// Package cli implements the replaykit command: a thin Cobra front end
// over internal/capture, internal/replay, internal/diff,
// internal/assertsnap, and internal/migrate, exposing spec §6's library
// surface (record/replay/diff/assert_run/bundle/snapshot_assert/migrate)
// as subcommands with the exit-code contract 0=clean, 1=divergence or
// verification failure, 2=usage error.
package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/replaykit/replaykit/internal/rlog"
)

// RootOptions holds global flags shared by every subcommand.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string // optional policy config file (internal/config)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the replaykit CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "replaykit",
		Short: "ReplayKit - deterministic capture, replay, and diff for AI workflows",
		Long:  "A local-first toolkit for capturing AI workflow executions as checksummed, content-addressed artifacts, then replaying, diffing, and asserting against them deterministically.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			rlog.Configure(rlog.Options{Verbose: opts.Verbose, JSON: opts.Format == "json"})
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "policy config file (JSON or CUE, see internal/config)")

	cmd.AddCommand(NewRecordCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewDiffCommand(opts))
	cmd.AddCommand(NewAssertCommand(opts))
	cmd.AddCommand(NewBundleCommand(opts))
	cmd.AddCommand(NewSnapshotAssertCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func formatterFor(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
}

// reportOnError writes err through the formatter (so JSON-mode callers
// get a canonicalized error envelope on stdout, same as a success
// envelope) before letting it propagate for GetExitCode to translate
// into a process exit code. Cobra's SilenceErrors means this is the
// only place a command's error is ever rendered.
func reportOnError(opts *RootOptions, cmd *cobra.Command, err error) error {
	var exitErr *ExitError
	if err != nil && !(errors.As(err, &exitErr) && exitErr.Reported) {
		formatterFor(opts, cmd).Failure(err)
	}
	return err
}
