package cli

import (
	"github.com/spf13/cobra"

	"github.com/replaykit/replaykit/internal/artifact"
	"github.com/replaykit/replaykit/internal/diff"
	"github.com/replaykit/replaykit/internal/plugin"
)

// DiffOptions holds flags for the diff command.
type DiffOptions struct {
	*RootOptions
	Left              string
	Right             string
	FirstOnly         bool
	Strict            bool
	MaxChangesPerStep int
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DiffOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Diff two artifacts step by step",
		Long: `Perform the §4.7 index-aligned diff between two artifacts, reporting
per-index status and field-level deltas for any changed step.

Exit codes:
  0 - runs are identical
  1 - a divergence was found
  2 - usage error (bad paths)

Example:
  replaykit diff --left a.rpk --right b.rpk --first-only`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return reportOnError(opts.RootOptions, cmd, runDiff(opts, cmd))
		},
	}

	cmd.Flags().StringVar(&opts.Left, "left", "", "left artifact path (required)")
	_ = cmd.MarkFlagRequired("left")
	cmd.Flags().StringVar(&opts.Right, "right", "", "right artifact path (required)")
	_ = cmd.MarkFlagRequired("right")
	cmd.Flags().BoolVar(&opts.FirstOnly, "first-only", false, "stop scanning after the first divergence")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "include denylisted volatile metadata keys in deltas")
	cmd.Flags().IntVar(&opts.MaxChangesPerStep, "max-changes-per-step", 0, "cap reported deltas per step (0 = unlimited)")

	return cmd
}

func runDiff(opts *DiffOptions, cmd *cobra.Command) error {
	f := formatterFor(opts.RootOptions, cmd)

	leftEnv, err := artifact.Read(opts.Left, artifact.ReadOptions{}, artifact.CanonOptions())
	if err != nil {
		return WrapExitError(ExitUsage, "failed to read left artifact", err)
	}
	rightEnv, err := artifact.Read(opts.Right, artifact.ReadOptions{}, artifact.CanonOptions())
	if err != nil {
		return WrapExitError(ExitUsage, "failed to read right artifact", err)
	}

	registry := plugin.NewRegistry()
	registry.NotifyDiffStart(leftEnv.Run.ID, rightEnv.Run.ID)

	result := diff.DiffRuns(leftEnv.Run, rightEnv.Run, diff.Options{
		Strict:            opts.Strict,
		MaxChangesPerStep: opts.MaxChangesPerStep,
		FirstDivergence:   opts.FirstOnly,
		CanonOpts:         artifact.CanonOptions(),
	})
	registry.NotifyDiffEnd(result)

	if err := f.Success(map[string]any{
		"entries":          entriesToAny(result.Entries),
		"first_divergence": result.FirstDivergence,
	}); err != nil {
		return err
	}

	if result.FirstDivergence != nil {
		return NewReportedExitError(ExitFailure, "divergence detected")
	}
	return nil
}

func entriesToAny(entries []diff.Entry) []map[string]any {
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"index":      e.Index,
			"status":     e.Status,
			"deltas":     deltasToAny(e.Deltas),
			"overflowed": e.Overflowed,
		})
	}
	return out
}

func deltasToAny(deltas []diff.Delta) []map[string]any {
	out := make([]map[string]any, 0, len(deltas))
	for _, d := range deltas {
		out = append(out, map[string]any{
			"path":   d.Path,
			"kind":   d.Kind,
			"before": d.Before,
			"after":  d.After,
		})
	}
	return out
}
