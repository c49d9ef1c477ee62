package cli

import (
	"github.com/spf13/cobra"

	"github.com/replaykit/replaykit/internal/artifact"
	"github.com/replaykit/replaykit/internal/assertsnap"
)

// AssertOptions holds flags for the assert command.
type AssertOptions struct {
	*RootOptions
	Baseline             string
	Candidate            string
	Strict               bool
	SlowdownThresholdPct float64
	MaxChangesPerStep    int
}

// NewAssertCommand creates the assert command.
func NewAssertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AssertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "assert",
		Short: "Assert a candidate artifact against a baseline",
		Long: `Pass/fail assertion (§4.8) of candidate against baseline: no divergence
under the selected rules, plus optional strict-mode environment drift
checks and a slowdown gate.

Exit codes:
  0 - assertion passed
  1 - assertion failed (divergence, drift, or slowdown)
  2 - usage error (bad paths)

Example:
  replaykit assert --baseline base.rpk --candidate new.rpk --strict`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return reportOnError(opts.RootOptions, cmd, runAssert(opts, cmd))
		},
	}

	cmd.Flags().StringVar(&opts.Baseline, "baseline", "", "baseline artifact path (required)")
	_ = cmd.MarkFlagRequired("baseline")
	cmd.Flags().StringVar(&opts.Candidate, "candidate", "", "candidate artifact path (required)")
	_ = cmd.MarkFlagRequired("candidate")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "check environment fingerprint/runtime drift")
	cmd.Flags().Float64Var(&opts.SlowdownThresholdPct, "slowdown-threshold-pct", 0, "slowdown gate threshold percent (0 disables)")
	cmd.Flags().IntVar(&opts.MaxChangesPerStep, "max-changes-per-step", 0, "cap reported deltas per step (0 = unlimited)")

	return cmd
}

func runAssert(opts *AssertOptions, cmd *cobra.Command) error {
	f := formatterFor(opts.RootOptions, cmd)

	baselineEnv, err := artifact.Read(opts.Baseline, artifact.ReadOptions{}, artifact.CanonOptions())
	if err != nil {
		return WrapExitError(ExitUsage, "failed to read baseline artifact", err)
	}
	candidateEnv, err := artifact.Read(opts.Candidate, artifact.ReadOptions{}, artifact.CanonOptions())
	if err != nil {
		return WrapExitError(ExitUsage, "failed to read candidate artifact", err)
	}

	result := assertsnap.AssertRun(baselineEnv.Run, candidateEnv.Run, assertsnap.Options{
		Strict:               opts.Strict,
		SlowdownThresholdPct: opts.SlowdownThresholdPct,
		MaxChangesPerStep:    opts.MaxChangesPerStep,
		CanonOpts:            artifact.CanonOptions(),
	})

	if err := f.Success(map[string]any{
		"status":            result.Status,
		"first_divergence":  result.Diff.FirstDivergence,
		"environment_drift": result.EnvironmentDrift,
		"performance":       result.Performance,
	}); err != nil {
		return err
	}

	if result.Status == assertsnap.StatusFail {
		return NewReportedExitError(ExitFailure, "assertion failed")
	}
	return nil
}
