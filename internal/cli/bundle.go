package cli

import (
	"github.com/spf13/cobra"

	"github.com/replaykit/replaykit/internal/artifact"
	"github.com/replaykit/replaykit/internal/canon"
	"github.com/replaykit/replaykit/internal/redact"
)

// BundleOptions holds flags for the bundle command.
type BundleOptions struct {
	*RootOptions
	Source string
	Out    string
}

// NewBundleCommand creates the bundle command.
func NewBundleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BundleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Re-emit an artifact with a redaction profile applied",
		Long: `Re-apply the redaction policy from --config (or the built-in defaults)
to every step's input/output/metadata and re-write the artifact with
recomputed step hashes. The result is replay-compatible: a fresh
capture redacted this way and this command's output are
value-identical.

Example:
  replaykit bundle --source run.rpk --out shareable.rpk --config stricter.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return reportOnError(opts.RootOptions, cmd, runBundle(opts, cmd))
		},
	}

	cmd.Flags().StringVar(&opts.Source, "source", "", "source artifact path (required)")
	_ = cmd.MarkFlagRequired("source")
	cmd.Flags().StringVar(&opts.Out, "out", "", "output artifact path (required)")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func runBundle(opts *BundleOptions, cmd *cobra.Command) error {
	f := formatterFor(opts.RootOptions, cmd)

	policy, err := loadPolicy(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitUsage, "failed to load policy config", err)
	}

	sourceEnv, err := artifact.Read(opts.Source, artifact.ReadOptions{}, artifact.CanonOptions())
	if err != nil {
		return WrapExitError(ExitUsage, "failed to read source artifact", err)
	}

	compiled, err := redact.Compile(redactionPolicyFrom(policy.Redaction))
	if err != nil {
		return WrapExitError(ExitFailure, "failed to compile redaction policy", err)
	}

	run := sourceEnv.Run
	reRedacted := make([]artifact.Step, len(run.Steps))
	for i, step := range run.Steps {
		step.Input = compiled.Redact(step.Input, "")
		step.Output = compiled.Redact(step.Output, "")
		if step.Metadata != nil {
			step.Metadata, _ = compiled.Redact(step.Metadata, "").(canon.Object)
		}
		hash, err := artifact.RecomputeHash(step, artifact.CanonOptions())
		if err != nil {
			return WrapExitError(ExitFailure, "failed to recompute step hash after redaction", err)
		}
		step.Hash = hash
		reRedacted[i] = step
	}
	run.Steps = reRedacted

	env, err := artifact.Write(opts.Out, run, map[string]any{"bundled_from": sourceEnv.Run.ID}, artifact.WriteOptions{}, artifact.CanonOptions())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to write bundled artifact", err)
	}

	return f.Success(map[string]any{"run_id": run.ID, "path": opts.Out, "version": env.Version})
}
