package cli

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/replaykit/replaykit/internal/artifact"
	"github.com/replaykit/replaykit/internal/config"
	"github.com/replaykit/replaykit/internal/plugin"
	"github.com/replaykit/replaykit/internal/replay"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Source          string
	Out             string
	Mode            string // "stub" | "hybrid"
	Seed            int64
	FixedClock      string
	RerunFrom       string
	RerunStepTypes  string // comma-separated
	RerunStepIDs    string // comma-separated
	StrictAlignment bool
	Nondeterminism  string // "off" | "warn" | "fail"
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a captured artifact deterministically",
		Long: `Replay source in stub mode (recorded output re-emitted unchanged) or
hybrid mode (selected steps substituted from a live rerun source),
writing the result to --out.

Exit codes:
  0 - replay succeeded
  1 - network attempt blocked, nondeterminism detected in fail mode, or
      hybrid alignment mismatch
  2 - usage error (bad source, bad flags)

Examples:
  replaykit replay --source run.rpk --out replayed.rpk
  replaykit replay --source run.rpk --out replayed.rpk --mode hybrid \
      --rerun-from live.rpk --rerun-step-types model.response`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return reportOnError(opts.RootOptions, cmd, runReplay(opts, cmd))
		},
	}

	cmd.Flags().StringVar(&opts.Source, "source", "", "source artifact path (required)")
	_ = cmd.MarkFlagRequired("source")
	cmd.Flags().StringVar(&opts.Out, "out", "", "output artifact path (required)")
	_ = cmd.MarkFlagRequired("out")
	cmd.Flags().StringVar(&opts.Mode, "mode", "stub", "replay mode: stub|hybrid")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "replay seed")
	cmd.Flags().StringVar(&opts.FixedClock, "fixed-clock", "", "RFC3339Nano timestamp to stamp replayed steps with")
	cmd.Flags().StringVar(&opts.RerunFrom, "rerun-from", "", "live rerun source artifact (required when --mode hybrid)")
	cmd.Flags().StringVar(&opts.RerunStepTypes, "rerun-step-types", "", "comma-separated step types to substitute from --rerun-from")
	cmd.Flags().StringVar(&opts.RerunStepIDs, "rerun-step-ids", "", "comma-separated step ids to substitute from --rerun-from")
	cmd.Flags().BoolVar(&opts.StrictAlignment, "strict-alignment", true, "fail hybrid replay on step-count/type misalignment")
	cmd.Flags().StringVar(&opts.Nondeterminism, "nondeterminism", "off", "nondeterminism guardrail: off|warn|fail")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	f := formatterFor(opts.RootOptions, cmd)

	if opts.Mode != "stub" && opts.Mode != "hybrid" {
		return NewExitError(ExitUsage, "--mode must be stub or hybrid")
	}
	if opts.Mode == "hybrid" && opts.RerunFrom == "" {
		return NewExitError(ExitUsage, "--rerun-from is required when --mode hybrid")
	}

	policy, err := loadPolicy(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitUsage, "failed to load policy config", err)
	}

	sourceEnv, err := artifact.Read(opts.Source, artifact.ReadOptions{}, artifact.CanonOptions())
	if err != nil {
		return WrapExitError(ExitUsage, "failed to read source artifact", err)
	}

	cfg := replay.Config{Seed: opts.Seed, Nondeterminism: replay.Mode(opts.Nondeterminism)}
	if opts.FixedClock != "" {
		t, err := time.Parse(time.RFC3339Nano, opts.FixedClock)
		if err != nil {
			return NewExitError(ExitUsage, "--fixed-clock is not RFC3339Nano")
		}
		cfg.FixedClock = t
		cfg.HasFixedClock = true
	} else if policy.Replay.HasFixedClock {
		cfg.FixedClock = policy.Replay.FixedClock
		cfg.HasFixedClock = true
	}

	registry := plugin.NewRegistry()
	registry.NotifyReplayStart(sourceEnv.Run.ID)

	var result replay.Result
	if opts.Mode == "stub" {
		result, err = replay.Stub(sourceEnv.Run, cfg, artifact.CanonOptions())
	} else {
		rerunEnv, rerunErr := artifact.Read(opts.RerunFrom, artifact.ReadOptions{}, artifact.CanonOptions())
		if rerunErr != nil {
			return WrapExitError(ExitUsage, "failed to read rerun-from artifact", rerunErr)
		}
		hybridPolicy := config.ToReplayHybridPolicy(policy.Hybrid)
		if opts.RerunStepTypes != "" {
			hybridPolicy.RerunStepTypes = stepTypeSet(opts.RerunStepTypes)
		}
		if opts.RerunStepIDs != "" {
			hybridPolicy.RerunStepIDs = stringSet(opts.RerunStepIDs)
		}
		hybridPolicy.StrictAlignment = opts.StrictAlignment
		result, err = replay.Hybrid(sourceEnv.Run, rerunEnv.Run, hybridPolicy, cfg, artifact.CanonOptions())
	}
	if err != nil {
		return WrapExitError(ExitFailure, "replay failed", err)
	}
	registry.NotifyReplayEnd(result.Run)

	env, err := artifact.Write(opts.Out, result.Run, replay.ReplayMetadata(sourceEnv.Run.ID, cfg), artifact.WriteOptions{}, artifact.CanonOptions())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to write replayed artifact", err)
	}

	return f.Success(map[string]any{
		"run_id":   result.Run.ID,
		"path":     opts.Out,
		"version":  env.Version,
		"findings": findingsToAny(result.Findings),
	})
}

func stepTypeSet(csv string) map[artifact.StepType]bool {
	set := map[artifact.StepType]bool{}
	for _, s := range strings.Split(csv, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			set[artifact.StepType(s)] = true
		}
	}
	return set
}

func stringSet(csv string) map[string]bool {
	set := map[string]bool{}
	for _, s := range strings.Split(csv, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			set[s] = true
		}
	}
	return set
}

func findingsToAny(findings []replay.Finding) []map[string]any {
	out := make([]map[string]any, 0, len(findings))
	for _, fnd := range findings {
		out = append(out, map[string]any{"step_id": fnd.StepID, "reason": fnd.Reason})
	}
	return out
}
