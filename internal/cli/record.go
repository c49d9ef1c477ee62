package cli

import (
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/replaykit/replaykit/internal/artifact"
	"github.com/replaykit/replaykit/internal/canon"
	"github.com/replaykit/replaykit/internal/capture"
	"github.com/replaykit/replaykit/internal/plugin"
)

// RecordOptions holds flags for the record command.
type RecordOptions struct {
	*RootOptions
	Out      string
	RunID    string
	Demo     bool
	Prompt   string
	Response string
}

// NewRecordCommand creates the record command. Per spec §6's `record`
// surface, it only supports the one-shot demo form here: scoped,
// in-process capture (the "context form") is a library entry point
// (internal/capture.Manager) embedded into a host application, not
// something a standalone CLI invocation can drive.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Capture a one-shot demo run to an artifact",
		Long: `Record a single model-call interaction as an unsigned, content-addressed
artifact (.rpk). Useful for smoke-testing a capture policy or producing
a fixture for replay/diff/assert.

Example:
  replaykit record --out run.rpk --prompt "summarize this" --response "ok"`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return reportOnError(opts.RootOptions, cmd, runRecord(opts, cmd))
		},
	}

	cmd.Flags().StringVar(&opts.Out, "out", "", "output artifact path (required)")
	_ = cmd.MarkFlagRequired("out")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "run id (default: generated UUID)")
	cmd.Flags().BoolVar(&opts.Demo, "demo", true, "record a one-shot demo interaction")
	cmd.Flags().StringVar(&opts.Prompt, "prompt", "demo prompt", "prompt text for the demo interaction")
	cmd.Flags().StringVar(&opts.Response, "response", "demo response", "assistant response text for the demo interaction")

	return cmd
}

func runRecord(opts *RecordOptions, cmd *cobra.Command) error {
	f := formatterFor(opts.RootOptions, cmd)

	policy, err := loadPolicy(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitUsage, "failed to load policy config", err)
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	// registry carries host-registered capture plugins (§9); a
	// standalone CLI invocation never has any to register (plugin
	// loading from disk is out of scope), but the lifecycle hooks still
	// fire so a host embedding internal/capture sees the same
	// notification points a CLI demo run does.
	registry := plugin.NewRegistry()
	registry.NotifyCaptureStart(runID)

	mgr := capture.NewManager()
	scope, err := mgr.OpenCapture(runID, map[string]string{"os": "linux"}, policy.Interception, redactionPolicyFrom(policy.Redaction), artifact.CanonOptions())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to open capture scope", err)
	}

	modelResult, err := scope.RecordModelCall(capture.ModelCall{
		Prompt: canon.String(opts.Prompt),
		Input:  canon.Object{"prompt": canon.String(opts.Prompt)},
		Output: canon.Object{"assistant_message": canon.String(opts.Response)},
		Metadata: canon.Object{
			"duration_ms": canon.Int(0),
		},
	})
	if err != nil {
		return WrapExitError(ExitFailure, "failed to record model call", err)
	}
	for _, step := range modelResult.Steps {
		registry.NotifyStep(step)
	}

	finalStep, err := scope.RecordFinalOutput(canon.Object{"assistant_message": canon.String(opts.Response)}, canon.Object{})
	if err != nil {
		return WrapExitError(ExitFailure, "failed to record final output", err)
	}
	registry.NotifyStep(finalStep)

	run, err := mgr.Close(scope)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to close capture scope", err)
	}
	registry.NotifyCaptureEnd(run)

	env, err := artifact.Write(opts.Out, run, map[string]any{"recorded_at": time.Now().UTC().Format(time.RFC3339Nano)}, artifact.WriteOptions{}, artifact.CanonOptions())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to write artifact", err)
	}

	return f.Success(map[string]any{
		"run_id":  run.ID,
		"steps":   len(run.Steps),
		"path":    opts.Out,
		"version": env.Version,
	})
}
