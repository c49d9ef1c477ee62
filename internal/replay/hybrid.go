package replay

import (
	"github.com/replaykit/replaykit/internal/artifact"
	"github.com/replaykit/replaykit/internal/canon"
	"github.com/replaykit/replaykit/internal/rkerr"
)

// HybridPolicy controls which steps are rerun live versus stubbed from
// the primary source (§3's HybridReplayPolicy, §4.6).
type HybridPolicy struct {
	RerunStepTypes  map[artifact.StepType]bool
	RerunStepIDs    map[string]bool
	StrictAlignment bool
}

// Hybrid replays primary, substituting rerunSource's step output at any
// index whose step type is in RerunStepTypes or whose id is in
// RerunStepIDs; every other index stubs from primary. Alignment is by
// step index (§4.6): under StrictAlignment, a step-count or step-type
// disagreement at an aligned index is a fatal alignment error.
func Hybrid(primary, rerunSource artifact.Run, policy HybridPolicy, cfg Config, canonOpts canon.Options) (Result, error) {
	release := InstallNetworkGuard()
	defer release()

	findings, err := detectNondeterminism(primary, cfg)
	if err != nil {
		return Result{}, err
	}

	if policy.StrictAlignment {
		if len(primary.Steps) != len(rerunSource.Steps) {
			return Result{}, rkerr.New(rkerr.KindHybridAlignmentMismatch, "step_count_mismatch", "primary and rerun sources have different step counts").
				WithDetails(map[string]any{"primary_count": len(primary.Steps), "rerun_count": len(rerunSource.Steps)})
		}
		for i := range primary.Steps {
			if primary.Steps[i].Type != rerunSource.Steps[i].Type {
				return Result{}, rkerr.New(rkerr.KindHybridAlignmentMismatch, "step_type_mismatch", "primary and rerun sources disagree on step type at an aligned index").
					WithDetails(map[string]any{"index": i, "primary_type": string(primary.Steps[i].Type), "rerun_type": string(rerunSource.Steps[i].Type)})
			}
		}
	}

	steps := make([]artifact.Step, len(primary.Steps))
	for i, step := range primary.Steps {
		if shouldRerun(step, policy) && i < len(rerunSource.Steps) {
			rerun := rerunSource.Steps[i]
			steps[i] = artifact.Step{
				ID:       step.ID,
				Type:     step.Type,
				Input:    step.Input,
				Output:   rerun.Output,
				Metadata: step.Metadata,
				Hash:     rerun.Hash,
			}
			continue
		}
		steps[i] = step
	}

	run := artifact.Run{
		ID:                     primary.ID,
		Timestamp:              replayTimestamp(cfg),
		EnvironmentFingerprint: primary.EnvironmentFingerprint,
		RuntimeVersions:        primary.RuntimeVersions,
		Steps:                  steps,
	}

	return Result{Run: run, Findings: findings}, nil
}

func shouldRerun(step artifact.Step, policy HybridPolicy) bool {
	if policy.RerunStepTypes[step.Type] {
		return true
	}
	return policy.RerunStepIDs[step.ID]
}
