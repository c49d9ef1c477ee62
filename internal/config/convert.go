package config

import (
	"github.com/replaykit/replaykit/internal/artifact"
	"github.com/replaykit/replaykit/internal/replay"
)

// ToReplayHybridPolicy converts the config/artifact wire shape of a
// hybrid-replay policy (slices, for JSON/CUE decodability) into
// internal/replay's set-based HybridPolicy.
func ToReplayHybridPolicy(p artifact.HybridReplayPolicy) replay.HybridPolicy {
	types := make(map[artifact.StepType]bool, len(p.RerunStepTypes))
	for _, t := range p.RerunStepTypes {
		types[t] = true
	}
	ids := make(map[string]bool, len(p.RerunStepIDs))
	for _, id := range p.RerunStepIDs {
		ids[id] = true
	}
	return replay.HybridPolicy{
		RerunStepTypes:  types,
		RerunStepIDs:    ids,
		StrictAlignment: p.StrictAlignment,
	}
}
