package replay

import (
	"github.com/replaykit/replaykit/internal/artifact"
	"github.com/replaykit/replaykit/internal/canon"
)

// Finding is one nondeterminism indicator discovered in a source run.
type Finding struct {
	StepID string
	Reason string
}

// unstableTimeKeys names the metadata keys that, when present without
// a companion fixed_clock_applied marker, indicate a step's output may
// not replay identically — §4.6's "indicators of unseeded randomness or
// unstable time reads (discovered via run/step metadata keys)".
var unstableTimeKeys = map[string]bool{
	"wall_time_ms": true,
	"now":          true,
	"generated_at": true,
}

// detectNondeterminism scans a source run's steps for indicators and
// applies cfg's Nondeterminism mode: fail aborts (via a returned
// error), warn returns findings without failing, off returns no
// findings at all.
func detectNondeterminism(run artifact.Run, cfg Config) ([]Finding, error) {
	if cfg.Nondeterminism == ModeOff || cfg.Nondeterminism == "" {
		return nil, nil
	}

	var findings []Finding
	for _, step := range run.Steps {
		if step.Metadata == nil {
			continue
		}
		if f := randomnessFinding(step); f != nil {
			findings = append(findings, *f)
		}
		if f := timeFinding(step); f != nil {
			findings = append(findings, *f)
		}
	}

	if err := applyNondeterminismPolicy(cfg, findings); err != nil {
		return findings, err
	}
	return findings, nil
}

func randomnessFinding(step artifact.Step) *Finding {
	seeded, hasSeeded := step.Metadata["random_seed_used"]
	if hasSeeded {
		if b, ok := seeded.(canon.Bool); ok && bool(b) {
			return nil
		}
	}
	if _, has := step.Metadata["sampling_temperature"]; has && !hasSeeded {
		return &Finding{StepID: step.ID, Reason: "sampling_temperature present without a recorded random_seed_used flag"}
	}
	return nil
}

func timeFinding(step artifact.Step) *Finding {
	for k := range unstableTimeKeys {
		if _, has := step.Metadata[k]; has {
			if _, hasFixed := step.Metadata["fixed_clock_applied"]; !hasFixed {
				return &Finding{StepID: step.ID, Reason: "metadata key " + k + " present without fixed_clock_applied"}
			}
		}
	}
	return nil
}
